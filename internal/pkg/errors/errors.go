package errors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalid           = errors.New("invalid")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrConflict          = errors.New("conflict")
	ErrInternal          = errors.New("internal")
	ErrEmbeddingProvider = errors.New("embedding provider failed")
	ErrSearchUnavailable = errors.New("search temporarily unavailable")
	ErrSignalSource      = errors.New("signal source failed")
	ErrRefreshTimeout    = errors.New("refresh cycle exceeded budget")
	ErrRefreshInProgress = errors.New("refresh already in progress")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}
