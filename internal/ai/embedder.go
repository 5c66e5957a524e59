package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const retryBackoff = 500 * time.Millisecond

type EmbedderConfig struct {
	// Name is the stable bucket tag written onto vector records.
	Name          string
	Model         string
	Dimension     int
	MaxInputChars int
	Timeout       time.Duration
}

type embedder struct {
	provider IEmbedProvider
	cfg      EmbedderConfig
}

func NewEmbedder(p IEmbedProvider, cfg EmbedderConfig) IEmbedder {
	return &embedder{provider: p, cfg: cfg}
}

func (e *embedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyInput
	}
	// oversized input is truncated, not rejected: a lossy embedding still
	// serves the search path
	if e.cfg.MaxInputChars > 0 {
		runes := []rune(trimmed)
		if len(runes) > e.cfg.MaxInputChars {
			trimmed = string(runes[:e.cfg.MaxInputChars])
		}
	}
	vec, err := e.embedOnce(ctx, trimmed, taskType)
	if err != nil && retryable(ctx, err) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryBackoff):
		}
		vec, err = e.embedOnce(ctx, trimmed, taskType)
	}
	if err != nil {
		return nil, err
	}
	if len(vec) != e.cfg.Dimension {
		return nil, fmt.Errorf("provider %s returned %d values, want %d", e.cfg.Name, len(vec), e.cfg.Dimension)
	}
	return vec, nil
}

func (e *embedder) embedOnce(ctx context.Context, text string, taskType string) ([]float32, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	return e.provider.Embed(ctx, e.cfg.Model, text, taskType)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, ErrUnavailable) && !errors.Is(err, ErrEmptyInput)
}

func (e *embedder) ProviderID() string {
	return e.cfg.Name
}

func (e *embedder) ModelName() string {
	return e.cfg.Model
}

func (e *embedder) Dimension() int {
	return e.cfg.Dimension
}
