package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/helmsan/kompass/internal/middleware"
	"github.com/helmsan/kompass/internal/model"
	"github.com/helmsan/kompass/internal/pkg/errcode"
	appErr "github.com/helmsan/kompass/internal/pkg/errors"
	"github.com/helmsan/kompass/internal/pkg/response"
)

func getScope(c *gin.Context) model.Scope {
	value, _ := c.Get(middleware.ContextScopeKey)
	scope, _ := value.(model.Scope)
	return scope
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("scope", getScope(c).Key()),
		zap.Error(err))
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrSearchUnavailable):
		response.Error(c, errcode.ErrSearchUnavailable, "search temporarily unavailable")
	case errors.Is(err, appErr.ErrRefreshInProgress):
		response.Error(c, errcode.ErrRefreshInProgress, "refresh already running")
	case errors.Is(err, appErr.ErrRefreshTimeout):
		response.Error(c, errcode.ErrRefreshTimeout, "refresh exceeded time budget")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
