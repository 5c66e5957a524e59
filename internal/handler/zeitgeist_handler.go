package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/helmsan/kompass/internal/pkg/errcode"
	appErr "github.com/helmsan/kompass/internal/pkg/errors"
	"github.com/helmsan/kompass/internal/pkg/response"
	"github.com/helmsan/kompass/internal/service"
)

type ZeitgeistHandler struct {
	zeitgeist *service.ZeitgeistService
}

func NewZeitgeistHandler(zeitgeist *service.ZeitgeistService) *ZeitgeistHandler {
	return &ZeitgeistHandler{zeitgeist: zeitgeist}
}

func (h *ZeitgeistHandler) Suggestions(c *gin.Context) {
	topics := h.zeitgeist.Suggestions(c.Request.Context(), getScope(c))
	response.Success(c, gin.H{"suggestions": topics})
}

func (h *ZeitgeistHandler) Trending(c *gin.Context) {
	out, err := h.zeitgeist.Trending(c.Request.Context(), getScope(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, out)
}

// Refresh starts a cycle and answers with the run snapshot. Triggering a
// scope whose cycle is already running returns that run instead of an error.
func (h *ZeitgeistHandler) Refresh(c *gin.Context) {
	run, err := h.zeitgeist.Refresh(getScope(c))
	if err != nil {
		if errors.Is(err, appErr.ErrRefreshInProgress) {
			response.Success(c, gin.H{"run": run, "already_running": true})
			return
		}
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"run": run, "already_running": false})
}

func (h *ZeitgeistHandler) RecentRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 0 {
		response.Error(c, errcode.ErrInvalid, "invalid limit")
		return
	}
	runs, err := h.zeitgeist.RecentRuns(c.Request.Context(), getScope(c), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"runs": runs})
}
