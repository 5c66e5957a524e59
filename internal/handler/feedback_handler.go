package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/helmsan/kompass/internal/pkg/errcode"
	"github.com/helmsan/kompass/internal/pkg/response"
	"github.com/helmsan/kompass/internal/repo"
)

type FeedbackHandler struct {
	feedback *repo.FeedbackRepo
}

func NewFeedbackHandler(feedback *repo.FeedbackRepo) *FeedbackHandler {
	return &FeedbackHandler{feedback: feedback}
}

type feedbackRequest struct {
	Question  string `json:"question"`
	Sentiment string `json:"sentiment"`
}

func (h *FeedbackHandler) Add(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		response.Error(c, errcode.ErrInvalid, "question is required")
		return
	}
	sentiment := strings.ToLower(strings.TrimSpace(req.Sentiment))
	if sentiment != "positive" && sentiment != "negative" {
		response.Error(c, errcode.ErrInvalid, "sentiment must be positive or negative")
		return
	}
	if err := h.feedback.Add(c.Request.Context(), getScope(c), question, sentiment, time.Now().Unix()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}
