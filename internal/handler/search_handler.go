package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/helmsan/kompass/internal/model"
	"github.com/helmsan/kompass/internal/pkg/errcode"
	"github.com/helmsan/kompass/internal/pkg/response"
	"github.com/helmsan/kompass/internal/service"
)

type SearchHandler struct {
	search *service.SearchService
}

func NewSearchHandler(search *service.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

type searchRequest struct {
	Query       string   `json:"query"`
	MatchCount  int      `json:"match_count"`
	SourceTypes []string `json:"source_types"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		response.Error(c, errcode.ErrInvalid, "query is required")
		return
	}
	var sourceTypes []model.SourceType
	for _, raw := range req.SourceTypes {
		st := model.SourceType(raw)
		if !st.IsValid() {
			response.Error(c, errcode.ErrInvalid, "unknown source type: "+raw)
			return
		}
		sourceTypes = append(sourceTypes, st)
	}
	out, err := h.search.SearchKnowledge(c.Request.Context(), req.Query, service.SearchOptions{
		MatchCount:  req.MatchCount,
		SourceTypes: sourceTypes,
		Scope:       getScope(c),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, out)
}
