package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/helmsan/kompass/internal/pkg/errcode"
	"github.com/helmsan/kompass/internal/pkg/response"
	"github.com/helmsan/kompass/internal/service"
)

const maxIngestBatch = 200

type IngestHandler struct {
	ingest *service.IngestService
}

func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

type ingestRequest struct {
	Items []service.IngestItem `json:"items"`
}

func (h *IngestHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if len(req.Items) == 0 {
		response.Error(c, errcode.ErrInvalid, "items is required")
		return
	}
	if len(req.Items) > maxIngestBatch {
		response.Error(c, errcode.ErrInvalid, "batch too large")
		return
	}
	report, err := h.ingest.Ingest(c.Request.Context(), getScope(c), req.Items)
	if err != nil {
		handleError(c, err)
		return
	}
	if report.Accepted == 0 && report.Skipped == 0 && report.Rejected > 0 {
		response.Error(c, errcode.ErrIngestFailed, "all items rejected")
		return
	}
	response.Success(c, report)
}
