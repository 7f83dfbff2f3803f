package handlers

import (
	"net/http"

	"github.com/GradientHair/GradientHair/internal/services"
	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	svc services.ReportService
}

func NewReportHandler(svc services.ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

func (h *ReportHandler) Report(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	row, err := h.svc.Get(c.Request.Context(), c.Param("meeting_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}

func (h *ReportHandler) Artifacts(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	list, err := h.svc.Artifacts(c.Request.Context(), c.Param("meeting_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": list})
}
