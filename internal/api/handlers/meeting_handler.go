package handlers

import (
	"net/http"

	"github.com/GradientHair/GradientHair/internal/broadcast"
	"github.com/GradientHair/GradientHair/internal/models"
	"github.com/GradientHair/GradientHair/internal/services"
	"github.com/GradientHair/GradientHair/internal/utils"
	"github.com/gin-gonic/gin"
)

type MeetingHandler struct {
	svc services.MeetingService
}

func NewMeetingHandler(svc services.MeetingService) *MeetingHandler {
	return &MeetingHandler{svc: svc}
}

func (h *MeetingHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.CreateMeetingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "MeetingHandler.Create", "invalid request body", err))
		return
	}

	m, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// List answers GET /meetings?limit=N.
func (h *MeetingHandler) List(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var q struct {
		Limit int64 `form:"limit"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "MeetingHandler.List", "invalid limit", err))
		return
	}
	list, err := h.svc.List(c.Request.Context(), userID, isAdmin(c), q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": list})
}

func (h *MeetingHandler) Get(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	view, err := h.svc.Get(c.Request.Context(), c.Param("meeting_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Utterance accepts one finalized utterance from the transcription collaborator.
// Analysis runs in the background; 202 means the utterance entered the transcript.
func (h *MeetingHandler) Utterance(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if _, err := h.svc.Admit(c.Request.Context(), userID, c.Param("meeting_id"), isAdmin(c)); err != nil {
		writeError(c, err)
		return
	}

	var u models.FinalizedUtterance
	if err := c.ShouldBindJSON(&u); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "MeetingHandler.Utterance", "invalid request body", err))
		return
	}
	u.MeetingID = c.Param("meeting_id")

	if err := h.svc.Ingest(c.Request.Context(), u); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"meeting_id": u.MeetingID, "sequence": u.Sequence})
}

func (h *MeetingHandler) Interim(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}
	if _, err := h.svc.Admit(c.Request.Context(), userID, c.Param("meeting_id"), isAdmin(c)); err != nil {
		writeError(c, err)
		return
	}

	var in broadcast.Interim
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "MeetingHandler.Interim", "invalid request body", err))
		return
	}

	if err := h.svc.Interim(c.Request.Context(), c.Param("meeting_id"), in); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// End blocks until the review finished. A failed review still ends the meeting; the
// response then carries review_error instead of a report.
func (h *MeetingHandler) End(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	res, err := h.svc.End(c.Request.Context(), userID, c.Param("meeting_id"), isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
