package handlers

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

type LiveSessions interface {
	IDs() []string
}

type AdminHandler struct {
	live LiveSessions
}

func NewAdminHandler(live LiveSessions) *AdminHandler {
	return &AdminHandler{live: live}
}

func (h *AdminHandler) Sessions(c *gin.Context) {
	ids := h.live.IDs()
	slices.Sort(ids)
	c.JSON(http.StatusOK, gin.H{"count": len(ids), "meeting_ids": ids})
}
