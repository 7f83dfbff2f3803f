package handlers

import (
	"net/http"

	"github.com/GradientHair/GradientHair/internal/services"
	"github.com/GradientHair/GradientHair/internal/utils"
	"github.com/gin-gonic/gin"
)

type PrincipleHandler struct {
	svc services.PrincipleService
}

func NewPrincipleHandler(svc services.PrincipleService) *PrincipleHandler {
	return &PrincipleHandler{svc: svc}
}

func (h *PrincipleHandler) List(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principles": list})
}

func (h *PrincipleHandler) Get(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	p, err := h.svc.Get(c.Request.Context(), c.Param("principle_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PrincipleHandler) Create(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.CreatePrincipleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "PrincipleHandler.Create", "invalid request body", err))
		return
	}
	p, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *PrincipleHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.UpdatePrincipleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "PrincipleHandler.Update", "invalid request body", err))
		return
	}
	p, err := h.svc.Update(c.Request.Context(), userID, c.Param("principle_id"), req, isAdmin(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *PrincipleHandler) Delete(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), userID, c.Param("principle_id"), isAdmin(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
