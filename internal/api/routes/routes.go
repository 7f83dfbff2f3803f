package routes

import (
	"net/http"

	"github.com/GradientHair/GradientHair/internal/api/handlers"
	"github.com/GradientHair/GradientHair/internal/api/middleware"
	"github.com/gin-gonic/gin"
)

type Deps struct {
	Meeting   *handlers.MeetingHandler
	Principle *handlers.PrincipleHandler
	Report    *handlers.ReportHandler
	Admin     *handlers.AdminHandler
	WS        *handlers.WSHandler
	JWT       middleware.JWTConfig
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth(d.JWT))

	auth.POST("/meetings", d.Meeting.Create)
	auth.GET("/meetings", d.Meeting.List)
	auth.GET("/meetings/:meeting_id", d.Meeting.Get)
	auth.POST("/meetings/:meeting_id/utterances", d.Meeting.Utterance)
	auth.POST("/meetings/:meeting_id/interim", d.Meeting.Interim)
	auth.POST("/meetings/:meeting_id/end", d.Meeting.End)

	auth.GET("/meetings/:meeting_id/report", d.Report.Report)
	auth.GET("/meetings/:meeting_id/artifacts", d.Report.Artifacts)

	auth.GET("/principles", d.Principle.List)
	auth.POST("/principles", d.Principle.Create)
	auth.GET("/principles/:principle_id", d.Principle.Get)
	auth.PUT("/principles/:principle_id", d.Principle.Update)
	auth.DELETE("/principles/:principle_id", d.Principle.Delete)

	admin := auth.Group("/admin", middleware.RequireAdmin())
	admin.GET("/sessions", d.Admin.Sessions)

	// WebSocket
	auth.GET("/ws/meetings/:meeting_id", d.WS.MeetingWS)
}
