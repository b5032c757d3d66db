package router

import (
	"github.com/keepsakehq/keepsake/handler"
	"github.com/keepsakehq/keepsake/middleware"
	metricsgin "github.com/keepsakehq/keepsake/pkg/metrics/gin"

	"github.com/gin-gonic/gin"
)

func Setup(jwtSecret string, storyHandler *handler.StoryHandler, captureHandler *handler.CaptureHandler, transcribeHandler *handler.TranscribeHandler) *gin.Engine {
	r := gin.Default()
	r.Use(metricsgin.PrometheusMiddleware("keepsake"))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(middleware.JWTAuth(jwtSecret))
	{
		api.POST("/stories", storyHandler.CreateStory)
		api.GET("/stories", storyHandler.ListStories)
		api.DELETE("/stories/:id", storyHandler.DeleteStory)
		api.GET("/stories/:id/assets", storyHandler.ListAssets)
		api.POST("/stories/:id/assets", storyHandler.UploadAsset)
		api.POST("/stories/:id/notes", storyHandler.AttachNote)
		api.POST("/stories/:id/external", storyHandler.AttachExternalMedia)

		api.GET("/assets/:id/url", storyHandler.PlaybackURL)
		api.GET("/assets/:id/transcript", storyHandler.CompanionTranscript)

		api.GET("/devices", captureHandler.ListDevices)
		api.POST("/capture/sessions", captureHandler.StartSession)
		api.GET("/capture/sessions/:id", captureHandler.SessionStatus)
		api.POST("/capture/sessions/:id/stop", captureHandler.StopSession)
		api.POST("/capture/sessions/:id/retake", captureHandler.RetakeSession)
		api.POST("/capture/sessions/:id/save", captureHandler.SaveSession)
		api.DELETE("/capture/sessions/:id", captureHandler.CloseSession)

		api.POST("/transcribe", transcribeHandler.Transcribe)
	}
	return r
}
