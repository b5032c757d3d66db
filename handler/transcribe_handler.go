package handler

import (
	"net/http"

	"github.com/keepsakehq/keepsake/transcribe"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TranscribeHandler is the thin relay to the external speech service: it
// accepts a time-limited audio URL and returns the transcript text or the
// provider's error verbatim.
type TranscribeHandler struct {
	provider transcribe.Provider
	logger   *logrus.Logger
}

func NewTranscribeHandler(provider transcribe.Provider, logger *logrus.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		provider: provider,
		logger:   logger,
	}
}

func (h *TranscribeHandler) Transcribe(c *gin.Context) {
	var req struct {
		AudioURL string `json:"audio_url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio_url is required"})
		return
	}

	text, err := h.provider.Transcribe(c.Request.Context(), req.AudioURL)
	if err != nil {
		h.logger.WithError(err).Warn("relay transcription failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"text": text})
}
