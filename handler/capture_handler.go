package handler

import (
	"errors"
	"net/http"

	"github.com/keepsakehq/keepsake/capture"
	"github.com/keepsakehq/keepsake/middleware"
	"github.com/keepsakehq/keepsake/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type CaptureHandler struct {
	manager    *service.CaptureManager
	enumerator capture.Enumerator
	logger     *logrus.Logger
}

func NewCaptureHandler(manager *service.CaptureManager, enumerator capture.Enumerator, logger *logrus.Logger) *CaptureHandler {
	return &CaptureHandler{
		manager:    manager,
		enumerator: enumerator,
		logger:     logger,
	}
}

// ListDevices enumerates usable input devices. Enumeration failure yields an
// empty list; the client then records with the platform default device.
func (h *CaptureHandler) ListDevices(c *gin.Context) {
	mode := capture.Mode(c.DefaultQuery("kind", string(capture.ModeAudio)))
	if mode != capture.ModeAudio && mode != capture.ModeVideo {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "kind must be audio or video"})
		return
	}

	devices := capture.ListInputDevices(c.Request.Context(), h.enumerator, mode)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"devices": devices,
	})
}

// StartSession acquires the input device and starts recording.
func (h *CaptureHandler) StartSession(c *gin.Context) {
	var req struct {
		Mode     string `json:"mode" binding:"required"`
		DeviceID string `json:"device_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request format: " + err.Error(),
		})
		return
	}
	mode := capture.Mode(req.Mode)
	if mode != capture.ModeAudio && mode != capture.ModeVideo {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "mode must be audio or video"})
		return
	}

	id, err := h.manager.StartSession(c.Request.Context(), mode, req.DeviceID)
	if err != nil {
		var permErr *capture.PermissionError
		var encErr *capture.UnsupportedEncodingError
		switch {
		case errors.As(err, &permErr):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": permErr.Error()})
		case errors.As(err, &encErr):
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": encErr.Error()})
		default:
			h.logger.WithError(err).Error("failed to start capture session")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "session_id": id})
}

// SessionStatus reports state and elapsed seconds for UI polling.
func (h *CaptureHandler) SessionStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid session ID"})
		return
	}

	state, elapsed, err := h.manager.SessionStatus(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"state":           state,
		"elapsed_seconds": elapsed,
	})
}

// StopSession finalizes the take for review and releases the device.
func (h *CaptureHandler) StopSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid session ID"})
		return
	}

	blob, err := h.manager.StopSession(id)
	if err != nil {
		h.respondCaptureError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"mime_type":        blob.MIMEType,
		"duration_seconds": blob.DurationSeconds,
		"size_bytes":       len(blob.Bytes),
		"peaks":            blob.Peaks,
	})
}

// RetakeSession discards the reviewed take and starts recording again.
func (h *CaptureHandler) RetakeSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid session ID"})
		return
	}

	if err := h.manager.RetakeSession(c.Request.Context(), id); err != nil {
		h.respondCaptureError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// SaveSession persists the reviewed blob to a story. Save success and
// transcription outcome are reported separately: a failed transcription
// never masks a committed save.
func (h *CaptureHandler) SaveSession(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing user"})
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid session ID"})
		return
	}

	var req struct {
		StoryID string `json:"story_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request format: " + err.Error(),
		})
		return
	}
	storyID, err := uuid.Parse(req.StoryID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid story ID"})
		return
	}

	result, err := h.manager.SaveSession(c.Request.Context(), id, storyID, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrStoryNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Story not found"})
		case errors.Is(err, service.ErrPermissionDenied):
			c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Permission denied"})
		case errors.Is(err, service.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Session not found"})
		default:
			h.logger.WithError(err).Error("failed to save recording")
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"message": "Save failed: " + err.Error(),
			})
		}
		return
	}

	resp := gin.H{
		"success": true,
		"asset":   result.Asset,
	}
	if result.Transcript != nil {
		resp["transcript"] = result.Transcript
	}
	if result.TranscriptErr != nil {
		resp["transcript_error"] = result.TranscriptErr.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// CloseSession abandons a session, releasing the device unconditionally.
func (h *CaptureHandler) CloseSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid session ID"})
		return
	}

	if err := h.manager.CloseSession(id); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Session not found"})
			return
		}
		// The session is gone either way; report the teardown noise and move on.
		h.logger.WithError(err).Warn("capture session teardown reported an error")
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *CaptureHandler) respondCaptureError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Session not found"})
	case errors.Is(err, capture.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"success": false, "message": err.Error()})
	default:
		h.logger.WithError(err).Error("capture session operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
	}
}
