package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/keepsakehq/keepsake/middleware"
	"github.com/keepsakehq/keepsake/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type StoryHandler struct {
	stories *service.StoryService
	logger  *logrus.Logger
}

func NewStoryHandler(stories *service.StoryService, logger *logrus.Logger) *StoryHandler {
	return &StoryHandler{
		stories: stories,
		logger:  logger,
	}
}

// CreateStory creates the parent story session record.
func (h *StoryHandler) CreateStory(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing user"})
		return
	}

	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request format: " + err.Error(),
		})
		return
	}

	story, err := h.stories.CreateStory(c.Request.Context(), userID, req.Title)
	if err != nil {
		h.logger.WithError(err).Error("failed to create story")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to create story: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "story": story})
}

// ListStories returns the caller's stories, paginated.
func (h *StoryHandler) ListStories(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing user"})
		return
	}

	page := queryInt32(c, "page", 1)
	pageSize := queryInt32(c, "page_size", 20)

	stories, total, err := h.stories.ListStories(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("failed to list stories")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to list stories: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stories": stories,
		"total":   total,
	})
}

// DeleteStory soft-deletes a story session.
func (h *StoryHandler) DeleteStory(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing user"})
		return
	}
	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid story ID"})
		return
	}

	if err := h.stories.DeleteStory(c.Request.Context(), storyID, userID); err != nil {
		h.respondServiceError(c, err, "Failed to delete story")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListAssets returns a story's assets with transcripts resolved as companion
// text of their media asset, never as standalone entries.
func (h *StoryHandler) ListAssets(c *gin.Context) {
	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid story ID"})
		return
	}

	assets, err := h.stories.ResolveDisplayAssets(c.Request.Context(), storyID)
	if err != nil {
		h.logger.WithError(err).Error("failed to resolve story assets")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "Failed to load assets: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"story_id": storyID,
		"assets":   assets,
	})
}

// UploadAsset is the secondary save path: a multipart file upload. The
// upload reports success even when the background transcription later
// fails.
func (h *StoryHandler) UploadAsset(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing user"})
		return
	}
	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid story ID"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing file: " + err.Error()})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Unreadable file: " + err.Error()})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Unreadable file: " + err.Error()})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	asset, err := h.stories.UploadAsset(c.Request.Context(), storyID, userID, fileHeader.Filename, contentType, data)
	if err != nil {
		h.respondServiceError(c, err, "Upload failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "asset": asset})
}

// AttachNote adds a written reflection to a story.
func (h *StoryHandler) AttachNote(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing user"})
		return
	}
	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid story ID"})
		return
	}

	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request format: " + err.Error(),
		})
		return
	}

	note, err := h.stories.AttachNote(c.Request.Context(), storyID, userID, req.Text)
	if err != nil {
		h.respondServiceError(c, err, "Failed to attach note")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "asset": note})
}

// AttachExternalMedia links media hosted elsewhere to a story.
func (h *StoryHandler) AttachExternalMedia(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "missing user"})
		return
	}
	storyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid story ID"})
		return
	}

	var req struct {
		URL string `json:"url" binding:"required,url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid request format: " + err.Error(),
		})
		return
	}

	asset, err := h.stories.AttachExternalMedia(c.Request.Context(), storyID, userID, req.URL)
	if err != nil {
		h.respondServiceError(c, err, "Failed to attach external media")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "asset": asset})
}

// PlaybackURL signs a short-lived URL for in-app playback.
func (h *StoryHandler) PlaybackURL(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid asset ID"})
		return
	}

	url, err := h.stories.PlaybackURL(c.Request.Context(), assetID)
	if err != nil {
		h.respondServiceError(c, err, "Failed to sign URL")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": url})
}

// CompanionTranscript returns the transcript text attached to a media asset.
func (h *StoryHandler) CompanionTranscript(c *gin.Context) {
	assetID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid asset ID"})
		return
	}

	transcript, err := h.stories.CompanionTranscript(c.Request.Context(), assetID)
	if err != nil {
		h.respondServiceError(c, err, "Failed to resolve transcript")
		return
	}
	if transcript == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No transcript for this asset"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"asset_id":   assetID,
		"transcript": transcript.TextContent,
	})
}

func (h *StoryHandler) respondServiceError(c *gin.Context, err error, prefix string) {
	switch {
	case errors.Is(err, service.ErrStoryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Story not found"})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "message": "Permission denied"})
	case errors.Is(err, service.ErrUnsupportedUpload):
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"success": false, "message": "Unsupported content type"})
	case errors.Is(err, service.ErrNotBinaryAsset):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Asset has no stored binary"})
	default:
		h.logger.WithError(err).Error(prefix)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": prefix + ": " + err.Error(),
		})
	}
}

func queryInt32(c *gin.Context, key string, fallback int32) int32 {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || v < 1 {
		return fallback
	}
	return int32(v)
}
