package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// StoryAsset is one piece of content attached to a story session. Exactly one
// of StoragePath/TextContent is populated: binary assets carry a storage path,
// text and transcript assets carry inline text.
type StoryAsset struct {
	Base
	StorySessionID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"story_session_id"`
	AssetType       string          `gorm:"type:varchar(50);not null;index" json:"asset_type"`
	SourceType      string          `gorm:"type:varchar(50);not null;index" json:"source_type"`
	StoragePath     *string         `gorm:"type:varchar(500)" json:"storage_path,omitempty"`
	TextContent     *string         `gorm:"type:text" json:"text_content,omitempty"`
	MIMEType        *string         `gorm:"type:varchar(100)" json:"mime_type,omitempty"`
	DurationSeconds *int            `json:"duration_seconds,omitempty"`
	WaveformPeaks   pq.Float64Array `gorm:"type:float[]" json:"waveform_peaks,omitempty"`
	Metadata        datatypes.JSON  `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedByUserID *uuid.UUID      `gorm:"type:uuid" json:"created_by_user_id,omitempty"`

	StorySession StorySession `gorm:"foreignKey:StorySessionID" json:"-"`
}

func (StoryAsset) TableName() string {
	return "story_assets"
}

// Asset type constants
const (
	AssetTypeAudio         = "audio"
	AssetTypeVideo         = "video"
	AssetTypePhoto         = "photo"
	AssetTypeText          = "text"
	AssetTypeExternalMedia = "external_media"
)

// Source type constants
const (
	SourceTypeBrowserRecording = "browser_recording"
	SourceTypeFileUpload       = "file_upload"
	SourceTypeTranscription    = "transcription"
	SourceTypeText             = "text"
	SourceTypeExternalLink     = "external_link"
)

// IsTranscript reports whether the asset is a transcription-derived text
// asset. Transcripts are never rendered as standalone primary content; they
// are resolved as companion text of the media asset that produced them.
func (a *StoryAsset) IsTranscript() bool {
	return a.AssetType == AssetTypeText && a.SourceType == SourceTypeTranscription
}

// IsTranscribable reports whether the asset can be handed to the speech
// service.
func (a *StoryAsset) IsTranscribable() bool {
	return (a.AssetType == AssetTypeAudio || a.AssetType == AssetTypeVideo) && a.StoragePath != nil
}
