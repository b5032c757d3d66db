package models

import (
	"github.com/google/uuid"
)

// StorySession is the durable parent record for one user-authored story.
// It is created once when the user finalizes title and metadata; assets are
// attached incrementally afterward. Deletion is a soft delete only.
type StorySession struct {
	Base
	UserID uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Title  string    `gorm:"not null" json:"title"`

	Assets []StoryAsset `gorm:"foreignKey:StorySessionID" json:"assets,omitempty"`
}

func (StorySession) TableName() string {
	return "story_sessions"
}
