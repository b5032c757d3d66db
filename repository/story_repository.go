package repository

import (
	"github.com/keepsakehq/keepsake/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StorySessionRepository interface {
	BaseRepository[models.StorySession]
	GetByUserIDWithPagination(userID uuid.UUID, page, pageSize int32) ([]*models.StorySession, int64, error)
}

type StorySessionRepositoryImpl struct {
	*BaseRepositoryImpl[models.StorySession]
}

func NewStorySessionRepository(db *gorm.DB) StorySessionRepository {
	return &StorySessionRepositoryImpl{
		BaseRepositoryImpl: NewBaseRepository[models.StorySession](db),
	}
}

func (r *StorySessionRepositoryImpl) GetByUserIDWithPagination(userID uuid.UUID, page, pageSize int32) ([]*models.StorySession, int64, error) {
	var sessions []*models.StorySession
	var total int64

	offset := (page - 1) * pageSize

	err := r.db.Model(&models.StorySession{}).Where("user_id = ?", userID).Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = r.db.Where("user_id = ?", userID).
		Limit(int(pageSize)).
		Offset(int(offset)).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, 0, err
	}

	return sessions, total, nil
}
