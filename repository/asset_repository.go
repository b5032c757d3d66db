package repository

import (
	"github.com/keepsakehq/keepsake/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StoryAssetRepository interface {
	BaseRepository[models.StoryAsset]
	GetByStoryID(storyID uuid.UUID) ([]*models.StoryAsset, error)
	GetMediaByStoryID(storyID uuid.UUID) ([]*models.StoryAsset, error)
	GetTranscriptsByStoryID(storyID uuid.UUID) ([]*models.StoryAsset, error)
	GetTranscriptBySourceAssetID(storyID, sourceAssetID uuid.UUID) (*models.StoryAsset, error)
	DeleteTranscriptsBySourceAssetID(storyID, sourceAssetID uuid.UUID) error
}

type StoryAssetRepositoryImpl struct {
	*BaseRepositoryImpl[models.StoryAsset]
}

func NewStoryAssetRepository(db *gorm.DB) StoryAssetRepository {
	return &StoryAssetRepositoryImpl{
		BaseRepositoryImpl: NewBaseRepository[models.StoryAsset](db),
	}
}

// GetByStoryID returns all assets for a story in display order. Insertion
// order carries no meaning; display order derives from asset type, then
// creation time.
func (r *StoryAssetRepositoryImpl) GetByStoryID(storyID uuid.UUID) ([]*models.StoryAsset, error) {
	var assets []*models.StoryAsset
	err := r.db.Where("story_session_id = ?", storyID).
		Order("asset_type ASC, created_at ASC").
		Find(&assets).Error
	return assets, err
}

// GetMediaByStoryID returns the audio/video assets of a story, the only
// assets that qualify as a transcription source.
func (r *StoryAssetRepositoryImpl) GetMediaByStoryID(storyID uuid.UUID) ([]*models.StoryAsset, error) {
	var assets []*models.StoryAsset
	err := r.db.Where("story_session_id = ? AND asset_type IN ?", storyID, []string{models.AssetTypeAudio, models.AssetTypeVideo}).
		Order("created_at ASC").
		Find(&assets).Error
	return assets, err
}

func (r *StoryAssetRepositoryImpl) GetTranscriptsByStoryID(storyID uuid.UUID) ([]*models.StoryAsset, error) {
	var assets []*models.StoryAsset
	err := r.db.Where("story_session_id = ? AND asset_type = ? AND source_type = ?",
		storyID, models.AssetTypeText, models.SourceTypeTranscription).
		Order("created_at ASC").
		Find(&assets).Error
	return assets, err
}

// GetTranscriptBySourceAssetID resolves the companion transcript of a media
// asset through the source_asset_id metadata link.
func (r *StoryAssetRepositoryImpl) GetTranscriptBySourceAssetID(storyID, sourceAssetID uuid.UUID) (*models.StoryAsset, error) {
	var asset models.StoryAsset
	err := r.db.Where("story_session_id = ? AND asset_type = ? AND source_type = ? AND metadata->>'source_asset_id' = ?",
		storyID, models.AssetTypeText, models.SourceTypeTranscription, sourceAssetID.String()).
		Order("created_at DESC").
		First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *StoryAssetRepositoryImpl) DeleteTranscriptsBySourceAssetID(storyID, sourceAssetID uuid.UUID) error {
	return r.db.Where("story_session_id = ? AND asset_type = ? AND source_type = ? AND metadata->>'source_asset_id' = ?",
		storyID, models.AssetTypeText, models.SourceTypeTranscription, sourceAssetID.String()).
		Delete(&models.StoryAsset{}).Error
}
