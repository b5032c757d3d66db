package repository

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseRepository is the persistence surface shared by story sessions and
// their assets. It is deliberately narrow: rows are created, fetched by id
// and soft-deleted, never updated in place. Committed asset content is
// immutable; corrections happen by replacing rows.
type BaseRepository[T any] interface {
	Create(entity *T) error
	GetByID(id uuid.UUID) (*T, error)
	Delete(id uuid.UUID) error
}

type BaseRepositoryImpl[T any] struct {
	db *gorm.DB
}

func NewBaseRepository[T any](db *gorm.DB) *BaseRepositoryImpl[T] {
	return &BaseRepositoryImpl[T]{db: db}
}

func (r *BaseRepositoryImpl[T]) Create(entity *T) error {
	return r.db.Create(entity).Error
}

func (r *BaseRepositoryImpl[T]) GetByID(id uuid.UUID) (*T, error) {
	var entity T
	if err := r.db.First(&entity, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entity, nil
}

// Delete tombstones the row through gorm.DeletedAt.
func (r *BaseRepositoryImpl[T]) Delete(id uuid.UUID) error {
	var entity T
	return r.db.Delete(&entity, "id = ?", id).Error
}
