package gormdb

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jpirok/cleanarchitecture/domain"
)

// Repository reads entities of type T.
type Repository[T any] struct {
	db *gorm.DB
}

func NewRepository[T any](c *Context) *Repository[T] {
	return &Repository[T]{db: c.db}
}

// Get returns the entity with id or domain.ErrNotFound.
func (r *Repository[T]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	var out T
	if err := r.db.WithContext(ctx).First(&out, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *Repository[T]) List(ctx context.Context) ([]T, error) {
	var out []T
	if err := r.db.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Where returns the entities matching query.
func (r *Repository[T]) Where(ctx context.Context, query any, args ...any) ([]T, error) {
	var out []T
	if err := r.db.WithContext(ctx).Where(query, args...).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(new(T)).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repository[T]) Any(ctx context.Context) (bool, error) {
	var out []T
	if err := r.db.WithContext(ctx).Limit(1).Find(&out).Error; err != nil {
		return false, err
	}
	return len(out) > 0, nil
}
