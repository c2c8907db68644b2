package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"timeline/internal/logging"
	"timeline/internal/models"
)

type PostRepository struct {
	base
}

func NewPostRepository(db *gorm.DB, logger logging.Logger) *PostRepository {
	return &PostRepository{base: newBase(db, logger)}
}

// Create inserts p. Timestamp is assigned here when unset.
func (r *PostRepository) Create(ctx context.Context, p *models.Post) (err error) {
	start := time.Now()
	defer func() { r.logOperation(ctx, "create", p, start, err, map[string]interface{}{"user_id": p.UserID}) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if p.Timestamp.IsZero() {
		p.Timestamp = r.db.NowFunc()
	}
	return r.withTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Omit(clause.Associations).Create(p).Error
	})
}

// Timeline returns every post with its author, newest first.
func (r *PostRepository) Timeline(ctx context.Context) ([]models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []models.Post
	err := r.newestFirst(r.db.WithContext(ctx)).Preload("User").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ByUser returns the posts of one user, newest first.
func (r *PostRepository) ByUser(ctx context.Context, userID int64) ([]models.Post, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []models.Post
	err := r.newestFirst(r.db.WithContext(ctx)).Where("user_id = ?", userID).Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostRepository) newestFirst(q *gorm.DB) *gorm.DB {
	return q.Order("timestamp DESC").Order("id DESC")
}
