package auth

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"timeline/internal/models"
)

// Record is one server-side session.
type Record struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
}

// Store keeps sessions on the server so a logout revokes the cookie.
// Get returns (nil, nil) for unknown or expired sessions.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
}

// SQLStore keeps sessions in the sessions table.
type SQLStore struct {
	db *gorm.DB
}

func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Save inserts rec and prunes every expired session.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("expires_at < ?", time.Now().UTC()).Delete(&models.Session{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.Session{
			ID:        rec.ID,
			UserID:    rec.UserID,
			ExpiresAt: rec.ExpiresAt.UTC(),
		}).Error
	})
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Record, error) {
	var row models.Session
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(row.ExpiresAt) {
		return nil, nil
	}
	return &Record{ID: row.ID, UserID: row.UserID, ExpiresAt: row.ExpiresAt}, nil
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error
}
