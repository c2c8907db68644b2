package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"timeline/internal/logging"
	"timeline/internal/models"
)

type UserRepository struct {
	base
}

func NewUserRepository(db *gorm.DB, logger logging.Logger) *UserRepository {
	return &UserRepository{base: newBase(db, logger)}
}

// Create inserts u and fills in its ID. Fails with ErrNameTaken when the
// name is in use.
func (r *UserRepository) Create(ctx context.Context, u *models.User) (err error) {
	start := time.Now()
	defer func() { r.logOperation(ctx, "create", u, start, err, map[string]interface{}{"name": u.Name}) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return r.withTransaction(ctx, func(tx *gorm.DB) error {
		if err := ensureNameFree(tx, u.Name, 0); err != nil {
			return err
		}
		return nameTakenOr(tx.Omit(clause.Associations).Create(u).Error)
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetByName returns the user with the given name.
func (r *UserRepository) GetByName(ctx context.Context, name string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var u models.User
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var out []models.User
	if err := r.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Update saves the profile columns of u. Fails with ErrNameTaken when the new
// name belongs to another user.
func (r *UserRepository) Update(ctx context.Context, u *models.User) (err error) {
	start := time.Now()
	defer func() { r.logOperation(ctx, "update", u, start, err, map[string]interface{}{"id": u.ID}) }()

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	return r.withTransaction(ctx, func(tx *gorm.DB) error {
		if err := ensureNameFree(tx, u.Name, u.ID); err != nil {
			return err
		}
		res := tx.Model(&models.User{ID: u.ID}).Updates(map[string]interface{}{
			"name":           u.Name,
			"age":            u.Age,
			"image_filename": u.ImageFilename,
			"password_hash":  u.PasswordHash,
		})
		if res.Error != nil {
			return nameTakenOr(res.Error)
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// ensureNameFree fails with ErrNameTaken if a user other than selfID owns name.
func ensureNameFree(tx *gorm.DB, name string, selfID int64) error {
	var count int64
	q := tx.Model(&models.User{}).Where("name = ?", name)
	if selfID != 0 {
		q = q.Where("id <> ?", selfID)
	}
	if err := q.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrNameTaken
	}
	return nil
}

// nameTakenOr maps a unique-index violation that got past ensureNameFree
// (concurrent writers) to ErrNameTaken. PostgreSQL errors arrive translated
// by gorm; SQLite ones only carry the constraint message.
func nameTakenOr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrNameTaken
	}
	return err
}
