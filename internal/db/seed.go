package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"timeline/internal/models"
)

const (
	AdminName = "admin"
	adminAge  = 30
)

// HashFunc turns a plaintext password into a stored digest.
type HashFunc func(plain string) (string, error)

// SeedAdmin creates the "admin" user unless a user with that name exists.
// It reports whether a user was created.
func SeedAdmin(ctx context.Context, d *gorm.DB, password string, hash HashFunc) (bool, error) {
	created := false
	err := d.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.User
		err := tx.Where("name = ?", AdminName).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		digest, err := hash(password)
		if err != nil {
			return fmt.Errorf("hash admin password: %w", err)
		}
		admin := models.User{Name: AdminName, Age: adminAge, PasswordHash: digest}
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	return created, nil
}
