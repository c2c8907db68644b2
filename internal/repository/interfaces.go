package repository

import (
	"context"
	"errors"

	"timeline/internal/models"
)

// ErrNameTaken is returned when a user name is already used by another user.
var ErrNameTaken = errors.New("user name already taken")

// UserRepositoryI defines operations on User entities.
// Lookups return (nil, nil) when no row matches.
type UserRepositoryI interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByName(ctx context.Context, name string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Update(ctx context.Context, u *models.User) error
}

// PostRepositoryI defines operations on Post entities.
// Listings are ordered newest first.
type PostRepositoryI interface {
	Create(ctx context.Context, p *models.Post) error
	Timeline(ctx context.Context) ([]models.Post, error)
	ByUser(ctx context.Context, userID int64) ([]models.Post, error)
}
