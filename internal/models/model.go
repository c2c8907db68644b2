package models

import "time"

const (
	MaxNameLength    = 50
	MaxContentLength = 100
)

type User struct {
	ID            int64  `gorm:"primaryKey"`
	Name          string `gorm:"size:50;not null;uniqueIndex"`
	Age           int
	ImageFilename string `gorm:"size:255"`
	PasswordHash  string `gorm:"size:255;not null"`
	Posts         []Post
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (User) TableName() string { return "users" }

type Post struct {
	ID        int64     `gorm:"primaryKey"`
	Content   string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"not null;index"`
	UserID    int64     `gorm:"not null;index"`
	User      User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;"`
}

func (Post) TableName() string { return "posts" }

// Session is a server-side login session for the SQL session backend.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    int64     `gorm:"not null;index"`
	ExpiresAt time.Time `gorm:"not null"`
}

func (Session) TableName() string { return "sessions" }

// All lists every model handled by the migrator.
func All() []interface{} {
	return []interface{}{&User{}, &Post{}, &Session{}}
}
