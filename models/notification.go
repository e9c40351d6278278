package models

import (
	"time"

	gorm "gorm.io/gorm"
)

// Audience separates per-user notifications from the shared admin inbox.
type Audience string

const (
	AudienceUser  Audience = "user"
	AudienceAdmin Audience = "admin"
)

// Notification is a stored message shown in a user's or the admins' inbox.
type Notification struct {
	ID        string         `gorm:"primaryKey;type:uuid" json:"id"`
	UserID    string         `gorm:"index" json:"user_id,omitempty"`
	Audience  Audience       `gorm:"type:varchar(8);index;not null" json:"audience"`
	Title     string         `gorm:"not null" json:"title"`
	Message   string         `gorm:"type:text;not null" json:"message"`
	Read      bool           `gorm:"default:false;index" json:"read"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
