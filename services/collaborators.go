package services

import (
	"context"
	"io"

	"portfolio-ledger/models"

	"gorm.io/gorm"
)

// UserDirectory resolves the submission gate for a user.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*models.Investor, error)
}

// FileStore keeps proof-of-payment images. Only the returned URL and key are persisted.
type FileStore interface {
	Store(ctx context.Context, name string, body io.Reader, contentType string) (url, key string, err error)
	Delete(ctx context.Context, key string) error
}

// Notifier delivers best-effort messages. Callers log and drop its errors.
type Notifier interface {
	Notify(ctx context.Context, userID, message, title string) error
	NotifyAdmins(ctx context.Context, message, title string) error
}

// InvestorDirectory reads the locally mirrored investors table.
type InvestorDirectory struct {
	DB *gorm.DB
}

func NewInvestorDirectory(db *gorm.DB) *InvestorDirectory {
	return &InvestorDirectory{DB: db}
}

func (d *InvestorDirectory) GetUser(ctx context.Context, userID string) (*models.Investor, error) {
	var inv models.Investor
	if err := d.DB.WithContext(ctx).Where("external_user_id = ?", userID).First(&inv).Error; err != nil {
		return nil, lookup(err, "user", userID)
	}
	return &inv, nil
}
