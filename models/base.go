package models

import (
	"time"

	"gorm.io/gorm"
)

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// RequestStatus is the one-way status of every request-like entity:
// pending -> approved | rejected, terminal afterwards.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
)

func (s RequestStatus) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

func (s RequestStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// AutoMigrate creates or updates every table owned by the ledger.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Plan{},
		&Investor{},
		&TransactionRequest{},
		&InvestRequest{},
		&TransactionHistory{},
		&Portfolio{},
		&PortfolioPlan{},
		&PricePoint{},
		&Referral{},
		&ReferralTransaction{},
		&Notification{},
		&WalletMirror{},
	)
}
