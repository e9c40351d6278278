package models

import (
	"time"

	"gorm.io/gorm"
)

// VerificationStatus mirrors the profile service's KYC state.
type VerificationStatus string

const (
	VerificationNone     VerificationStatus = "none"
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationRejected VerificationStatus = "rejected"
)

// Investor is a local snapshot of the profile service's user, populated by the sync worker.
// The ledger only reads it to gate submissions.
type Investor struct {
	ID                 string             `gorm:"primaryKey;type:uuid" json:"id"`
	ExternalUserID     string             `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username           string             `gorm:"index" json:"username"`
	Email              string             `gorm:"index" json:"email,omitempty"`
	FirstName          *string            `json:"first_name,omitempty"`
	LastName           *string            `json:"last_name,omitempty"`
	IsVerified         bool               `gorm:"not null;default:false" json:"is_verified"`
	VerificationStatus VerificationStatus `gorm:"type:varchar(16);not null;default:'none'" json:"verification_status"`
	TrustWalletAddress *string            `gorm:"type:varchar(128)" json:"trust_wallet_address,omitempty"`
	ReferredByID       *string            `json:"referred_by_id,omitempty"`
	CreatedAt          time.Time          `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time          `json:"updated_at" gorm:"autoUpdateTime"`

	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Verified reports whether the investor may submit requests.
func (i *Investor) Verified() bool {
	return i.IsVerified && i.VerificationStatus == VerificationVerified
}

// DisplayName is the best human label for messages.
func (i *Investor) DisplayName() string {
	switch {
	case i.FirstName != nil && *i.FirstName != "":
		return *i.FirstName
	case i.Username != "":
		return i.Username
	default:
		return i.Email
	}
}
