package models

import "time"

// RequestType is the kind of a TransactionRequest.
type RequestType string

const (
	RequestDeposit    RequestType = "deposit"
	RequestWithdrawal RequestType = "withdrawal"
)

func (t RequestType) Valid() bool {
	return t == RequestDeposit || t == RequestWithdrawal
}

// TransactionRequest is a user-submitted deposit or withdrawal awaiting an admin decision.
// Amount, Type, Plan and UserID never change after creation; Status changes exactly once.
type TransactionRequest struct {
	ID            string      `gorm:"primaryKey;type:uuid" json:"id"`
	UserID        string      `gorm:"index;not null" json:"user_id"` // Investor.ExternalUserID
	Amount        float64     `gorm:"type:numeric(20,8);not null" json:"amount"`
	Type          RequestType `gorm:"type:varchar(16);index;not null" json:"type"`
	Plan          PlanName    `gorm:"type:varchar(16);index;not null" json:"plan"`
	WalletAddress string      `gorm:"type:varchar(128)" json:"wallet_address"`
	WalletTxID    *string     `gorm:"type:varchar(128)" json:"wallet_tx_id,omitempty"`

	// Proof-of-payment image: public URL plus the object key needed to delete it.
	TransactionImage    string `gorm:"type:text" json:"transaction_image,omitempty"`
	TransactionImageKey string `gorm:"type:text" json:"-"`

	Status          RequestStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	RejectionReason string        `gorm:"type:text" json:"rejection_reason,omitempty"`
	DecidedAt       *time.Time    `json:"decided_at,omitempty"`

	Timestamps
}

// InvestRequest is the restricted, withdrawal-like request variant. Approval is status-only.
type InvestRequest struct {
	ID              string        `gorm:"primaryKey;type:uuid" json:"id"`
	UserID          string        `gorm:"index;not null" json:"user_id"`
	Amount          float64       `gorm:"type:numeric(20,8);not null" json:"amount"`
	WalletAddress   string        `gorm:"type:varchar(128);not null" json:"wallet_address"`
	Plan            PlanName      `gorm:"type:varchar(16);index;not null" json:"plan"`
	Reason          string        `gorm:"type:text;not null" json:"reason"`
	Status          RequestStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	RejectionReason string        `gorm:"type:text" json:"rejection_reason,omitempty"`
	DecidedAt       *time.Time    `json:"decided_at,omitempty"`

	Timestamps
}
