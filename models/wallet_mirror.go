package models

import "time"

// WalletMirror mirrors a wallet registered with the wallet service. The newest active wallet
// of a user becomes Investor.TrustWalletAddress.
type WalletMirror struct {
	ID        string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID    string    `gorm:"not null;index" json:"user_id"` // Investor.ExternalUserID
	Chain     string    `gorm:"type:varchar(64);not null;index" json:"chain"`
	Address   string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"address"`
	IsActive  bool      `gorm:"not null" json:"is_active"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (WalletMirror) TableName() string {
	return "wallet_mirror"
}
