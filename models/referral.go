package models

import "time"

// Referral links a referred investor to the investor who invited them. The reward can be
// claimed once, on the referred investor's first approved deposit before RewardExpiresAt.
type Referral struct {
	ID              string     `gorm:"primaryKey;type:uuid" json:"id"`
	ReferrerID      string     `gorm:"index;not null" json:"referrer_id"`       // Investor.ExternalUserID
	ReferredID      string     `gorm:"uniqueIndex;not null" json:"referred_id"` // Investor.ExternalUserID
	RewardExpiresAt time.Time  `gorm:"index;not null" json:"reward_expires_at"`
	RewardClaimed   bool       `gorm:"not null;default:false" json:"reward_claimed"`
	ClaimedAt       *time.Time `json:"claimed_at,omitempty"`

	Timestamps
}

// Claimable reports whether the referral can still produce a reward at now.
func (r *Referral) Claimable(now time.Time) bool {
	return !r.RewardClaimed && now.Before(r.RewardExpiresAt)
}

// ReferralTransaction is a pending referral reward awaiting an admin decision.
type ReferralTransaction struct {
	ID                    string        `gorm:"primaryKey;type:uuid" json:"id"`
	ReferralID            string        `gorm:"type:uuid;index;not null" json:"referral_id"`
	ReferrerID            string        `gorm:"index;not null" json:"referrer_id"`
	ReferredID            string        `gorm:"index;not null" json:"referred_id"`
	ReferredPlan          PlanName      `gorm:"type:varchar(16);not null" json:"referred_plan"`
	ReferredDepositAmount float64       `gorm:"type:numeric(20,8);not null" json:"referred_deposit_amount"`
	RewardAmount          float64       `gorm:"type:numeric(20,8);not null" json:"reward_amount"`
	Percentage            *float64      `gorm:"type:numeric(10,4)" json:"percentage,omitempty"`
	Status                RequestStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	RejectionReason       string        `gorm:"type:text" json:"rejection_reason,omitempty"`
	ApprovedBy            string        `json:"approved_by,omitempty"`
	ApprovedAt            *time.Time    `json:"approved_at,omitempty"`
	TransactionRequestID  string        `gorm:"type:uuid;uniqueIndex;not null" json:"transaction_request_id"`

	Timestamps
}
