package services

import (
	"context"
	"strings"
	"time"

	"portfolio-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReferralService struct {
	DB         *gorm.DB
	ExpiryDays int
	Now        func() time.Time
}

func NewReferralService(db *gorm.DB, expiryDays int) *ReferralService {
	return &ReferralService{DB: db, ExpiryDays: expiryDays, Now: time.Now}
}

// RecordReferral links referredID to referrerID. A referred user keeps their first referral;
// later calls return it unchanged.
func (s *ReferralService) RecordReferral(ctx context.Context, referrerID, referredID string) (*models.Referral, error) {
	referrerID, referredID = strings.TrimSpace(referrerID), strings.TrimSpace(referredID)
	if referrerID == "" || referredID == "" {
		return nil, validationf("referrer and referred user are required")
	}
	if referrerID == referredID {
		return nil, validationf("users cannot refer themselves")
	}
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	ref := &models.Referral{
		ID:              uuid.NewString(),
		ReferrerID:      referrerID,
		ReferredID:      referredID,
		RewardExpiresAt: now.AddDate(0, 0, s.ExpiryDays),
	}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "referred_id"}}, DoNothing: true}).
		Create(ref)
	if res.Error != nil {
		return nil, internal("record referral", res.Error)
	}
	if res.RowsAffected == 0 {
		var existing models.Referral
		if err := s.DB.WithContext(ctx).Where("referred_id = ?", referredID).First(&existing).Error; err != nil {
			return nil, lookup(err, "referral for user", referredID)
		}
		return &existing, nil
	}
	logrus.WithFields(logrus.Fields{"referrer_id": referrerID, "referred_id": referredID}).Info("referral recorded")
	return ref, nil
}

// ListReferrals returns the referrals made by referrerID, newest first.
func (s *ReferralService) ListReferrals(ctx context.Context, referrerID string, pq PageQuery) (Page[models.Referral], error) {
	q := s.DB.WithContext(ctx).Model(&models.Referral{}).Where("referrer_id = ?", referrerID)
	page, err := paginate[models.Referral](q, pq, map[string]string{"createdAt": "created_at", "expiresAt": "reward_expires_at"}, "created_at")
	if err != nil {
		return page, internal("list referrals", err)
	}
	return page, nil
}

// ReferralTxFilter selects referral reward transactions.
type ReferralTxFilter struct {
	ReferrerID string
	Status     models.RequestStatus
	PageQuery
}

func (s *ReferralService) ListTransactions(ctx context.Context, f ReferralTxFilter) (Page[models.ReferralTransaction], error) {
	if f.Status != "" && !f.Status.Valid() {
		return Page[models.ReferralTransaction]{}, validationf("invalid status %q", f.Status)
	}
	q := s.DB.WithContext(ctx).Model(&models.ReferralTransaction{})
	if f.ReferrerID != "" {
		q = q.Where("referrer_id = ?", f.ReferrerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	page, err := paginate[models.ReferralTransaction](q, f.PageQuery,
		map[string]string{"createdAt": "created_at", "reward": "reward_amount", "status": "status"}, "created_at")
	if err != nil {
		return page, internal("list referral transactions", err)
	}
	return page, nil
}

// ReferralStats summarizes a referrer's referrals and rewards.
type ReferralStats struct {
	TotalReferrals   int64   `json:"total_referrals"`
	Claimed          int64   `json:"claimed"`
	Pending          int64   `json:"pending"`
	Expired          int64   `json:"expired"`
	RewardsEarned    float64 `json:"rewards_earned"`
	PendingRewards   float64 `json:"pending_rewards"`
	ReferredDeposits float64 `json:"referred_deposits"`
}

func (s *ReferralService) Stats(ctx context.Context, referrerID string) (*ReferralStats, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	var refs []models.Referral
	if err := s.DB.WithContext(ctx).Where("referrer_id = ?", referrerID).Find(&refs).Error; err != nil {
		return nil, internal("load referrals", err)
	}
	stats := &ReferralStats{TotalReferrals: int64(len(refs))}
	for i := range refs {
		switch {
		case refs[i].RewardClaimed:
			stats.Claimed++
		case refs[i].Claimable(now):
			stats.Pending++
		default:
			stats.Expired++
		}
	}

	var txs []models.ReferralTransaction
	if err := s.DB.WithContext(ctx).Where("referrer_id = ?", referrerID).Find(&txs).Error; err != nil {
		return nil, internal("load referral transactions", err)
	}
	earned, pending, deposits := decimal.Zero, decimal.Zero, decimal.Zero
	for _, t := range txs {
		switch t.Status {
		case models.StatusApproved:
			earned = earned.Add(decimal.NewFromFloat(t.RewardAmount))
			deposits = deposits.Add(decimal.NewFromFloat(t.ReferredDepositAmount))
		case models.StatusPending:
			pending = pending.Add(decimal.NewFromFloat(t.RewardAmount))
		}
	}
	stats.RewardsEarned = earned.Round(8).InexactFloat64()
	stats.PendingRewards = pending.Round(8).InexactFloat64()
	stats.ReferredDeposits = deposits.Round(8).InexactFloat64()
	return stats, nil
}
