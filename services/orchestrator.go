package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"portfolio-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Action is an admin decision on a pending request.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Decision is the admin input to every decide operation.
type Decision struct {
	Action          Action
	RejectionReason string
	DecidedBy       string
}

func (d Decision) validate() error {
	switch d.Action {
	case ActionApprove:
		return nil
	case ActionReject:
		if strings.TrimSpace(d.RejectionReason) == "" {
			return validationf("rejection reason is required when rejecting")
		}
		return nil
	default:
		return validationf("action must be approve or reject, got %q", d.Action)
	}
}

func (d Decision) status() models.RequestStatus {
	if d.Action == ActionApprove {
		return models.StatusApproved
	}
	return models.StatusRejected
}

func (d Decision) reason() string {
	if d.Action == ActionReject {
		return strings.TrimSpace(d.RejectionReason)
	}
	return ""
}

// referralRewardTolerance is the accepted gap between a reward and deposit × percentage.
var referralRewardTolerance = decimal.RequireFromString("0.01")

// Orchestrator applies admin decisions. Each decision runs as one transaction covering the
// status transition, the portfolio effect and the history mirror; notifications go out after
// commit and never affect the outcome.
type Orchestrator struct {
	DB       *gorm.DB
	History  *HistoryService
	Notifier Notifier

	// ReferralRewardPercent of a referred user's first approved deposit becomes a pending
	// referral reward. Zero disables referral rewards.
	ReferralRewardPercent float64

	Now func() time.Time
}

func NewOrchestrator(db *gorm.DB, notifier Notifier, referralRewardPercent float64) *Orchestrator {
	return &Orchestrator{
		DB:                    db,
		History:               NewHistoryService(db),
		Notifier:              notifier,
		ReferralRewardPercent: referralRewardPercent,
		Now:                   time.Now,
	}
}

func (o *Orchestrator) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

// transition moves the pending row id of model to the decided status. The status predicate on
// the update is the authoritative guard against a concurrent decision.
func transition(tx *gorm.DB, model interface{}, what, id string, updates map[string]interface{}) error {
	res := tx.Model(model).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return internal("update "+what, res.Error)
	}
	if res.RowsAffected != 1 {
		return invalidStatef("%s %s is already decided", what, id)
	}
	return nil
}

// DecideTransaction approves or rejects a pending deposit or withdrawal. Approval credits or
// debits the request's plan bucket and refreshes the bucket's return-rate bounds from the
// catalog. A second decision on the same request fails with ErrInvalidState.
func (o *Orchestrator) DecideTransaction(ctx context.Context, id string, d Decision) (*models.TransactionRequest, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	var current models.TransactionRequest
	if err := o.DB.WithContext(ctx).Where("id = ?", id).First(&current).Error; err != nil {
		return nil, lookup(err, "transaction request", id)
	}
	if current.Status != models.StatusPending {
		return nil, invalidStatef("transaction request %s is already %s", id, current.Status)
	}

	now := o.now()
	log := logrus.WithFields(logrus.Fields{"request_id": id, "action": d.Action})
	var req models.TransactionRequest
	var portfolio *models.Portfolio

	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&req).Error
		if err != nil {
			return lookup(err, "transaction request", id)
		}
		if req.Status != models.StatusPending {
			return invalidStatef("transaction request %s is already %s", id, req.Status)
		}
		if err := transition(tx, &models.TransactionRequest{}, "transaction request", id, map[string]interface{}{
			"status":           d.status(),
			"rejection_reason": d.reason(),
			"decided_at":       now,
		}); err != nil {
			return err
		}

		if d.Action == ActionApprove {
			var plan models.Plan
			if err := tx.Where("name = ?", req.Plan).First(&plan).Error; err != nil {
				return internal("load plan "+string(req.Plan), err)
			}
			portfolio, err = mutatePortfolio(tx, byUser(req.UserID), true, func(p *models.Portfolio) (bool, error) {
				b := p.EnsureBucket(req.Plan)
				switch req.Type {
				case models.RequestDeposit:
					b.Deposit(req.Amount, now)
				case models.RequestWithdrawal:
					b.Withdraw(req.Amount, now)
				default:
					return false, internal("apply request", errors.New("unknown request type "+string(req.Type)))
				}
				b.SyncReturnRate(&plan)
				return true, nil
			})
			if err != nil {
				return err
			}
			if req.Type == models.RequestDeposit {
				if err := o.openReferralReward(tx, &req, now); err != nil {
					return err
				}
			}
		}

		return o.History.MirrorStatus(tx, id, d.status())
	})
	if err != nil {
		log.WithError(err).Warn("transaction decision aborted")
		return nil, internal("decide transaction request", err)
	}

	req.Status, req.RejectionReason, req.DecidedAt = d.status(), d.reason(), &now
	fields := logrus.Fields{"user_id": req.UserID, "type": req.Type, "plan": req.Plan, "amount": req.Amount}
	if portfolio != nil {
		fields["current_value"] = portfolio.CurrentValue
	}
	log.WithFields(fields).Info("transaction request decided")

	title, msg := decisionMessage(string(req.Type), req.Amount, req.Plan, req.Status, req.RejectionReason)
	o.notify(ctx, req.UserID, msg, title)
	return &req, nil
}

// openReferralReward creates the pending referral reward for a referred user's first approved
// deposit while the referral is unclaimed and unexpired.
func (o *Orchestrator) openReferralReward(tx *gorm.DB, req *models.TransactionRequest, now time.Time) error {
	if o.ReferralRewardPercent <= 0 {
		return nil
	}
	var ref models.Referral
	err := tx.Where("referred_id = ?", req.UserID).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return internal("load referral", err)
	}
	if !ref.Claimable(now) {
		return nil
	}

	var earlier int64
	if err := tx.Model(&models.TransactionRequest{}).
		Where("user_id = ? AND type = ? AND status = ? AND id <> ?", req.UserID, models.RequestDeposit, models.StatusApproved, req.ID).
		Count(&earlier).Error; err != nil {
		return internal("count deposits", err)
	}
	if earlier > 0 {
		return nil
	}
	var open int64
	if err := tx.Model(&models.ReferralTransaction{}).
		Where("referral_id = ? AND status IN ?", ref.ID, []models.RequestStatus{models.StatusPending, models.StatusApproved}).
		Count(&open).Error; err != nil {
		return internal("count referral rewards", err)
	}
	if open > 0 {
		return nil
	}

	pct := o.ReferralRewardPercent
	reward := decimal.NewFromFloat(req.Amount).
		Mul(decimal.NewFromFloat(pct)).
		Div(decimal.NewFromInt(100)).
		Round(8).InexactFloat64()
	rt := &models.ReferralTransaction{
		ID:                    uuid.NewString(),
		ReferralID:            ref.ID,
		ReferrerID:            ref.ReferrerID,
		ReferredID:            ref.ReferredID,
		ReferredPlan:          req.Plan,
		ReferredDepositAmount: req.Amount,
		RewardAmount:          reward,
		Percentage:            &pct,
		Status:                models.StatusPending,
		TransactionRequestID:  req.ID,
	}
	if err := tx.Create(rt).Error; err != nil {
		return internal("create referral reward", err)
	}
	logrus.WithFields(logrus.Fields{"referrer_id": ref.ReferrerID, "referred_id": ref.ReferredID, "reward": reward}).
		Info("referral reward opened")
	return nil
}

// DecideInvestment approves or rejects an investment request. It changes status and the
// history mirror only; no portfolio bucket moves.
func (o *Orchestrator) DecideInvestment(ctx context.Context, id string, d Decision) (*models.InvestRequest, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	var current models.InvestRequest
	if err := o.DB.WithContext(ctx).Where("id = ?", id).First(&current).Error; err != nil {
		return nil, lookup(err, "investment request", id)
	}
	if current.Status != models.StatusPending {
		return nil, invalidStatef("investment request %s is already %s", id, current.Status)
	}

	now := o.now()
	var req models.InvestRequest
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&req).Error
		if err != nil {
			return lookup(err, "investment request", id)
		}
		if req.Status != models.StatusPending {
			return invalidStatef("investment request %s is already %s", id, req.Status)
		}
		if err := transition(tx, &models.InvestRequest{}, "investment request", id, map[string]interface{}{
			"status":           d.status(),
			"rejection_reason": d.reason(),
			"decided_at":       now,
		}); err != nil {
			return err
		}
		return o.History.MirrorStatus(tx, id, d.status())
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"investment_id": id, "action": d.Action}).Warn("investment decision aborted")
		return nil, internal("decide investment request", err)
	}

	req.Status, req.RejectionReason, req.DecidedAt = d.status(), d.reason(), &now
	logrus.WithFields(logrus.Fields{"investment_id": id, "user_id": req.UserID, "status": req.Status}).
		Info("investment request decided")

	title, msg := decisionMessage("investment", req.Amount, req.Plan, req.Status, req.RejectionReason)
	o.notify(ctx, req.UserID, msg, title)
	return &req, nil
}

// ReferralDecision extends Decision with the admin's optional percentage cross-check.
type ReferralDecision struct {
	Decision
	Percentage *float64
}

// DecideReferral approves or rejects a pending referral reward. Approval credits the reward to
// the referrer's portfolio outside any plan bucket and marks the referral claimed.
func (o *Orchestrator) DecideReferral(ctx context.Context, id string, d ReferralDecision) (*models.ReferralTransaction, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	if d.Percentage != nil && (*d.Percentage <= 0 || *d.Percentage > 100 || math.IsNaN(*d.Percentage)) {
		return nil, validationf("percentage must be within (0, 100]")
	}
	var current models.ReferralTransaction
	if err := o.DB.WithContext(ctx).Where("id = ?", id).First(&current).Error; err != nil {
		return nil, lookup(err, "referral transaction", id)
	}
	if current.Status != models.StatusPending {
		return nil, invalidStatef("referral transaction %s is already %s", id, current.Status)
	}
	if d.Action == ActionApprove && d.Percentage != nil {
		if err := checkRewardPercentage(current.RewardAmount, current.ReferredDepositAmount, *d.Percentage); err != nil {
			return nil, err
		}
	}

	now := o.now()
	var rt models.ReferralTransaction
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&rt).Error
		if err != nil {
			return lookup(err, "referral transaction", id)
		}
		if rt.Status != models.StatusPending {
			return invalidStatef("referral transaction %s is already %s", id, rt.Status)
		}

		updates := map[string]interface{}{
			"status":           d.status(),
			"rejection_reason": d.reason(),
			"approved_by":      d.DecidedBy,
		}
		if d.Percentage != nil {
			updates["percentage"] = *d.Percentage
		}
		if d.Action == ActionApprove {
			updates["approved_at"] = now
		}
		if err := transition(tx, &models.ReferralTransaction{}, "referral transaction", id, updates); err != nil {
			return err
		}
		if d.Action != ActionApprove {
			return nil
		}

		res := tx.Model(&models.Referral{}).
			Where("id = ? AND reward_claimed = ?", rt.ReferralID, false).
			Updates(map[string]interface{}{"reward_claimed": true, "claimed_at": now})
		if res.Error != nil {
			return internal("claim referral", res.Error)
		}
		if res.RowsAffected != 1 {
			return invalidStatef("referral %s reward is already claimed", rt.ReferralID)
		}

		_, err = mutatePortfolio(tx, byUser(rt.ReferrerID), true, func(p *models.Portfolio) (bool, error) {
			p.AddReferralReward(rt.RewardAmount, rt.ReferredDepositAmount)
			return true, nil
		})
		return err
	})
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"referral_tx_id": id, "action": d.Action}).Warn("referral decision aborted")
		return nil, internal("decide referral transaction", err)
	}

	rt.Status, rt.RejectionReason, rt.ApprovedBy = d.status(), d.reason(), d.DecidedBy
	if d.Percentage != nil {
		rt.Percentage = d.Percentage
	}
	if d.Action == ActionApprove {
		rt.ApprovedAt = &now
	}
	logrus.WithFields(logrus.Fields{"referral_tx_id": id, "referrer_id": rt.ReferrerID, "status": rt.Status, "reward": rt.RewardAmount}).
		Info("referral reward decided")

	title, msg := decisionMessage("referral reward", rt.RewardAmount, rt.ReferredPlan, rt.Status, rt.RejectionReason)
	o.notify(ctx, rt.ReferrerID, msg, title)
	return &rt, nil
}

func checkRewardPercentage(reward, deposit, pct float64) error {
	expected := decimal.NewFromFloat(deposit).Mul(decimal.NewFromFloat(pct)).Div(decimal.NewFromInt(100))
	if expected.Sub(decimal.NewFromFloat(reward)).Abs().GreaterThan(referralRewardTolerance) {
		return validationf("reward %s does not match %v%% of deposit %v (expected %s)",
			decimal.NewFromFloat(reward).String(), pct, deposit, expected.Round(2).String())
	}
	return nil
}

// notify sends a best-effort user notification; failures are logged and dropped.
func (o *Orchestrator) notify(ctx context.Context, userID, message, title string) {
	if o.Notifier == nil {
		return
	}
	if err := o.Notifier.Notify(ctx, userID, message, title); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("notification failed")
	}
}
