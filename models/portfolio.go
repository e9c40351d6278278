package models

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// amountPlaces is the precision every stored money figure is rounded to.
const amountPlaces = 8

// Portfolio is the per-user aggregate. Every aggregate field is derived from Plans and
// ReferralRewards by Recompute; nothing patches them directly.
type Portfolio struct {
	ID                     string          `gorm:"primaryKey;type:uuid" json:"id"`
	UserID                 string          `gorm:"uniqueIndex;not null" json:"user_id"`
	TotalInvested          float64         `gorm:"type:numeric(20,8);not null;default:0" json:"total_invested"`
	CurrentValue           float64         `gorm:"type:numeric(20,8);not null;default:0" json:"current_value"`
	TotalReturns           float64         `gorm:"type:numeric(20,8);not null;default:0" json:"total_returns"`
	TotalReturnsPercentage float64         `gorm:"type:numeric(20,8);not null;default:0" json:"total_returns_percentage"`
	ReferralRewards        float64         `gorm:"type:numeric(20,8);not null;default:0" json:"referral_rewards"`
	ReferralAmount         float64         `gorm:"type:numeric(20,8);not null;default:0" json:"referral_amount"`
	Version                int64           `gorm:"not null;default:0" json:"version"`
	Plans                  []PortfolioPlan `gorm:"foreignKey:PortfolioID" json:"plans"`

	Timestamps
}

// ReturnRate is the annual return-rate band copied from the Plan Catalog.
type ReturnRate struct {
	Min *float64 `gorm:"type:numeric(10,4)" json:"min"`
	Max *float64 `gorm:"type:numeric(10,4)" json:"max"`
}

// PortfolioPlan is one plan bucket of a portfolio.
type PortfolioPlan struct {
	ID           string     `gorm:"primaryKey;type:uuid" json:"id"`
	PortfolioID  string     `gorm:"type:uuid;not null;uniqueIndex:idx_portfolio_plan" json:"-"`
	Name         PlanName   `gorm:"type:varchar(16);not null;uniqueIndex:idx_portfolio_plan" json:"name"`
	Invested     float64    `gorm:"type:numeric(20,8);not null;default:0" json:"invested"`
	CurrentValue float64    `gorm:"type:numeric(20,8);not null;default:0" json:"current_value"`
	Returns      float64    `gorm:"type:numeric(20,8);not null;default:0" json:"returns"`
	ReturnRate   ReturnRate `gorm:"embedded;embeddedPrefix:return_rate_" json:"return_rate"`

	// AdminSetReturnRate is the annual percentage the daily accrual applies.
	AdminSetReturnRate *float64     `gorm:"type:numeric(10,4);index" json:"admin_set_return_rate,omitempty"`
	LastDailyUpdate    *time.Time   `json:"last_daily_update,omitempty"`
	PriceHistory       []PricePoint `gorm:"foreignKey:PlanID" json:"price_history,omitempty"`

	// points appended since the bucket was loaded; written by the persistence layer.
	pending []PricePoint

	Timestamps
}

// PricePoint is an append-only valuation sample of a bucket.
type PricePoint struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"-"`
	PlanID    string    `gorm:"type:uuid;index;not null" json:"-"`
	Value     float64   `gorm:"type:numeric(20,8);not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;index;not null" json:"updated_at"`
}

// NewPortfolio returns an empty portfolio with one zero bucket per catalog plan.
func NewPortfolio(userID string) *Portfolio {
	p := &Portfolio{ID: uuid.NewString(), UserID: userID}
	for _, name := range PlanNames {
		p.EnsureBucket(name)
	}
	return p
}

// Bucket returns the bucket for name, or nil.
func (p *Portfolio) Bucket(name PlanName) *PortfolioPlan {
	for i := range p.Plans {
		if p.Plans[i].Name == name {
			return &p.Plans[i]
		}
	}
	return nil
}

// EnsureBucket returns the bucket for name, appending a zero bucket if missing.
func (p *Portfolio) EnsureBucket(name PlanName) *PortfolioPlan {
	if b := p.Bucket(name); b != nil {
		return b
	}
	p.Plans = append(p.Plans, PortfolioPlan{ID: uuid.NewString(), PortfolioID: p.ID, Name: name})
	return &p.Plans[len(p.Plans)-1]
}

// SortBuckets orders Plans by catalog tier.
func (p *Portfolio) SortBuckets() {
	rank := func(n PlanName) int {
		for i, name := range PlanNames {
			if name == n {
				return i
			}
		}
		return len(PlanNames)
	}
	sort.SliceStable(p.Plans, func(i, j int) bool { return rank(p.Plans[i].Name) < rank(p.Plans[j].Name) })
}

// AddReferralReward credits a referral reward outside any plan bucket.
func (p *Portfolio) AddReferralReward(reward, depositAmount float64) {
	p.ReferralRewards = round(add(p.ReferralRewards, reward))
	p.ReferralAmount = round(add(p.ReferralAmount, depositAmount))
}

// Recompute derives every aggregate from the full bucket array.
func (p *Portfolio) Recompute() {
	invested := decimal.Zero
	value := decimal.Zero
	for i := range p.Plans {
		b := &p.Plans[i]
		b.Returns = round(sub(b.CurrentValue, b.Invested))
		invested = invested.Add(decimal.NewFromFloat(b.Invested))
		value = value.Add(decimal.NewFromFloat(b.CurrentValue))
	}
	value = value.Add(decimal.NewFromFloat(p.ReferralRewards))
	returns := value.Sub(invested)

	p.TotalInvested = invested.Round(amountPlaces).InexactFloat64()
	p.CurrentValue = value.Round(amountPlaces).InexactFloat64()
	p.TotalReturns = returns.Round(amountPlaces).InexactFloat64()
	p.TotalReturnsPercentage = 0
	if invested.IsPositive() {
		p.TotalReturnsPercentage = returns.Div(invested).Mul(decimal.NewFromInt(100)).Round(amountPlaces).InexactFloat64()
	}
}

// CheckInvariants reports the first aggregate that is not a function of the buckets.
func (p *Portfolio) CheckInvariants(tolerance float64) error {
	var invested, value float64
	for _, b := range p.Plans {
		if b.Invested < 0 || b.CurrentValue < 0 {
			return fmt.Errorf("bucket %s has a negative balance (invested=%v, current=%v)", b.Name, b.Invested, b.CurrentValue)
		}
		if math.Abs(b.Returns-(b.CurrentValue-b.Invested)) > tolerance {
			return fmt.Errorf("bucket %s returns %v != %v", b.Name, b.Returns, b.CurrentValue-b.Invested)
		}
		invested += b.Invested
		value += b.CurrentValue
	}
	value += p.ReferralRewards
	switch {
	case math.Abs(p.TotalInvested-invested) > tolerance:
		return fmt.Errorf("total_invested %v != sum %v", p.TotalInvested, invested)
	case math.Abs(p.CurrentValue-value) > tolerance:
		return fmt.Errorf("current_value %v != sum %v", p.CurrentValue, value)
	case math.Abs(p.TotalReturns-(p.CurrentValue-p.TotalInvested)) > tolerance:
		return fmt.Errorf("total_returns %v != %v", p.TotalReturns, p.CurrentValue-p.TotalInvested)
	}
	wantPct := 0.0
	if p.TotalInvested > 0 {
		wantPct = p.TotalReturns / p.TotalInvested * 100
	}
	if math.Abs(p.TotalReturnsPercentage-wantPct) > tolerance {
		return fmt.Errorf("total_returns_percentage %v != %v", p.TotalReturnsPercentage, wantPct)
	}
	return nil
}

// Deposit credits amount to invested capital and current value.
func (b *PortfolioPlan) Deposit(amount float64, now time.Time) {
	b.Invested = round(add(b.Invested, amount))
	b.CurrentValue = round(add(b.CurrentValue, amount))
	b.settle(now)
}

// Withdraw debits amount, clamping both balances at zero.
func (b *PortfolioPlan) Withdraw(amount float64, now time.Time) {
	b.Invested = math.Max(0, round(sub(b.Invested, amount)))
	b.CurrentValue = math.Max(0, round(sub(b.CurrentValue, amount)))
	b.settle(now)
}

// Accrue adds one day of return at AdminSetReturnRate. It returns the amount credited and
// false when the bucket is not eligible or already accrued on now's UTC date.
func (b *PortfolioPlan) Accrue(now time.Time) (float64, bool) {
	if b.AdminSetReturnRate == nil || *b.AdminSetReturnRate <= 0 || b.Invested <= 0 {
		return 0, false
	}
	if b.LastDailyUpdate != nil && sameUTCDay(*b.LastDailyUpdate, now) {
		return 0, false
	}
	daily := decimal.NewFromFloat(b.Invested).
		Mul(decimal.NewFromFloat(*b.AdminSetReturnRate)).
		Div(decimal.NewFromInt(365)).
		Div(decimal.NewFromInt(100)).
		Round(amountPlaces)
	b.CurrentValue = decimal.NewFromFloat(b.CurrentValue).Add(daily).Round(amountPlaces).InexactFloat64()
	at := now.UTC()
	b.LastDailyUpdate = &at
	b.settle(now)
	return daily.InexactFloat64(), true
}

// SyncReturnRate copies the catalog's current bounds onto the bucket.
func (b *PortfolioPlan) SyncReturnRate(plan *Plan) {
	if plan == nil {
		return
	}
	b.ReturnRate = ReturnRate{Min: copyRate(plan.MinReturnRate), Max: copyRate(plan.MaxReturnRate)}
}

// PendingPrices returns price points appended since load, not yet persisted.
func (b *PortfolioPlan) PendingPrices() []PricePoint {
	return b.pending
}

// MarkPersisted clears the pending price points after they have been written.
func (b *PortfolioPlan) MarkPersisted() {
	b.PriceHistory = append(b.PriceHistory, b.pending...)
	b.pending = nil
}

func (b *PortfolioPlan) settle(now time.Time) {
	b.Returns = round(sub(b.CurrentValue, b.Invested))
	b.pending = append(b.pending, PricePoint{
		ID:        uuid.NewString(),
		PlanID:    b.ID,
		Value:     b.CurrentValue,
		UpdatedAt: now.UTC(),
	})
}

func copyRate(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

func add(a, b float64) decimal.Decimal {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b))
}

func sub(a, b float64) decimal.Decimal {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b))
}

func round(d decimal.Decimal) float64 {
	return d.Round(amountPlaces).InexactFloat64()
}
