package services

import (
	"errors"

	"portfolio-ledger/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// invariantTolerance bounds the drift CheckInvariants accepts after a recompute.
const invariantTolerance = 1e-6

// errPortfolioMissing is returned by mutatePortfolio when create is false and no portfolio
// exists for the selector.
var errPortfolioMissing = errors.New("portfolio missing")

// portfolioSelector picks the portfolio row to lock.
type portfolioSelector struct {
	column string
	value  string
}

func byUser(userID string) portfolioSelector    { return portfolioSelector{"user_id", userID} }
func byPortfolio(id string) portfolioSelector { return portfolioSelector{"id", id} }

// mutatePortfolio is the single write path into a portfolio. Inside tx it locks the row
// (creating it with zero buckets first when create is set and the selector is a user), lets
// fn change buckets or referral fields, recomputes every aggregate from the buckets and writes
// the buckets, the new price points and the aggregates back. A false return from fn skips the
// write.
func mutatePortfolio(tx *gorm.DB, sel portfolioSelector, create bool, fn func(p *models.Portfolio) (bool, error)) (*models.Portfolio, error) {
	if create && sel.column == "user_id" {
		if err := ensurePortfolio(tx, sel.value); err != nil {
			return nil, err
		}
	}

	var p models.Portfolio
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(sel.column+" = ?", sel.value).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errPortfolioMissing
	}
	if err != nil {
		return nil, internal("lock portfolio", err)
	}
	if err := tx.Where("portfolio_id = ?", p.ID).Find(&p.Plans).Error; err != nil {
		return nil, internal("load portfolio buckets", err)
	}
	existing := len(p.Plans)
	for _, name := range models.PlanNames {
		p.EnsureBucket(name)
	}
	p.SortBuckets()

	changed, err := fn(&p)
	if err != nil {
		return nil, err
	}
	if !changed && existing == len(p.Plans) {
		return &p, nil
	}

	p.Recompute()
	if err := p.CheckInvariants(invariantTolerance); err != nil {
		return nil, internal("recompute portfolio", err)
	}
	if err := writePortfolio(tx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func ensurePortfolio(tx *gorm.DB, userID string) error {
	fresh := models.NewPortfolio(userID)
	res := tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(fresh)
	if res.Error != nil {
		return internal("create portfolio", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	if err := tx.Omit(clause.Associations).Create(&fresh.Plans).Error; err != nil {
		return internal("create portfolio buckets", err)
	}
	return nil
}

func writePortfolio(tx *gorm.DB, p *models.Portfolio) error {
	var points []models.PricePoint
	for i := range p.Plans {
		b := &p.Plans[i]
		res := tx.Model(&models.PortfolioPlan{}).Where("id = ?", b.ID).Updates(map[string]interface{}{
			"invested":              b.Invested,
			"current_value":         b.CurrentValue,
			"returns":               b.Returns,
			"return_rate_min":       b.ReturnRate.Min,
			"return_rate_max":       b.ReturnRate.Max,
			"admin_set_return_rate": b.AdminSetReturnRate,
			"last_daily_update":     b.LastDailyUpdate,
		})
		if res.Error != nil {
			return internal("write portfolio bucket", res.Error)
		}
		if res.RowsAffected == 0 {
			b.PortfolioID = p.ID
			if err := tx.Omit(clause.Associations).Create(b).Error; err != nil {
				return internal("create portfolio bucket", err)
			}
		}
		points = append(points, b.PendingPrices()...)
	}
	if len(points) > 0 {
		if err := tx.Create(&points).Error; err != nil {
			return internal("append price history", err)
		}
	}

	res := tx.Model(&models.Portfolio{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]interface{}{
			"total_invested":           p.TotalInvested,
			"current_value":            p.CurrentValue,
			"total_returns":            p.TotalReturns,
			"total_returns_percentage": p.TotalReturnsPercentage,
			"referral_rewards":         p.ReferralRewards,
			"referral_amount":          p.ReferralAmount,
			"version":                  p.Version + 1,
		})
	if res.Error != nil {
		return internal("write portfolio", res.Error)
	}
	if res.RowsAffected != 1 {
		return internal("write portfolio", errors.New("portfolio changed concurrently"))
	}
	p.Version++
	for i := range p.Plans {
		p.Plans[i].MarkPersisted()
	}
	return nil
}
