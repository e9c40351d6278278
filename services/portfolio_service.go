package services

import (
	"context"
	"errors"
	"math"
	"time"

	"portfolio-ledger/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PortfolioService serves portfolio reads and the non-decision writers: the admin accrual
// rate and the daily accrual.
type PortfolioService struct {
	DB       *gorm.DB
	Notifier Notifier
	Now      func() time.Time
}

func NewPortfolioService(db *gorm.DB, notifier Notifier) *PortfolioService {
	return &PortfolioService{DB: db, Notifier: notifier, Now: time.Now}
}

func (s *PortfolioService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// GetPortfolio returns userID's portfolio with buckets and price history in time order.
func (s *PortfolioService) GetPortfolio(ctx context.Context, userID string) (*models.Portfolio, error) {
	var p models.Portfolio
	err := s.DB.WithContext(ctx).
		Preload("Plans").
		Preload("Plans.PriceHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("updated_at ASC")
		}).
		Where("user_id = ?", userID).
		First(&p).Error
	if err != nil {
		return nil, lookup(err, "portfolio for user", userID)
	}
	p.SortBuckets()
	return &p, nil
}

// SetAdminReturnRate assigns the annual rate the daily accrual applies to one bucket. The rate
// must lie within the plan's return-rate bounds when they are set; zero turns accrual off.
func (s *PortfolioService) SetAdminReturnRate(ctx context.Context, userID, planName string, annualRate float64) (*models.Portfolio, error) {
	name, err := models.ParsePlanName(planName)
	if err != nil {
		return nil, validationf("%v", err)
	}
	if annualRate < 0 || math.IsNaN(annualRate) || math.IsInf(annualRate, 0) {
		return nil, validationf("rate must be a non-negative number")
	}

	var out *models.Portfolio
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := getPlan(tx, name)
		if err != nil {
			return err
		}
		if annualRate > 0 {
			if plan.MinReturnRate != nil && annualRate < *plan.MinReturnRate {
				return validationf("rate %v is below the %s minimum %v", annualRate, name, *plan.MinReturnRate)
			}
			if plan.MaxReturnRate != nil && annualRate > *plan.MaxReturnRate {
				return validationf("rate %v is above the %s maximum %v", annualRate, name, *plan.MaxReturnRate)
			}
		}
		out, err = mutatePortfolio(tx, byUser(userID), false, func(p *models.Portfolio) (bool, error) {
			b := p.EnsureBucket(name)
			rate := annualRate
			b.AdminSetReturnRate = &rate
			b.SyncReturnRate(plan)
			return true, nil
		})
		return err
	})
	if errors.Is(err, errPortfolioMissing) {
		return nil, notFoundf("portfolio for user %s not found", userID)
	}
	if err != nil {
		return nil, internal("set return rate", err)
	}
	logrus.WithFields(logrus.Fields{"user_id": userID, "plan": name, "rate": annualRate}).Info("admin return rate set")
	return out, nil
}

// AccruePortfolio credits one day of return to every eligible bucket of the portfolio under
// its row lock. Buckets already accrued on now's UTC date are skipped, so a rerun is a no-op.
func (s *PortfolioService) AccruePortfolio(ctx context.Context, portfolioID string, now time.Time) (credited float64, updated bool, err error) {
	var p *models.Portfolio
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = mutatePortfolio(tx, byPortfolio(portfolioID), false, func(p *models.Portfolio) (bool, error) {
			for i := range p.Plans {
				if amount, ok := p.Plans[i].Accrue(now); ok {
					credited += amount
					updated = true
				}
			}
			return updated, nil
		})
		return err
	})
	if errors.Is(err, errPortfolioMissing) {
		return 0, false, notFoundf("portfolio %s not found", portfolioID)
	}
	if err != nil {
		return 0, false, internal("accrue portfolio", err)
	}
	if updated {
		s.notifyAccrual(ctx, p, credited)
	}
	return credited, updated, nil
}

func (s *PortfolioService) notifyAccrual(ctx context.Context, p *models.Portfolio, credited float64) {
	if s.Notifier == nil {
		return
	}
	msg := "Daily returns of " + formatAmount(credited) + " were added. Your portfolio is now worth " +
		formatAmount(p.CurrentValue) + "."
	if err := s.Notifier.Notify(ctx, p.UserID, msg, "Daily returns credited"); err != nil {
		logrus.WithError(err).WithField("user_id", p.UserID).Warn("accrual notification failed")
	}
}
