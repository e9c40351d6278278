package services

import (
	"context"
	"errors"

	"portfolio-ledger/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PlanService struct {
	DB *gorm.DB
}

func NewPlanService(db *gorm.DB) *PlanService {
	return &PlanService{DB: db}
}

// SeedDefaultPlans inserts the default catalog entries that are missing. Existing plans are
// left untouched.
func (s *PlanService) SeedDefaultPlans(ctx context.Context) (int64, error) {
	var created int64
	for _, def := range models.DefaultPlans {
		plan := def
		plan.ID = uuid.NewString()
		plan.Features = append([]string(nil), def.Features...)
		res := s.DB.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
			Create(&plan)
		if res.Error != nil {
			return created, internal("seed plan "+string(def.Name), res.Error)
		}
		created += res.RowsAffected
	}
	if created > 0 {
		logrus.WithField("created", created).Info("seeded default plans")
	}
	return created, nil
}

// GetPlan returns the catalog entry for name.
func (s *PlanService) GetPlan(ctx context.Context, name string) (*models.Plan, error) {
	pn, err := models.ParsePlanName(name)
	if err != nil {
		return nil, notFoundf("plan %q not found", name)
	}
	return getPlan(s.DB.WithContext(ctx), pn)
}

func getPlan(db *gorm.DB, name models.PlanName) (*models.Plan, error) {
	var plan models.Plan
	if err := db.Where("name = ?", name).First(&plan).Error; err != nil {
		return nil, lookup(err, "plan", string(name))
	}
	return &plan, nil
}

// ListPlans returns the catalog in tier order.
func (s *PlanService) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	q := s.DB.WithContext(ctx).Model(&models.Plan{}).Order("min_investment ASC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var plans []models.Plan
	if err := q.Find(&plans).Error; err != nil {
		return nil, internal("list plans", err)
	}
	return plans, nil
}

// PlanUpdate is a partial plan edit; nil fields are kept.
type PlanUpdate struct {
	MinInvestment *float64
	MaxInvestment *float64
	MinReturnRate *float64
	MaxReturnRate *float64
	Features      []string
	IsActive      *bool
}

// UpsertPlan applies fields to the plan, creating it if absent, and validates the result.
func (s *PlanService) UpsertPlan(ctx context.Context, name string, fields PlanUpdate) (*models.Plan, error) {
	pn, err := models.ParsePlanName(name)
	if err != nil {
		return nil, notFoundf("plan %q not found", name)
	}

	var out models.Plan
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var plan models.Plan
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("name = ?", pn).First(&plan).Error
		creating := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !creating {
			return internal("load plan", err)
		}
		if creating {
			plan = models.Plan{ID: uuid.NewString(), Name: pn, IsActive: true}
		}

		if fields.MinInvestment != nil {
			plan.MinInvestment = *fields.MinInvestment
		}
		if fields.MaxInvestment != nil {
			plan.MaxInvestment = *fields.MaxInvestment
		}
		if fields.MinReturnRate != nil {
			plan.MinReturnRate = fields.MinReturnRate
		}
		if fields.MaxReturnRate != nil {
			plan.MaxReturnRate = fields.MaxReturnRate
		}
		if fields.Features != nil {
			plan.Features = fields.Features
		}
		if fields.IsActive != nil {
			plan.IsActive = *fields.IsActive
		}
		if err := plan.Validate(); err != nil {
			return validationf("%v", err)
		}

		if creating {
			// is_active carries a column default that a false value would not override.
			if err := tx.Select("*").Create(&plan).Error; err != nil {
				return internal("create plan", err)
			}
		} else {
			if err := tx.Model(&plan).
				Select("min_investment", "max_investment", "min_return_rate", "max_return_rate", "features", "is_active").
				Updates(&plan).Error; err != nil {
				return internal("update plan", err)
			}
		}
		out = plan
		return nil
	})
	if err != nil {
		return nil, internal("upsert plan", err)
	}

	logrus.WithFields(logrus.Fields{"plan": pn, "active": out.IsActive}).Info("plan updated")
	return &out, nil
}
