package models

import (
	"fmt"
	"strings"
)

// PlanName identifies a subscription tier.
type PlanName string

const (
	PlanSilver   PlanName = "silver"
	PlanGold     PlanName = "gold"
	PlanPlatinum PlanName = "platinum"
)

// PlanNames lists every tier in catalog order. Portfolios carry one bucket per entry.
var PlanNames = []PlanName{PlanSilver, PlanGold, PlanPlatinum}

// ParsePlanName normalizes and validates a tier name.
func ParsePlanName(s string) (PlanName, error) {
	name := PlanName(strings.ToLower(strings.TrimSpace(s)))
	if !name.Valid() {
		return "", fmt.Errorf("plan must be one of silver, gold or platinum, got %q", s)
	}
	return name, nil
}

func (n PlanName) Valid() bool {
	for _, p := range PlanNames {
		if n == p {
			return true
		}
	}
	return false
}

// Plan is a Plan Catalog entry. Mutated only by admin configuration.
type Plan struct {
	ID            string   `gorm:"primaryKey;type:uuid" json:"id"`
	Name          PlanName `gorm:"type:varchar(16);uniqueIndex;not null" json:"name"`
	MinInvestment float64  `gorm:"type:numeric(20,8);not null;default:0" json:"min_investment"`
	MaxInvestment float64  `gorm:"type:numeric(20,8);not null;default:0" json:"max_investment"`
	// Return-rate bounds are annual percentages; nil means "not configured".
	MinReturnRate *float64 `gorm:"type:numeric(10,4)" json:"min_return_rate"`
	MaxReturnRate *float64 `gorm:"type:numeric(10,4)" json:"max_return_rate"`
	Features      []string `gorm:"type:jsonb;serializer:json" json:"features"`
	IsActive      bool     `gorm:"not null;default:true" json:"is_active"`

	Timestamps
}

// Validate checks the bound ordering invariants.
func (p *Plan) Validate() error {
	if p.MinInvestment < 0 || p.MaxInvestment < 0 {
		return fmt.Errorf("investment bounds must be non-negative")
	}
	if p.MinInvestment > p.MaxInvestment {
		return fmt.Errorf("min_investment (%v) must not exceed max_investment (%v)", p.MinInvestment, p.MaxInvestment)
	}
	if p.MinReturnRate != nil && p.MaxReturnRate != nil && *p.MinReturnRate > *p.MaxReturnRate {
		return fmt.Errorf("min_return_rate (%v) must not exceed max_return_rate (%v)", *p.MinReturnRate, *p.MaxReturnRate)
	}
	return nil
}

func rate(v float64) *float64 { return &v }

// DefaultPlans are seeded at bootstrap when absent.
var DefaultPlans = []Plan{
	{
		Name:          PlanSilver,
		MinInvestment: 50,
		MaxInvestment: 200,
		MinReturnRate: rate(4),
		MaxReturnRate: rate(8),
		Features:      []string{"Basic support", "Access to limited traders", "Monthly reports"},
		IsActive:      true,
	},
	{
		Name:          PlanGold,
		MinInvestment: 201,
		MaxInvestment: 500,
		MinReturnRate: rate(8),
		MaxReturnRate: rate(12),
		Features:      []string{"Priority support", "Access to more traders", "Weekly reports", "Exclusive market insights"},
		IsActive:      true,
	},
	{
		Name:          PlanPlatinum,
		MinInvestment: 501,
		MaxInvestment: 1000,
		MinReturnRate: rate(12),
		MaxReturnRate: rate(18),
		Features: []string{
			"24/7 dedicated support",
			"Access to all traders",
			"Daily reports",
			"Personal account manager",
			"Early access to new features",
		},
		IsActive: true,
	},
}
