package handlers

import (
	"portfolio-ledger/services"

	"github.com/gofiber/fiber/v2"
)

type planBody struct {
	MinInvestment *float64 `json:"min_investment" validate:"omitempty,gte=0"`
	MaxInvestment *float64 `json:"max_investment" validate:"omitempty,gte=0"`
	MinReturnRate *float64 `json:"min_return_rate" validate:"omitempty,gte=0"`
	MaxReturnRate *float64 `json:"max_return_rate" validate:"omitempty,gte=0"`
	Features      []string `json:"features"`
	IsActive      *bool    `json:"is_active"`
}

func SetupPlanRoutes(secured, admin fiber.Router, plans *services.PlanService) {
	secured.Get("/plans", func(c *fiber.Ctx) error {
		list, err := plans.ListPlans(c.UserContext(), c.QueryBool("active", false))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(list)
	})

	secured.Get("/plans/:name", func(c *fiber.Ctx) error {
		plan, err := plans.GetPlan(c.UserContext(), c.Params("name"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(plan)
	})

	admin.Put("/plans/:name", func(c *fiber.Ctx) error {
		var body planBody
		if err := decodeJSON(c, &body); err != nil {
			return badRequest(c, err.Error())
		}
		plan, err := plans.UpsertPlan(c.UserContext(), c.Params("name"), services.PlanUpdate{
			MinInvestment: body.MinInvestment,
			MaxInvestment: body.MaxInvestment,
			MinReturnRate: body.MinReturnRate,
			MaxReturnRate: body.MaxReturnRate,
			Features:      body.Features,
			IsActive:      body.IsActive,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(plan)
	})
}
