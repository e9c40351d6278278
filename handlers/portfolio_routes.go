package handlers

import (
	"portfolio-ledger/middleware"
	"portfolio-ledger/services"

	"github.com/gofiber/fiber/v2"
)

type rateBody struct {
	AnnualRate *float64 `json:"annual_rate" validate:"required,gte=0"`
}

func SetupPortfolioRoutes(secured, admin fiber.Router, portfolios *services.PortfolioService) {
	secured.Get("/portfolio", func(c *fiber.Ctx) error {
		p, err := portfolios.GetPortfolio(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	admin.Get("/portfolios/:user_id", func(c *fiber.Ctx) error {
		p, err := portfolios.GetPortfolio(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})

	admin.Put("/portfolios/:user_id/plans/:plan/rate", func(c *fiber.Ctx) error {
		var body rateBody
		if err := decodeJSON(c, &body); err != nil {
			return badRequest(c, err.Error())
		}
		p, err := portfolios.SetAdminReturnRate(c.UserContext(), c.Params("user_id"), c.Params("plan"), *body.AnnualRate)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(p)
	})
}
