package handlers

import (
	"portfolio-ledger/middleware"
	"portfolio-ledger/models"
	"portfolio-ledger/services"

	"github.com/gofiber/fiber/v2"
)

type investmentBody struct {
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Plan          string  `json:"plan" validate:"required,oneof=silver gold platinum"`
	WalletAddress string  `json:"wallet_address" validate:"required"`
	Reason        string  `json:"reason" validate:"required"`
}

func SetupInvestmentRoutes(secured, admin fiber.Router, investments *services.InvestmentService, orch *services.Orchestrator) {
	secured.Post("/investments", func(c *fiber.Ctx) error {
		var body investmentBody
		if err := decodeJSON(c, &body); err != nil {
			return badRequest(c, err.Error())
		}
		req, err := investments.Submit(c.UserContext(), services.SubmitInvestment{
			UserID:        middleware.UserID(c),
			Amount:        body.Amount,
			Plan:          body.Plan,
			WalletAddress: body.WalletAddress,
			Reason:        body.Reason,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	})

	secured.Get("/investments/:id", func(c *fiber.Ctx) error {
		req, err := investments.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if req.UserID != middleware.UserID(c) && !middleware.HasRole(c, middleware.RoleAdmin) {
			return respondError(c, services.ErrNotFound)
		}
		return c.JSON(req)
	})

	admin.Get("/investments", func(c *fiber.Ctx) error {
		q, err := parseListQuery(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		rng, err := q.dateRange()
		if err != nil {
			return badRequest(c, err.Error())
		}
		page, err := investments.List(c.UserContext(), services.InvestmentFilter{
			UserID:    q.UserID,
			Status:    models.RequestStatus(q.Status),
			Plan:      models.PlanName(q.Plan),
			Range:     rng,
			Search:    q.Search,
			PageQuery: q.pageQuery(),
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	})

	admin.Put("/investments/:id/decision", func(c *fiber.Ctx) error {
		var body decisionBody
		if err := decodeJSON(c, &body); err != nil {
			return badRequest(c, err.Error())
		}
		req, err := orch.DecideInvestment(c.UserContext(), c.Params("id"), body.decision(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(req)
	})
}
