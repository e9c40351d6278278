package handlers

import (
	"portfolio-ledger/middleware"
	"portfolio-ledger/models"
	"portfolio-ledger/services"

	"github.com/gofiber/fiber/v2"
)

func SetupReferralRoutes(secured, admin fiber.Router, referrals *services.ReferralService, orch *services.Orchestrator) {
	secured.Get("/referrals/mine", func(c *fiber.Ctx) error {
		q, err := parseListQuery(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		page, err := referrals.ListReferrals(c.UserContext(), middleware.UserID(c), q.pageQuery())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	})

	secured.Get("/referrals/stats", func(c *fiber.Ctx) error {
		stats, err := referrals.Stats(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(stats)
	})

	admin.Get("/referrals", func(c *fiber.Ctx) error {
		q, err := parseListQuery(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		page, err := referrals.ListTransactions(c.UserContext(), services.ReferralTxFilter{
			ReferrerID: q.UserID,
			Status:     models.RequestStatus(q.Status),
			PageQuery:  q.pageQuery(),
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	})

	admin.Put("/referrals/:id/decision", func(c *fiber.Ctx) error {
		var body decisionBody
		if err := decodeJSON(c, &body); err != nil {
			return badRequest(c, err.Error())
		}
		rt, err := orch.DecideReferral(c.UserContext(), c.Params("id"), services.ReferralDecision{
			Decision:   body.decision(c),
			Percentage: body.Percentage,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rt)
	})
}
