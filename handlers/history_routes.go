package handlers

import (
	"portfolio-ledger/middleware"
	"portfolio-ledger/models"
	"portfolio-ledger/services"

	"github.com/gofiber/fiber/v2"
)

func SetupHistoryRoutes(secured, admin fiber.Router, history *services.HistoryService) {
	secured.Get("/history/mine", func(c *fiber.Ctx) error {
		return listHistory(c, history, middleware.UserID(c))
	})

	secured.Get("/history/:id", func(c *fiber.Ctx) error {
		h, err := history.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if h.UserID != middleware.UserID(c) && !middleware.HasRole(c, middleware.RoleAdmin) {
			return respondError(c, services.ErrNotFound)
		}
		return c.JSON(h)
	})

	admin.Get("/history", func(c *fiber.Ctx) error {
		return listHistory(c, history, c.Query("user_id"))
	})
}

func listHistory(c *fiber.Ctx, history *services.HistoryService, userID string) error {
	q, err := parseListQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	rng, err := q.dateRange()
	if err != nil {
		return badRequest(c, err.Error())
	}
	day, err := parseDate(q.Day, false)
	if err != nil {
		return badRequest(c, err.Error())
	}
	lo, hi := q.amountBounds()
	page, err := history.List(c.UserContext(), services.HistoryFilter{
		UserID:    userID,
		Status:    models.RequestStatus(q.Status),
		Type:      models.HistoryType(q.Type),
		MinAmount: lo,
		MaxAmount: hi,
		Day:       day,
		Range:     rng,
		PageQuery: q.pageQuery(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}
