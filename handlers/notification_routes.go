package handlers

import (
	"portfolio-ledger/middleware"
	"portfolio-ledger/services"

	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(secured fiber.Router, notifications *services.NotificationService) {
	secured.Get("/notifications", func(c *fiber.Ctx) error {
		q, err := parseListQuery(c)
		if err != nil {
			return badRequest(c, err.Error())
		}
		isAdmin := middleware.HasRole(c, middleware.RoleAdmin)
		page, err := notifications.List(c.UserContext(), middleware.UserID(c), isAdmin, q.Unread, q.pageQuery())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(page)
	})

	// Registered before /:id/read so "read-all" is not taken for an id.
	secured.Patch("/notifications/read-all", func(c *fiber.Ctx) error {
		n, err := notifications.MarkAllRead(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"updated": n})
	})

	secured.Patch("/notifications/:id/read", func(c *fiber.Ctx) error {
		isAdmin := middleware.HasRole(c, middleware.RoleAdmin)
		if err := notifications.MarkRead(c.UserContext(), middleware.UserID(c), c.Params("id"), isAdmin); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
