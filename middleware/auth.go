package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const (
	localsUserID = "user_id"
	localsRoles  = "user_roles"

	RoleAdmin = "admin"
)

// UserContextMiddleware reads the identity the gateway forwards in X-User-ID and X-User-Roles
// and rejects requests without a user.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			logrus.WithField("path", c.Path()).Warn("❌ [USER_CTX] X-User-ID missing on secured route")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through the gateway with auth context",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(localsUserID, userID)
		c.Locals(localsRoles, roles)
		logrus.WithFields(logrus.Fields{"user_id": userID, "roles": roles, "path": c.Path()}).Debug("👤 [USER_CTX]")
		return c.Next()
	}
}

// RequireRole rejects users lacking role. It must run after UserContextMiddleware.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !HasRole(c, role) {
			logrus.WithFields(logrus.Fields{"user_id": UserID(c), "path": c.Path(), "role": role}).Warn("🚫 [ROLE] access denied")
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "requires role " + role,
			})
		}
		return c.Next()
	}
}

// UserID returns the caller's user id set by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsUserID).(string)
	return id
}

// HasRole reports whether the caller carries role.
func HasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals(localsRoles).([]string)
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
