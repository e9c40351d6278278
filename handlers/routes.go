package handlers

import (
	"portfolio-ledger/middleware"
	"portfolio-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// Services bundles what the routes call into.
type Services struct {
	Plans         *services.PlanService
	Requests      *services.RequestService
	Investments   *services.InvestmentService
	History       *services.HistoryService
	Orchestrator  *services.Orchestrator
	Portfolios    *services.PortfolioService
	Referrals     *services.ReferralService
	Notifications *services.NotificationService
}

// SetupRoutes registers every route. All of them sit behind the gateway middleware installed
// by the caller; everything but /health also needs a user context, and /admin needs the admin
// role.
func SetupRoutes(app *fiber.App, svc *Services) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	secured := app.Group("/", middleware.UserContextMiddleware())
	admin := secured.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))

	SetupPlanRoutes(secured, admin, svc.Plans)
	SetupRequestRoutes(secured, admin, svc.Requests, svc.Orchestrator)
	SetupInvestmentRoutes(secured, admin, svc.Investments, svc.Orchestrator)
	SetupHistoryRoutes(secured, admin, svc.History)
	SetupPortfolioRoutes(secured, admin, svc.Portfolios)
	SetupReferralRoutes(secured, admin, svc.Referrals, svc.Orchestrator)
	SetupNotificationRoutes(secured, svc.Notifications)
}

// decisionBody is the admin decision payload shared by every decide endpoint.
type decisionBody struct {
	Action          string   `json:"action" validate:"required,oneof=approve reject"`
	RejectionReason string   `json:"rejection_reason" validate:"required_if=Action reject"`
	Percentage      *float64 `json:"percentage" validate:"omitempty,gt=0,lte=100"`
}

func (b decisionBody) decision(c *fiber.Ctx) services.Decision {
	return services.Decision{
		Action:          services.Action(b.Action),
		RejectionReason: b.RejectionReason,
		DecidedBy:       middleware.UserID(c),
	}
}
