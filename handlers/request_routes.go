package handlers

import (
	"strings"

	"portfolio-ledger/middleware"
	"portfolio-ledger/models"
	"portfolio-ledger/services"

	"github.com/gofiber/fiber/v2"
)

// submitForm is the multipart (or JSON, for withdrawals) body of POST /requests.
type submitForm struct {
	Amount        float64 `json:"amount" form:"amount" validate:"required,gt=0"`
	Type          string  `json:"type" form:"type" validate:"required,oneof=deposit withdrawal"`
	Plan          string  `json:"plan" form:"plan" validate:"required,oneof=silver gold platinum"`
	WalletAddress string  `json:"wallet_address" form:"wallet_address" validate:"required"`
	WalletTxID    string  `json:"wallet_tx_id" form:"wallet_tx_id"`
}

func SetupRequestRoutes(secured, admin fiber.Router, requests *services.RequestService, orch *services.Orchestrator) {
	secured.Post("/requests", func(c *fiber.Ctx) error {
		var form submitForm
		if err := c.BodyParser(&form); err != nil {
			return badRequest(c, "invalid request body")
		}
		if err := validateStruct(&form); err != nil {
			return badRequest(c, err.Error())
		}

		in := services.SubmitRequest{
			UserID:        middleware.UserID(c),
			Amount:        form.Amount,
			Type:          models.RequestType(form.Type),
			Plan:          form.Plan,
			WalletAddress: form.WalletAddress,
		}
		if txID := strings.TrimSpace(form.WalletTxID); txID != "" {
			in.WalletTxID = &txID
		}

		if fh, err := c.FormFile("transaction_image"); err == nil {
			f, err := fh.Open()
			if err != nil {
				return badRequest(c, "unreadable transaction image")
			}
			defer f.Close()
			in.Image = &services.Upload{
				Name:        fh.Filename,
				ContentType: fh.Header.Get(fiber.HeaderContentType),
				Body:        f,
			}
		}

		req, err := requests.Submit(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	})

	secured.Get("/requests/mine", func(c *fiber.Ctx) error {
		return listRequests(c, requests, middleware.UserID(c))
	})

	secured.Get("/requests/:id", func(c *fiber.Ctx) error {
		req, err := requests.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if req.UserID != middleware.UserID(c) && !middleware.HasRole(c, middleware.RoleAdmin) {
			return respondError(c, services.ErrNotFound)
		}
		return c.JSON(req)
	})

	admin.Get("/requests", func(c *fiber.Ctx) error {
		return listRequests(c, requests, c.Query("user_id"))
	})

	admin.Put("/requests/:id/decision", func(c *fiber.Ctx) error {
		var body decisionBody
		if err := decodeJSON(c, &body); err != nil {
			return badRequest(c, err.Error())
		}
		req, err := orch.DecideTransaction(c.UserContext(), c.Params("id"), body.decision(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(req)
	})

	admin.Delete("/requests/:id", func(c *fiber.Ctx) error {
		if err := requests.Delete(c.UserContext(), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}

func listRequests(c *fiber.Ctx, requests *services.RequestService, userID string) error {
	q, err := parseListQuery(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if q.Type == string(models.HistoryInvestment) {
		return badRequest(c, "type must be one of deposit withdrawal")
	}
	rng, err := q.dateRange()
	if err != nil {
		return badRequest(c, err.Error())
	}
	page, err := requests.List(c.UserContext(), services.RequestFilter{
		UserID:    userID,
		Status:    models.RequestStatus(q.Status),
		Type:      models.RequestType(q.Type),
		Plan:      models.PlanName(q.Plan),
		Range:     rng,
		Search:    q.Search,
		PageQuery: q.pageQuery(),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(page)
}
