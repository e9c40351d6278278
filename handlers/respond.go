package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"portfolio-ledger/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var validate = validator.New()

// respondError maps a service error kind onto an HTTP status and a stable code.
func respondError(c *fiber.Ctx, err error) error {
	status, code := fiber.StatusInternalServerError, "internal_error"
	switch services.Kind(err) {
	case services.ErrValidation:
		status, code = fiber.StatusBadRequest, "validation_error"
	case services.ErrNotFound:
		status, code = fiber.StatusNotFound, "not_found"
	case services.ErrForbidden:
		status, code = fiber.StatusForbidden, "forbidden"
	case services.ErrInvalidState:
		status, code = fiber.StatusConflict, "already_decided"
	}
	if status == fiber.StatusInternalServerError {
		logrus.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error(), "code": code})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "code": "validation_error"})
}

// decodeJSON strictly decodes the request body into dst and validates it.
func decodeJSON(c *fiber.Ctx, dst interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return validateStruct(dst)
}

func validateStruct(dst interface{}) error {
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", name, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", name, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", name, fe.Tag())
	}
}

// listQuery is the query string shared by the list endpoints.
type listQuery struct {
	Page      int     `query:"page" validate:"gte=0"`
	Limit     int     `query:"limit" validate:"gte=0,lte=100"`
	SortBy    string  `query:"sort_by"`
	SortOrder string  `query:"sort_order" validate:"omitempty,oneof=asc desc"`
	Status    string  `query:"status" validate:"omitempty,oneof=pending approved rejected"`
	Type      string  `query:"type" validate:"omitempty,oneof=deposit withdrawal investment"`
	Plan      string  `query:"plan" validate:"omitempty,oneof=silver gold platinum"`
	From      string  `query:"from"`
	To        string  `query:"to"`
	Day       string  `query:"day"`
	Search    string  `query:"search"`
	UserID    string  `query:"user_id"`
	MinAmount float64 `query:"min_amount" validate:"gte=0"`
	MaxAmount float64 `query:"max_amount" validate:"gte=0"`
	Unread    bool    `query:"unread"`
}

func parseListQuery(c *fiber.Ctx) (*listQuery, error) {
	var q listQuery
	if err := c.QueryParser(&q); err != nil {
		return nil, fmt.Errorf("invalid query: %v", err)
	}
	if err := validateStruct(&q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (q *listQuery) pageQuery() services.PageQuery {
	return services.PageQuery{Page: q.Page, Limit: q.Limit, SortBy: q.SortBy, SortOrder: q.SortOrder}
}

func (q *listQuery) dateRange() (services.DateRange, error) {
	var r services.DateRange
	from, err := parseDate(q.From, false)
	if err != nil {
		return r, err
	}
	to, err := parseDate(q.To, true)
	if err != nil {
		return r, err
	}
	r.From, r.To = from, to
	return r, nil
}

func (q *listQuery) amountBounds() (lo, hi *float64) {
	if q.MinAmount > 0 {
		v := q.MinAmount
		lo = &v
	}
	if q.MaxAmount > 0 {
		v := q.MaxAmount
		hi = &v
	}
	return lo, hi
}

// parseDate accepts RFC 3339 or YYYY-MM-DD; a bare end date covers the whole day.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
