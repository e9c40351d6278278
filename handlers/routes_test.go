package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"portfolio-ledger/middleware"
	"portfolio-ledger/models"
	"portfolio-ledger/services"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testToken  = "gateway-secret"
	testWallet = "0xabc123"
)

type discardStore struct{}

func (discardStore) Store(_ context.Context, name string, body io.Reader, _ string) (string, string, error) {
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", "", err
	}
	return "https://cdn.test/" + name, "transactions/" + name, nil
}

func (discardStore) Delete(context.Context, string) error { return nil }

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	plans := services.NewPlanService(db)
	if _, err := plans.SeedDefaultPlans(context.Background()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	for _, id := range []string{"u1", "u2"} {
		wallet := testWallet
		inv := models.Investor{
			ID:                 uuid.NewString(),
			ExternalUserID:     id,
			Username:           id,
			IsVerified:         true,
			VerificationStatus: models.VerificationVerified,
			TrustWalletAddress: &wallet,
		}
		if err := db.Create(&inv).Error; err != nil {
			t.Fatalf("create investor: %v", err)
		}
	}

	inbox := services.NewNotificationService(db)
	users := services.NewInvestorDirectory(db)
	svc := &Services{
		Plans:         plans,
		Requests:      services.NewRequestService(db, users, discardStore{}, inbox),
		Investments:   services.NewInvestmentService(db, users, inbox),
		History:       services.NewHistoryService(db),
		Orchestrator:  services.NewOrchestrator(db, inbox, 5),
		Portfolios:    services.NewPortfolioService(db, inbox),
		Referrals:     services.NewReferralService(db, 30),
		Notifications: inbox,
	}

	app := fiber.New()
	app.Use(middleware.GatewayAuthMiddleware(testToken, "/health"))
	SetupRoutes(app, svc)
	return app
}

type caller struct {
	userID string
	roles  string
}

var (
	user1 = caller{userID: "u1"}
	user2 = caller{userID: "u2"}
	admin = caller{userID: "admin-1", roles: "admin"}
)

func do(t *testing.T, app *fiber.App, who caller, method, path string, body io.Reader, contentType string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if who.userID != "" {
		req.Header.Set("X-User-ID", who.userID)
	}
	if who.roles != "" {
		req.Header.Set("X-User-Roles", who.roles)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode, out
}

func doJSON(t *testing.T, app *fiber.App, who caller, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(raw)
	}
	return do(t, app, who, method, path, r, fiber.MIMEApplicationJSON)
}

func submitDeposit(t *testing.T, app *fiber.App, who caller, plan string, amount string) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range map[string]string{"amount": amount, "type": "deposit", "plan": plan, "wallet_address": testWallet} {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := w.CreateFormFile("transaction_image", "proof.png")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write([]byte("png-bytes"))
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return do(t, app, who, http.MethodPost, "/requests", &buf, w.FormDataContentType())
}

func TestGatewayAndUserContext(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("health = %v, %v", resp, err)
	}

	req := httptest.NewRequest(http.MethodGet, "/plans", nil)
	req.Header.Set("X-User-ID", "u1")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token = %v, %v", resp.StatusCode, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/plans", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	req.Header.Set("X-User-ID", "u1")
	resp, err = app.Test(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong token = %v, %v", resp.StatusCode, err)
	}

	if status, _ := doJSON(t, app, caller{}, http.MethodGet, "/plans", nil); status != http.StatusUnauthorized {
		t.Errorf("missing user = %d, want 401", status)
	}
	if status, _ := doJSON(t, app, user1, http.MethodGet, "/admin/requests", nil); status != http.StatusForbidden {
		t.Errorf("non-admin on admin route = %d, want 403", status)
	}
	if status, _ := doJSON(t, app, user1, http.MethodGet, "/plans", nil); status != http.StatusOK {
		t.Errorf("plans = %d, want 200", status)
	}
}

func TestSubmitAndDecideOverHTTP(t *testing.T) {
	app := newTestApp(t)

	status, body := submitDeposit(t, app, user1, "silver", "500")
	if status != http.StatusCreated {
		t.Fatalf("submit = %d %v", status, body)
	}
	id, _ := body["id"].(string)
	if id == "" || body["status"] != "pending" || body["transaction_image"] == "" {
		t.Fatalf("submitted = %v", body)
	}

	// Only the owner and admins can read a request.
	if status, _ := doJSON(t, app, user2, http.MethodGet, "/requests/"+id, nil); status != http.StatusNotFound {
		t.Errorf("foreign read = %d, want 404", status)
	}
	if status, _ := doJSON(t, app, user1, http.MethodGet, "/requests/"+id, nil); status != http.StatusOK {
		t.Errorf("owner read = %d, want 200", status)
	}

	decision := "/admin/requests/" + id + "/decision"
	status, body = doJSON(t, app, admin, http.MethodPut, decision, map[string]string{"action": "approve"})
	if status != http.StatusOK || body["status"] != "approved" {
		t.Fatalf("approve = %d %v", status, body)
	}

	status, body = doJSON(t, app, admin, http.MethodPut, decision, map[string]string{"action": "approve"})
	if status != http.StatusConflict || body["code"] != "already_decided" {
		t.Errorf("second approve = %d %v, want 409 already_decided", status, body)
	}

	status, body = doJSON(t, app, user1, http.MethodGet, "/portfolio", nil)
	if status != http.StatusOK {
		t.Fatalf("portfolio = %d %v", status, body)
	}
	if body["total_invested"] != 500.0 || body["current_value"] != 500.0 {
		t.Errorf("portfolio = %v", body)
	}

	status, body = doJSON(t, app, user1, http.MethodGet, "/history/mine", nil)
	if status != http.StatusOK || body["total"] != 1.0 {
		t.Errorf("history = %d %v", status, body)
	}
}

func TestDecisionBodyValidation(t *testing.T) {
	app := newTestApp(t)
	status, body := submitDeposit(t, app, user1, "gold", "300")
	if status != http.StatusCreated {
		t.Fatalf("submit = %d %v", status, body)
	}
	path := "/admin/requests/" + body["id"].(string) + "/decision"

	tests := []struct {
		name string
		body string
	}{
		{"unknown field", `{"action":"approve","amount":10}`},
		{"bad action", `{"action":"maybe"}`},
		{"reject without reason", `{"action":"reject"}`},
		{"not json", `action=approve`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, app, admin, http.MethodPut, path, strings.NewReader(tc.body), fiber.MIMEApplicationJSON)
			if status != http.StatusBadRequest || body["code"] != "validation_error" {
				t.Errorf("status = %d %v, want 400 validation_error", status, body)
			}
		})
	}

	status, body = doJSON(t, app, admin, http.MethodPut, path, map[string]string{"action": "reject", "rejection_reason": "insufficient proof"})
	if status != http.StatusOK || body["status"] != "rejected" || body["rejection_reason"] != "insufficient proof" {
		t.Errorf("reject = %d %v", status, body)
	}
	if status, _ := doJSON(t, app, admin, http.MethodPut, "/admin/requests/"+uuid.NewString()+"/decision", map[string]string{"action": "approve"}); status != http.StatusNotFound {
		t.Errorf("unknown request = %d, want 404", status)
	}
}

func TestSubmitValidationOverHTTP(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"deposit without image", map[string]interface{}{"amount": 100, "type": "deposit", "plan": "silver", "wallet_address": testWallet}, http.StatusBadRequest},
		{"bad plan", map[string]interface{}{"amount": 100, "type": "withdrawal", "plan": "bronze", "wallet_address": testWallet}, http.StatusBadRequest},
		{"zero amount", map[string]interface{}{"amount": 0, "type": "withdrawal", "plan": "silver", "wallet_address": testWallet}, http.StatusBadRequest},
		{"wallet mismatch", map[string]interface{}{"amount": 10, "type": "withdrawal", "plan": "silver", "wallet_address": "0xother"}, http.StatusForbidden},
		{"withdrawal", map[string]interface{}{"amount": 10, "type": "withdrawal", "plan": "silver", "wallet_address": testWallet}, http.StatusCreated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doJSON(t, app, user1, http.MethodPost, "/requests", tc.body)
			if status != tc.want {
				t.Errorf("status = %d %v, want %d", status, body, tc.want)
			}
		})
	}
}

func TestAdminPlanAndRateRoutes(t *testing.T) {
	app := newTestApp(t)

	status, body := doJSON(t, app, admin, http.MethodPut, "/admin/plans/silver", map[string]interface{}{"min_return_rate": 5, "max_return_rate": 9})
	if status != http.StatusOK || body["min_return_rate"] != 5.0 {
		t.Fatalf("update plan = %d %v", status, body)
	}

	if status, _ := doJSON(t, app, admin, http.MethodPut, "/admin/portfolios/u1/plans/silver/rate", map[string]interface{}{"annual_rate": 6}); status != http.StatusNotFound {
		t.Errorf("rate on missing portfolio = %d, want 404", status)
	}

	status, body = submitDeposit(t, app, user1, "silver", "100")
	if status != http.StatusCreated {
		t.Fatalf("submit = %d %v", status, body)
	}
	if status, _ := doJSON(t, app, admin, http.MethodPut, "/admin/requests/"+body["id"].(string)+"/decision", map[string]string{"action": "approve"}); status != http.StatusOK {
		t.Fatalf("approve = %d", status)
	}

	if status, _ := doJSON(t, app, admin, http.MethodPut, "/admin/portfolios/u1/plans/silver/rate", map[string]interface{}{"annual_rate": 20}); status != http.StatusBadRequest {
		t.Errorf("out of bounds rate = %d, want 400", status)
	}
	if status, _ := doJSON(t, app, admin, http.MethodPut, "/admin/portfolios/u1/plans/silver/rate", map[string]interface{}{"annual_rate": 6}); status != http.StatusOK {
		t.Errorf("rate = %d, want 200", status)
	}
}
