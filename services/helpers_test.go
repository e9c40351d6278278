package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"portfolio-ledger/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a private in-memory database with the ledger schema and default plans. One
// connection keeps every statement on the same memory database.
func newTestDB(t *testing.T) *gorm.DB {
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
	if _, err := NewPlanService(db).SeedDefaultPlans(context.Background()); err != nil {
		t.Fatalf("seed plans: %v", err)
	}
	return db
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Store(_ context.Context, name string, body io.Reader, _ string) (string, string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := "transactions/" + name
	s.objects[key] = data
	return "https://cdn.test/" + key, key, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	s.deleted = append(s.deleted, key)
	return nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	users []NotificationJob
	admin []NotificationJob
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, userID, message, title string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.users = append(n.users, NotificationJob{Audience: models.AudienceUser, UserID: userID, Title: title, Message: message})
	return n.err
}

func (n *recordingNotifier) NotifyAdmins(_ context.Context, message, title string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.admin = append(n.admin, NotificationJob{Audience: models.AudienceAdmin, Title: title, Message: message})
	return n.err
}

func (n *recordingNotifier) userJobs() []NotificationJob {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotificationJob(nil), n.users...)
}

// ledgerEnv wires every service against one test database and a fixed clock.
type ledgerEnv struct {
	db          *gorm.DB
	files       *memStore
	notifier    *recordingNotifier
	plans       *PlanService
	requests    *RequestService
	investments *InvestmentService
	history     *HistoryService
	orch        *Orchestrator
	portfolios  *PortfolioService
	referrals   *ReferralService
	now         time.Time
}

func newEnv(t *testing.T) *ledgerEnv {
	t.Helper()
	db := newTestDB(t)
	env := &ledgerEnv{
		db:       db,
		files:    newMemStore(),
		notifier: &recordingNotifier{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return env.now }
	users := NewInvestorDirectory(db)

	env.plans = NewPlanService(db)
	env.requests = NewRequestService(db, users, env.files, env.notifier)
	env.investments = NewInvestmentService(db, users, env.notifier)
	env.history = NewHistoryService(db)
	env.orch = NewOrchestrator(db, env.notifier, 0)
	env.orch.Now = clock
	env.portfolios = NewPortfolioService(db, env.notifier)
	env.portfolios.Now = clock
	env.referrals = NewReferralService(db, 30)
	env.referrals.Now = clock
	return env
}

const testWallet = "0xabc123"

// addInvestor mirrors a user into the directory. An empty wallet leaves it unregistered.
func (e *ledgerEnv) addInvestor(t *testing.T, userID, wallet string, verified bool) {
	t.Helper()
	inv := models.Investor{
		ID:                 uuid.NewString(),
		ExternalUserID:     userID,
		Username:           "user-" + userID,
		Email:              userID + "@example.com",
		IsVerified:         verified,
		VerificationStatus: models.VerificationPending,
	}
	if verified {
		inv.VerificationStatus = models.VerificationVerified
	}
	if wallet != "" {
		inv.TrustWalletAddress = &wallet
	}
	if err := e.db.Create(&inv).Error; err != nil {
		t.Fatalf("create investor: %v", err)
	}
}

func proofImage() *Upload {
	return &Upload{Name: "proof.png", ContentType: "image/png", Body: bytes.NewReader([]byte("png"))}
}

func (e *ledgerEnv) submit(t *testing.T, userID string, typ models.RequestType, plan string, amount float64) *models.TransactionRequest {
	t.Helper()
	in := SubmitRequest{UserID: userID, Amount: amount, Type: typ, Plan: plan, WalletAddress: testWallet}
	if typ == models.RequestDeposit {
		in.Image = proofImage()
	}
	req, err := e.requests.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("submit %s %v: %v", typ, amount, err)
	}
	return req
}

func (e *ledgerEnv) approve(t *testing.T, id string) *models.TransactionRequest {
	t.Helper()
	req, err := e.orch.DecideTransaction(context.Background(), id, Decision{Action: ActionApprove, DecidedBy: "admin-1"})
	if err != nil {
		t.Fatalf("approve %s: %v", id, err)
	}
	return req
}

func (e *ledgerEnv) portfolio(t *testing.T, userID string) *models.Portfolio {
	t.Helper()
	p, err := e.portfolios.GetPortfolio(context.Background(), userID)
	if err != nil {
		t.Fatalf("get portfolio %s: %v", userID, err)
	}
	return p
}

func (e *ledgerEnv) historyOf(t *testing.T, requestID string) *models.TransactionHistory {
	t.Helper()
	h, err := e.history.ForRequest(context.Background(), requestID)
	if err != nil {
		t.Fatalf("history for %s: %v", requestID, err)
	}
	return h
}

func assertKind(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want kind %v", err, want)
	}
	if got := Kind(err); got != want {
		t.Fatalf("Kind(%v) = %v, want %v", err, got, want)
	}
}

func assertNear(t *testing.T, what string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-6 {
		t.Errorf("%s = %v, want %v", what, got, want)
	}
}

func assertBucket(t *testing.T, p *models.Portfolio, name models.PlanName, invested, current float64) {
	t.Helper()
	b := p.Bucket(name)
	if b == nil {
		t.Fatalf("portfolio has no %s bucket", name)
	}
	assertNear(t, string(name)+" invested", b.Invested, invested)
	assertNear(t, string(name)+" current value", b.CurrentValue, current)
	assertNear(t, string(name)+" returns", b.Returns, current-invested)
}

func assertConsistent(t *testing.T, p *models.Portfolio) {
	t.Helper()
	if err := p.CheckInvariants(1e-6); err != nil {
		t.Fatalf("portfolio invariants: %v", err)
	}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
