package services

import (
	"context"
	"strings"

	"portfolio-ledger/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// InvestmentService is the request ledger for investment requests.
type InvestmentService struct {
	DB       *gorm.DB
	Users    UserDirectory
	Notifier Notifier
	History  *HistoryService
}

func NewInvestmentService(db *gorm.DB, users UserDirectory, notifier Notifier) *InvestmentService {
	return &InvestmentService{DB: db, Users: users, Notifier: notifier, History: NewHistoryService(db)}
}

// SubmitInvestment carries a user's investment request.
type SubmitInvestment struct {
	UserID        string
	Amount        float64
	Plan          string
	WalletAddress string
	Reason        string
}

// Submit stores a pending investment request and its history row atomically. Unlike deposits
// it requires a registered wallet equal to the given address.
func (s *InvestmentService) Submit(ctx context.Context, in SubmitInvestment) (*models.InvestRequest, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, validationf("user id is required")
	}
	if !validAmount(in.Amount) {
		return nil, validationf("amount must be greater than 0")
	}
	plan, err := models.ParsePlanName(in.Plan)
	if err != nil {
		return nil, validationf("%v", err)
	}
	wallet := strings.TrimSpace(in.WalletAddress)
	if wallet == "" {
		return nil, validationf("wallet address is required")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, validationf("reason is required")
	}

	user, err := s.Users.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := checkEligible(user, wallet); err != nil {
		return nil, err
	}
	if user.TrustWalletAddress == nil || *user.TrustWalletAddress == "" {
		return nil, forbiddenf("a registered wallet address is required for investment requests")
	}

	req := &models.InvestRequest{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Amount:        in.Amount,
		WalletAddress: wallet,
		Plan:          plan,
		Reason:        reason,
		Status:        models.StatusPending,
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return internal("create investment request", err)
		}
		_, err := s.History.Record(tx, req.UserID, req.Amount, models.HistoryInvestment, req.ID)
		return err
	})
	if err != nil {
		return nil, internal("submit investment request", err)
	}

	log := logrus.WithFields(logrus.Fields{"investment_id": req.ID, "user_id": req.UserID, "plan": req.Plan})
	log.Info("investment request submitted")
	title, msg := submissionMessage("investment", user.DisplayName(), req.Amount, req.Plan)
	if err := s.Notifier.NotifyAdmins(ctx, msg, title); err != nil {
		log.WithError(err).Warn("admin notification failed")
	}
	return req, nil
}

func (s *InvestmentService) Get(ctx context.Context, id string) (*models.InvestRequest, error) {
	var req models.InvestRequest
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, lookup(err, "investment request", id)
	}
	return &req, nil
}

// InvestmentFilter selects investment requests. Zero fields do not filter.
type InvestmentFilter struct {
	UserID string
	Status models.RequestStatus
	Plan   models.PlanName
	Range  DateRange
	Search string
	PageQuery
}

var investmentSortable = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"amount":    "amount",
	"status":    "status",
	"plan":      "plan",
}

func (s *InvestmentService) List(ctx context.Context, f InvestmentFilter) (Page[models.InvestRequest], error) {
	if f.Status != "" && !f.Status.Valid() {
		return Page[models.InvestRequest]{}, validationf("invalid status %q", f.Status)
	}
	if f.Plan != "" && !f.Plan.Valid() {
		return Page[models.InvestRequest]{}, validationf("invalid plan %q", f.Plan)
	}

	q := s.DB.WithContext(ctx).Model(&models.InvestRequest{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Plan != "" {
		q = q.Where("plan = ?", f.Plan)
	}
	q = f.Range.apply(q, "created_at")
	if term := searchTerm(f.Search); term != "" {
		q = q.Where(
			"LOWER(wallet_address) LIKE ? OR LOWER(reason) LIKE ? OR user_id IN (?)",
			term, term,
			s.DB.Model(&models.Investor{}).Select("external_user_id").
				Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", term, term),
		)
	}

	page, err := paginate[models.InvestRequest](q, f.PageQuery, investmentSortable, "created_at")
	if err != nil {
		return page, internal("list investment requests", err)
	}
	return page, nil
}
