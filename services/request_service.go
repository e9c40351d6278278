package services

import (
	"context"
	"io"
	"math"
	"strings"

	"portfolio-ledger/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RequestService is the request ledger for deposits and withdrawals.
type RequestService struct {
	DB       *gorm.DB
	Users    UserDirectory
	Files    FileStore
	Notifier Notifier
	History  *HistoryService
}

func NewRequestService(db *gorm.DB, users UserDirectory, files FileStore, notifier Notifier) *RequestService {
	return &RequestService{
		DB:       db,
		Users:    users,
		Files:    files,
		Notifier: notifier,
		History:  NewHistoryService(db),
	}
}

// Upload is a proof image handed to the file store.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

// SubmitRequest carries a user's deposit or withdrawal submission.
type SubmitRequest struct {
	UserID        string
	Amount        float64
	Type          models.RequestType
	Plan          string
	WalletAddress string
	WalletTxID    *string
	Image         *Upload
}

func validAmount(a float64) bool {
	return a > 0 && !math.IsInf(a, 0) && !math.IsNaN(a)
}

// Submit stores a pending request and its history row in one transaction, then notifies the
// admins.
func (s *RequestService) Submit(ctx context.Context, in SubmitRequest) (*models.TransactionRequest, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return nil, validationf("user id is required")
	}
	if !validAmount(in.Amount) {
		return nil, validationf("amount must be greater than 0")
	}
	if !in.Type.Valid() {
		return nil, validationf("type must be deposit or withdrawal, got %q", in.Type)
	}
	plan, err := models.ParsePlanName(in.Plan)
	if err != nil {
		return nil, validationf("%v", err)
	}
	wallet := strings.TrimSpace(in.WalletAddress)
	if wallet == "" {
		return nil, validationf("wallet address is required")
	}

	user, err := s.Users.GetUser(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if err := checkEligible(user, wallet); err != nil {
		return nil, err
	}
	if in.Type == models.RequestDeposit && in.Image == nil {
		return nil, validationf("transaction image is required for deposits")
	}

	catalogPlan, err := getPlan(s.DB.WithContext(ctx), plan)
	if err != nil {
		return nil, err
	}
	if in.Type == models.RequestDeposit && !catalogPlan.IsActive {
		return nil, validationf("plan %s is not accepting deposits", plan)
	}

	req := &models.TransactionRequest{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		Amount:        in.Amount,
		Type:          in.Type,
		Plan:          plan,
		WalletAddress: wallet,
		WalletTxID:    in.WalletTxID,
		Status:        models.StatusPending,
	}

	if in.Image != nil {
		url, key, err := s.Files.Store(ctx, req.ID+"-"+in.Image.Name, in.Image.Body, in.Image.ContentType)
		if err != nil {
			return nil, internal("store transaction image", err)
		}
		req.TransactionImage, req.TransactionImageKey = url, key
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(req).Error; err != nil {
			return internal("create request", err)
		}
		_, err := s.History.Record(tx, req.UserID, req.Amount, models.HistoryType(req.Type), req.ID)
		return err
	})
	if err != nil {
		s.discardImage(req)
		return nil, internal("submit request", err)
	}

	log := logrus.WithFields(logrus.Fields{"request_id": req.ID, "user_id": req.UserID, "type": req.Type, "plan": req.Plan})
	log.Info("transaction request submitted")

	title, msg := submissionMessage(string(req.Type), user.DisplayName(), req.Amount, req.Plan)
	if err := s.Notifier.NotifyAdmins(ctx, msg, title); err != nil {
		log.WithError(err).Warn("admin notification failed")
	}
	return req, nil
}

func checkEligible(user *models.Investor, wallet string) error {
	if !user.Verified() {
		return forbiddenf("user must be verified to submit requests")
	}
	if user.TrustWalletAddress != nil && *user.TrustWalletAddress != "" && *user.TrustWalletAddress != wallet {
		return forbiddenf("wallet address does not match the registered wallet")
	}
	return nil
}

func (s *RequestService) discardImage(req *models.TransactionRequest) {
	if req.TransactionImageKey == "" {
		return
	}
	if err := s.Files.Delete(context.Background(), req.TransactionImageKey); err != nil {
		logrus.WithError(err).WithField("key", req.TransactionImageKey).Warn("failed to delete orphaned transaction image")
	}
}

// Get returns a request by id.
func (s *RequestService) Get(ctx context.Context, id string) (*models.TransactionRequest, error) {
	var req models.TransactionRequest
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, lookup(err, "transaction request", id)
	}
	return &req, nil
}

// RequestFilter selects requests. Zero fields do not filter.
type RequestFilter struct {
	UserID string
	Status models.RequestStatus
	Type   models.RequestType
	Plan   models.PlanName
	Range  DateRange
	Search string
	PageQuery
}

var requestSortable = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"amount":    "amount",
	"status":    "status",
	"type":      "type",
}

func (s *RequestService) List(ctx context.Context, f RequestFilter) (Page[models.TransactionRequest], error) {
	if f.Status != "" && !f.Status.Valid() {
		return Page[models.TransactionRequest]{}, validationf("invalid status %q", f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return Page[models.TransactionRequest]{}, validationf("invalid type %q", f.Type)
	}
	if f.Plan != "" && !f.Plan.Valid() {
		return Page[models.TransactionRequest]{}, validationf("invalid plan %q", f.Plan)
	}

	q := s.DB.WithContext(ctx).Model(&models.TransactionRequest{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Plan != "" {
		q = q.Where("plan = ?", f.Plan)
	}
	q = f.Range.apply(q, "created_at")
	if term := searchTerm(f.Search); term != "" {
		q = q.Where(
			"LOWER(wallet_address) LIKE ? OR CAST(id AS TEXT) LIKE ? OR user_id IN (?)",
			term, term,
			s.DB.Model(&models.Investor{}).Select("external_user_id").
				Where("LOWER(username) LIKE ? OR LOWER(email) LIKE ?", term, term),
		)
	}

	page, err := paginate[models.TransactionRequest](q, f.PageQuery, requestSortable, "created_at")
	if err != nil {
		return page, internal("list requests", err)
	}
	return page, nil
}

// ListMine lists the caller's own requests.
func (s *RequestService) ListMine(ctx context.Context, userID string, f RequestFilter) (Page[models.TransactionRequest], error) {
	if userID == "" {
		return Page[models.TransactionRequest]{}, validationf("user id is required")
	}
	f.UserID = userID
	return s.List(ctx, f)
}

// Delete is the admin cleanup path: it removes the request, its history row and its proof
// image. Portfolio effects of an approved request are not reverted.
func (s *RequestService) Delete(ctx context.Context, id string) error {
	var req models.TransactionRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&req).Error; err != nil {
			return lookup(err, "transaction request", id)
		}
		if err := tx.Where("txn_req_id = ?", id).Delete(&models.TransactionHistory{}).Error; err != nil {
			return internal("delete history", err)
		}
		if err := tx.Delete(&req).Error; err != nil {
			return internal("delete request", err)
		}
		return nil
	})
	if err != nil {
		return internal("delete request", err)
	}

	s.discardImage(&req)
	logrus.WithFields(logrus.Fields{"request_id": id, "status": req.Status}).Info("transaction request deleted")
	return nil
}
