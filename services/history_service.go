package services

import (
	"context"
	"time"

	"portfolio-ledger/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoryService maintains the status-mirroring history projection. Record and MirrorStatus
// only run inside the caller's transaction.
type HistoryService struct {
	DB *gorm.DB
}

func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{DB: db}
}

// Record creates the pending history row for a freshly created request.
func (s *HistoryService) Record(tx *gorm.DB, userID string, amount float64, typ models.HistoryType, requestID string) (*models.TransactionHistory, error) {
	h := &models.TransactionHistory{
		ID:       uuid.NewString(),
		UserID:   userID,
		Amount:   amount,
		Type:     typ,
		Status:   models.StatusPending,
		TxnReqID: requestID,
	}
	if err := tx.Create(h).Error; err != nil {
		return nil, internal("record history", err)
	}
	return h, nil
}

// MirrorStatus copies the request's new status onto its history row.
func (s *HistoryService) MirrorStatus(tx *gorm.DB, requestID string, status models.RequestStatus) error {
	res := tx.Model(&models.TransactionHistory{}).
		Where("txn_req_id = ?", requestID).
		Update("status", status)
	if res.Error != nil {
		return internal("mirror history status", res.Error)
	}
	if res.RowsAffected != 1 {
		return internal("mirror history status", gorm.ErrRecordNotFound)
	}
	return nil
}

// HistoryFilter selects history rows. Zero fields do not filter.
type HistoryFilter struct {
	UserID    string
	Status    models.RequestStatus
	Type      models.HistoryType
	MinAmount *float64
	MaxAmount *float64
	Day       *time.Time
	Range     DateRange
	PageQuery
}

var historySortable = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"amount":    "amount",
	"status":    "status",
	"type":      "type",
}

func (s *HistoryService) List(ctx context.Context, f HistoryFilter) (Page[models.TransactionHistory], error) {
	if f.Status != "" && !f.Status.Valid() {
		return Page[models.TransactionHistory]{}, validationf("invalid status %q", f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return Page[models.TransactionHistory]{}, validationf("invalid type %q", f.Type)
	}
	if f.MinAmount != nil && f.MaxAmount != nil && *f.MinAmount > *f.MaxAmount {
		return Page[models.TransactionHistory]{}, validationf("min amount exceeds max amount")
	}

	q := s.DB.WithContext(ctx).Model(&models.TransactionHistory{})
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.MinAmount != nil {
		q = q.Where("amount >= ?", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		q = q.Where("amount <= ?", *f.MaxAmount)
	}
	if f.Day != nil {
		q = onDay(q, "created_at", *f.Day)
	}
	q = f.Range.apply(q, "created_at")

	page, err := paginate[models.TransactionHistory](q, f.PageQuery, historySortable, "created_at")
	if err != nil {
		return page, internal("list history", err)
	}
	return page, nil
}

func (s *HistoryService) Get(ctx context.Context, id string) (*models.TransactionHistory, error) {
	var h models.TransactionHistory
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&h).Error; err != nil {
		return nil, lookup(err, "history entry", id)
	}
	return &h, nil
}

// ForRequest returns the history row mirroring requestID.
func (s *HistoryService) ForRequest(ctx context.Context, requestID string) (*models.TransactionHistory, error) {
	var h models.TransactionHistory
	if err := s.DB.WithContext(ctx).Where("txn_req_id = ?", requestID).First(&h).Error; err != nil {
		return nil, lookup(err, "history for request", requestID)
	}
	return &h, nil
}
