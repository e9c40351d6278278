package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"portfolio-ledger/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteProfile matches one user in the profile service's change feed.
type RemoteProfile struct {
	ExternalID         string    `json:"external_id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	FirstName          *string   `json:"first_name,omitempty"`
	LastName           *string   `json:"last_name,omitempty"`
	AccountStatus      string    `json:"account_status"`
	IsVerified         bool      `json:"is_verified"`
	VerificationStatus string    `json:"verification_status"`
	ReferredByID       *string   `json:"referred_by_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// GetProfileChangesResponse is the top-level structure of the profile feed.
type GetProfileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ReferralRecorder records the referral link of a newly seen investor.
type ReferralRecorder interface {
	RecordReferral(ctx context.Context, referrerID, referredID string) (*models.Referral, error)
}

// InvestorSyncWorker mirrors profile changes into the investors table.
type InvestorSyncWorker struct {
	db           *gorm.DB
	referrals    ReferralRecorder
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
}

func NewInvestorSyncWorker(db *gorm.DB, referrals ReferralRecorder, baseURL, serviceToken string, interval time.Duration, client *http.Client) *InvestorSyncWorker {
	return &InvestorSyncWorker{
		db:           db,
		referrals:    referrals,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: "/api/v1/public/profiles",
		serviceToken: serviceToken,
		httpClient:   client,
	}
}

func (w *InvestorSyncWorker) Start(ctx context.Context) {
	logrus.Info("🔁 Starting investor sync worker (profile service → investors)")
	go w.run(ctx)
}

func (w *InvestorSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncBatch(ctx, time.Time{}); err != nil {
		logrus.WithError(err).Warn("⚠️ initial investor sync failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncBatch(ctx, w.lastSyncTime()); err != nil {
				logrus.WithError(err).Error("❌ investor sync batch failed")
			}
		case <-ctx.Done():
			logrus.Info("⏹️ investor sync worker stopped")
			return
		}
	}
}

func (w *InvestorSyncWorker) lastSyncTime() time.Time {
	var last sql.NullTime
	row := w.db.Model(&models.Investor{}).Select("MAX(updated_at)").Row()
	if row == nil || row.Scan(&last) != nil || !last.Valid {
		return time.Unix(0, 0)
	}
	return last.Time
}

// SyncBatch fetches profile changes since the given time and upserts them. It returns the
// number of investors written.
func (w *InvestorSyncWorker) SyncBatch(ctx context.Context, since time.Time) (int, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return 0, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("profile service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return 0, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, string(body))
	}

	var response GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode profile feed: %w", err)
	}
	if len(response.Users) == 0 {
		return 0, nil
	}

	var upserted, failed int
	for _, remote := range response.Users {
		if err := w.upsert(ctx, remote); err != nil {
			failed++
			logrus.WithError(err).WithField("external_id", remote.ExternalID).Warn("⚠️ failed to upsert investor")
			continue
		}
		upserted++
	}

	logrus.WithFields(logrus.Fields{"received": len(response.Users), "upserted": upserted, "failed": failed}).
		Info("✅ investor sync batch done")
	return upserted, nil
}

func (w *InvestorSyncWorker) upsert(ctx context.Context, remote RemoteProfile) error {
	if remote.ExternalID == "" {
		return fmt.Errorf("profile without external_id")
	}
	status := models.VerificationStatus(remote.VerificationStatus)
	if status == "" {
		status = models.VerificationNone
	}
	inv := models.Investor{
		ID:                 uuid.NewString(),
		ExternalUserID:     remote.ExternalID,
		Username:           remote.Username,
		Email:              remote.Email,
		FirstName:          remote.FirstName,
		LastName:           remote.LastName,
		IsVerified:         remote.IsVerified,
		VerificationStatus: status,
		ReferredByID:       remote.ReferredByID,
		CreatedAt:          remote.CreatedAt,
		UpdatedAt:          remote.UpdatedAt,
	}
	err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "email", "first_name", "last_name",
			"is_verified", "verification_status", "referred_by_id", "updated_at",
		}),
	}).Create(&inv).Error
	if err != nil {
		return err
	}

	if remote.ReferredByID != nil && *remote.ReferredByID != "" && w.referrals != nil {
		if _, err := w.referrals.RecordReferral(ctx, *remote.ReferredByID, remote.ExternalID); err != nil {
			logrus.WithError(err).WithField("external_id", remote.ExternalID).Warn("⚠️ failed to record referral")
		}
	}
	return nil
}
