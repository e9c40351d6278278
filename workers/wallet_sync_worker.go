package workers

import (
	"context"
	"encoding/json"
	"errors"
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

// WalletSyncClient polls the wallet service for registered wallets.
type WalletSyncClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	DB         *gorm.DB
}

func NewWalletSyncClient(db *gorm.DB, baseURL, token string, client *http.Client) *WalletSyncClient {
	return &WalletSyncClient{BaseURL: baseURL, Token: token, HTTPClient: client, DB: db}
}

func (c *WalletSyncClient) GetChangedWallets(ctx context.Context, since time.Time) ([]models.WalletMirror, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	u = u.JoinPath("/api/v1/public/wallets")
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call wallet service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("wallet service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Wallets []models.WalletMirror `json:"wallets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode wallet service response: %w", err)
	}
	return response.Wallets, nil
}

// ApplyWallets upserts wallets into wallet_mirror and points each affected investor at their
// newest active wallet.
func (c *WalletSyncClient) ApplyWallets(ctx context.Context, wallets []models.WalletMirror) error {
	if len(wallets) == 0 {
		return nil
	}
	for i := range wallets {
		if wallets[i].ID == "" {
			wallets[i].ID = uuid.NewString()
		}
	}
	return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "address"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "chain", "is_active", "updated_at"}),
		}).Create(&wallets).Error; err != nil {
			return fmt.Errorf("upsert wallets: %w", err)
		}

		users := map[string]struct{}{}
		for _, w := range wallets {
			users[w.UserID] = struct{}{}
		}
		for userID := range users {
			var newest models.WalletMirror
			err := tx.Where("user_id = ? AND is_active = ?", userID, true).
				Order("updated_at DESC").First(&newest).Error
			var address interface{}
			switch {
			case err == nil:
				address = newest.Address
			case errors.Is(err, gorm.ErrRecordNotFound):
				address = nil
			default:
				return fmt.Errorf("load wallets of %s: %w", userID, err)
			}
			if err := tx.Model(&models.Investor{}).
				Where("external_user_id = ?", userID).
				Update("trust_wallet_address", address).Error; err != nil {
				return fmt.Errorf("update investor wallet %s: %w", userID, err)
			}
		}
		return nil
	})
}

// PollWallets syncs wallet changes every pollInterval until ctx is done.
func PollWallets(ctx context.Context, client *WalletSyncClient, pollInterval time.Duration) {
	logrus.Info("Starting wallet polling")
	lastSyncTime := time.Unix(0, 0).UTC()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logrus.Info("Wallet polling stopped")
			return
		case <-ticker.C:
			started := time.Now().UTC()
			wallets, err := client.GetChangedWallets(ctx, lastSyncTime)
			if err != nil {
				logrus.WithError(err).Error("❌ error polling wallets")
				continue
			}
			if err := client.ApplyWallets(ctx, wallets); err != nil {
				// lastSyncTime stays put so the same window is retried.
				logrus.WithError(err).WithField("count", len(wallets)).Error("❌ failed to apply wallets")
				continue
			}
			lastSyncTime = started
			if len(wallets) > 0 {
				logrus.WithField("count", len(wallets)).Info("✅ wallets synced")
			}
		}
	}
}
