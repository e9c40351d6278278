package config

import (
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	t.Setenv("SERVICE_TOKEN", "secret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("ACCRUAL_TIME", "01:30")
	t.Setenv("SYNC_INTERVAL", "90s")
	t.Setenv("REFERRAL_REWARD_PERCENT", "7.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.AccrualHour != 1 || cfg.AccrualMinute != 30 {
		t.Errorf("accrual time = %02d:%02d, want 01:30", cfg.AccrualHour, cfg.AccrualMinute)
	}
	if cfg.SyncInterval != 90*time.Second {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.ReferralRewardPercent != 7.5 {
		t.Errorf("ReferralRewardPercent = %v", cfg.ReferralRewardPercent)
	}
	if cfg.ReferralExpiryDays != 30 {
		t.Errorf("ReferralExpiryDays = %v, want default 30", cfg.ReferralExpiryDays)
	}
	if cfg.R2.Enabled() {
		t.Errorf("R2 should be disabled without credentials")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database", map[string]string{"SERVICE_TOKEN": "x"}},
		{"missing token", map[string]string{"DATABASE_URL": "postgres://x"}},
		{"bad clock", map[string]string{"DATABASE_URL": "postgres://x", "SERVICE_TOKEN": "x", "ACCRUAL_TIME": "25:00"}},
		{"bad percent", map[string]string{"DATABASE_URL": "postgres://x", "SERVICE_TOKEN": "x", "REFERRAL_REWARD_PERCENT": "150"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_URL", "")
			t.Setenv("SERVICE_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Errorf("Load() expected error")
			}
		})
	}
}
