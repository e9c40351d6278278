package services

import (
	"context"
	"time"

	"portfolio-ledger/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// AccrualReport summarizes one accrual run.
type AccrualReport struct {
	Scanned  int     `json:"scanned"`
	Updated  int     `json:"updated"`
	Skipped  int     `json:"skipped"`
	Failed   int     `json:"failed"`
	Credited float64 `json:"credited"`
}

// RunAccrual scans every portfolio holding a bucket with an admin rate and invested capital
// and accrues each one in its own transaction. A failing portfolio is logged and counted; the
// scan continues.
func (s *PortfolioService) RunAccrual(ctx context.Context, now time.Time) (AccrualReport, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.PortfolioPlan{}).
		Distinct("portfolio_id").
		Where("admin_set_return_rate > ? AND invested > ?", 0, 0).
		Pluck("portfolio_id", &ids).Error
	if err != nil {
		return AccrualReport{}, internal("scan portfolios", err)
	}

	report := AccrualReport{Scanned: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, internal("accrual run", ctx.Err())
		}
		credited, updated, err := s.AccruePortfolio(ctx, id, now)
		switch {
		case err != nil:
			report.Failed++
			logrus.WithError(err).WithField("portfolio_id", id).Error("accrual failed")
		case updated:
			report.Updated++
			report.Credited += credited
		default:
			report.Skipped++
		}
	}

	logrus.WithFields(logrus.Fields{
		"scanned": report.Scanned,
		"updated": report.Updated,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Info("daily accrual finished")
	return report, nil
}

// StartAccrualScheduler runs RunAccrual every day at hour:minute UTC until ctx is done.
func (s *PortfolioService) StartAccrualScheduler(ctx context.Context, hour, minute uint) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		gocron.NewTask(func() {
			if _, err := s.RunAccrual(ctx, s.now()); err != nil {
				logrus.WithError(err).Error("[Scheduler] accrual run failed")
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			logrus.WithError(err).Warn("[Scheduler] shutdown failed")
		}
	}()
	logrus.WithField("at", time.Date(0, 1, 1, int(hour), int(minute), 0, 0, time.UTC).Format("15:04")).
		Info("[Scheduler] daily accrual scheduled (UTC)")
	return sched, nil
}
