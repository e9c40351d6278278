package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"portfolio-ledger/models"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

func TestDepositWithdrawalLifecycle(t *testing.T) {
	env := newEnv(t)
	env.addInvestor(t, "u1", testWallet, true)

	// A fresh user's first approved deposit creates the portfolio.
	dep := env.submit(t, "u1", models.RequestDeposit, "silver", 500)
	approved := env.approve(t, dep.ID)
	if approved.Status != models.StatusApproved || approved.DecidedAt == nil {
		t.Fatalf("approved request = %+v", approved)
	}
	p := env.portfolio(t, "u1")
	assertBucket(t, p, models.PlanSilver, 500, 500)
	assertBucket(t, p, models.PlanGold, 0, 0)
	assertNear(t, "total invested", p.TotalInvested, 500)
	assertNear(t, "current value", p.CurrentValue, 500)
	assertNear(t, "total returns", p.TotalReturns, 0)
	assertNear(t, "total returns pct", p.TotalReturnsPercentage, 0)
	assertConsistent(t, p)

	// Partial withdrawal.
	wd := env.submit(t, "u1", models.RequestWithdrawal, "silver", 200)
	env.approve(t, wd.ID)
	p = env.portfolio(t, "u1")
	assertBucket(t, p, models.PlanSilver, 300, 300)
	assertNear(t, "total invested", p.TotalInvested, 300)
	assertConsistent(t, p)

	// Withdrawal above the invested capital clamps at zero.
	big := env.submit(t, "u1", models.RequestWithdrawal, "silver", 1000)
	env.approve(t, big.ID)
	p = env.portfolio(t, "u1")
	assertBucket(t, p, models.PlanSilver, 0, 0)
	assertNear(t, "total invested", p.TotalInvested, 0)
	assertConsistent(t, p)

	// Every approval left one price point on the bucket.
	if got := len(p.Bucket(models.PlanSilver).PriceHistory); got != 3 {
		t.Errorf("silver price history has %d points, want 3", got)
	}
	for _, id := range []string{dep.ID, wd.ID, big.ID} {
		if h := env.historyOf(t, id); h.Status != models.StatusApproved {
			t.Errorf("history of %s = %s, want approved", id, h.Status)
		}
	}
}

func TestRejectLeavesPortfolioUntouched(t *testing.T) {
	env := newEnv(t)
	env.addInvestor(t, "u1", testWallet, true)
	ctx := context.Background()

	req := env.submit(t, "u1", models.RequestDeposit, "gold", 300)
	got, err := env.orch.DecideTransaction(ctx, req.ID, Decision{Action: ActionReject, RejectionReason: "insufficient proof"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Status != models.StatusRejected || got.RejectionReason != "insufficient proof" {
		t.Errorf("rejected request = %+v", got)
	}

	stored, err := env.requests.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != models.StatusRejected || stored.RejectionReason != "insufficient proof" {
		t.Errorf("stored request = %+v", stored)
	}
	if h := env.historyOf(t, req.ID); h.Status != models.StatusRejected {
		t.Errorf("history status = %s, want rejected", h.Status)
	}
	_, err = env.portfolios.GetPortfolio(ctx, "u1")
	assertKind(t, err, ErrNotFound)

	jobs := env.notifier.userJobs()
	if len(jobs) != 1 || !containsAll(jobs[0].Message, "rejected", "insufficient proof") {
		t.Errorf("user notifications = %+v", jobs)
	}
}

func TestDecisionIsIdempotent(t *testing.T) {
	env := newEnv(t)
	env.addInvestor(t, "u1", testWallet, true)
	ctx := context.Background()

	req := env.submit(t, "u1", models.RequestDeposit, "silver", 500)
	env.approve(t, req.ID)
	before := env.portfolio(t, "u1")

	for _, d := range []Decision{
		{Action: ActionApprove},
		{Action: ActionReject, RejectionReason: "too late"},
	} {
		_, err := env.orch.DecideTransaction(ctx, req.ID, d)
		assertKind(t, err, ErrInvalidState)
	}

	after := env.portfolio(t, "u1")
	assertNear(t, "total invested", after.TotalInvested, before.TotalInvested)
	if after.Version != before.Version {
		t.Errorf("portfolio version moved from %d to %d", before.Version, after.Version)
	}
	if h := env.historyOf(t, req.ID); h.Status != models.StatusApproved {
		t.Errorf("history status = %s, want approved", h.Status)
	}
}

func TestConcurrentApprovalCreditsOnce(t *testing.T) {
	env := newEnv(t)
	env.addInvestor(t, "u1", testWallet, true)
	ctx := context.Background()

	for trial := 0; trial < 5; trial++ {
		req := env.submit(t, "u1", models.RequestDeposit, "silver", 100)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = env.orch.DecideTransaction(ctx, req.ID, Decision{Action: ActionApprove})
			}(i)
		}
		wg.Wait()

		var ok, already int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInvalidState):
				already++
			default:
				t.Fatalf("trial %d: unexpected error %v", trial, err)
			}
		}
		if ok != 1 || already != 1 {
			t.Fatalf("trial %d: %d succeeded, %d already decided", trial, ok, already)
		}
	}

	p := env.portfolio(t, "u1")
	assertBucket(t, p, models.PlanSilver, 500, 500)
	assertConsistent(t, p)
}

func TestApprovalRefreshesReturnRateFromCatalog(t *testing.T) {
	env := newEnv(t)
	env.addInvestor(t, "u1", testWallet, true)
	ctx := context.Background()

	first := env.submit(t, "u1", models.RequestDeposit, "silver", 100)
	env.approve(t, first.ID)
	rr := env.portfolio(t, "u1").Bucket(models.PlanSilver).ReturnRate
	if rr.Min == nil || *rr.Min != 4 || rr.Max == nil || *rr.Max != 8 {
		t.Fatalf("initial return rate = %+v", rr)
	}

	lo, hi := 5.0, 9.5
	if _, err := env.plans.UpsertPlan(ctx, "silver", PlanUpdate{MinReturnRate: &lo, MaxReturnRate: &hi}); err != nil {
		t.Fatalf("update plan: %v", err)
	}
	second := env.submit(t, "u1", models.RequestDeposit, "silver", 50)
	env.approve(t, second.ID)

	rr = env.portfolio(t, "u1").Bucket(models.PlanSilver).ReturnRate
	if rr.Min == nil || *rr.Min != 5 || rr.Max == nil || *rr.Max != 9.5 {
		t.Errorf("return rate after catalog change = %+v, want 5..9.5", rr)
	}
}

func TestBucketsAreIndependent(t *testing.T) {
	env := newEnv(t)
	env.addInvestor(t, "u1", testWallet, true)

	env.approve(t, env.submit(t, "u1", models.RequestDeposit, "silver", 150).ID)
	env.approve(t, env.submit(t, "u1", models.RequestDeposit, "gold", 300).ID)
	env.approve(t, env.submit(t, "u1", models.RequestDeposit, "platinum", 700).ID)
	env.approve(t, env.submit(t, "u1", models.RequestWithdrawal, "gold", 100).ID)

	p := env.portfolio(t, "u1")
	assertBucket(t, p, models.PlanSilver, 150, 150)
	assertBucket(t, p, models.PlanGold, 200, 200)
	assertBucket(t, p, models.PlanPlatinum, 700, 700)
	assertNear(t, "total invested", p.TotalInvested, 1050)
	assertConsistent(t, p)
	for i, name := range models.PlanNames {
		if p.Plans[i].Name != name {
			t.Errorf("bucket %d = %s, want %s", i, p.Plans[i].Name, name)
		}
	}
}

func TestDecisionValidation(t *testing.T) {
	env := newEnv(t)
	env.addInvestor(t, "u1", testWallet, true)
	ctx := context.Background()
	req := env.submit(t, "u1", models.RequestDeposit, "silver", 100)

	tests := []struct {
		name string
		id   string
		d    Decision
		want error
	}{
		{"reject without reason", req.ID, Decision{Action: ActionReject}, ErrValidation},
		{"reject with blank reason", req.ID, Decision{Action: ActionReject, RejectionReason: "  "}, ErrValidation},
		{"unknown action", req.ID, Decision{Action: "maybe"}, ErrValidation},
		{"unknown request", "00000000-0000-0000-0000-000000000000", Decision{Action: ActionApprove}, ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.orch.DecideTransaction(ctx, tc.id, tc.d)
			assertKind(t, err, tc.want)
		})
	}

	stored, err := env.requests.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != models.StatusPending {
		t.Errorf("status = %s after rejected inputs, want pending", stored.Status)
	}
}

func TestNotifierFailureDoesNotRollBack(t *testing.T) {
	env := newEnv(t)
	env.addInvestor(t, "u1", testWallet, true)
	env.notifier.err = errors.New("sink down")

	req := env.submit(t, "u1", models.RequestDeposit, "gold", 250)
	got, err := env.orch.DecideTransaction(context.Background(), req.ID, Decision{Action: ActionApprove})
	if err != nil {
		t.Fatalf("decide with failing notifier: %v", err)
	}
	if got.Status != models.StatusApproved {
		t.Errorf("status = %s", got.Status)
	}
	assertBucket(t, env.portfolio(t, "u1"), models.PlanGold, 250, 250)
	if len(env.notifier.userJobs()) != 1 {
		t.Errorf("notifier was not attempted")
	}
}

func TestInvestmentDecisionIsStatusOnly(t *testing.T) {
	env := newEnv(t)
	env.addInvestor(t, "u1", testWallet, true)
	ctx := context.Background()

	inv, err := env.investments.Submit(ctx, SubmitInvestment{
		UserID: "u1", Amount: 400, Plan: "gold", WalletAddress: testWallet, Reason: "grow savings",
	})
	if err != nil {
		t.Fatalf("submit investment: %v", err)
	}
	if h := env.historyOf(t, inv.ID); h.Type != models.HistoryInvestment || h.Status != models.StatusPending {
		t.Fatalf("history = %+v", h)
	}

	got, err := env.orch.DecideInvestment(ctx, inv.ID, Decision{Action: ActionApprove})
	if err != nil {
		t.Fatalf("decide investment: %v", err)
	}
	if got.Status != models.StatusApproved {
		t.Errorf("status = %s", got.Status)
	}
	if h := env.historyOf(t, inv.ID); h.Status != models.StatusApproved {
		t.Errorf("history status = %s", h.Status)
	}
	_, err = env.portfolios.GetPortfolio(ctx, "u1")
	assertKind(t, err, ErrNotFound)

	_, err = env.orch.DecideInvestment(ctx, inv.ID, Decision{Action: ActionReject, RejectionReason: "again"})
	assertKind(t, err, ErrInvalidState)
}

func TestReferralRewardFlow(t *testing.T) {
	env := newEnv(t)
	env.orch.ReferralRewardPercent = 5
	env.addInvestor(t, "referrer", testWallet, true)
	env.addInvestor(t, "u1", testWallet, true)
	ctx := context.Background()

	if _, err := env.referrals.RecordReferral(ctx, "referrer", "u1"); err != nil {
		t.Fatalf("record referral: %v", err)
	}

	first := env.submit(t, "u1", models.RequestDeposit, "gold", 500)
	env.approve(t, first.ID)
	// Only the first approved deposit opens a reward.
	env.approve(t, env.submit(t, "u1", models.RequestDeposit, "gold", 300).ID)

	page, err := env.referrals.ListTransactions(ctx, ReferralTxFilter{ReferrerID: "referrer"})
	if err != nil {
		t.Fatalf("list referral transactions: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("got %d referral transactions, want 1", page.Total)
	}
	rt := page.Items[0]
	if rt.Status != models.StatusPending || rt.TransactionRequestID != first.ID || rt.ReferredPlan != models.PlanGold {
		t.Fatalf("referral transaction = %+v", rt)
	}
	assertNear(t, "reward", rt.RewardAmount, 25)

	// The percentage cross-check rejects a mismatching approval without deciding it.
	wrong := 4.0
	_, err = env.orch.DecideReferral(ctx, rt.ID, ReferralDecision{Decision: Decision{Action: ActionApprove}, Percentage: &wrong})
	assertKind(t, err, ErrValidation)

	pct := 5.0
	got, err := env.orch.DecideReferral(ctx, rt.ID, ReferralDecision{
		Decision:   Decision{Action: ActionApprove, DecidedBy: "admin-1"},
		Percentage: &pct,
	})
	if err != nil {
		t.Fatalf("approve referral: %v", err)
	}
	if got.Status != models.StatusApproved || got.ApprovedBy != "admin-1" || got.ApprovedAt == nil {
		t.Errorf("decided referral = %+v", got)
	}

	p := env.portfolio(t, "referrer")
	assertNear(t, "referral rewards", p.ReferralRewards, 25)
	assertNear(t, "referral amount", p.ReferralAmount, 500)
	assertNear(t, "current value", p.CurrentValue, 25)
	assertNear(t, "total invested", p.TotalInvested, 0)
	assertConsistent(t, p)

	var ref models.Referral
	if err := env.db.Where("referred_id = ?", "u1").First(&ref).Error; err != nil {
		t.Fatalf("load referral: %v", err)
	}
	if !ref.RewardClaimed || ref.ClaimedAt == nil {
		t.Errorf("referral not claimed: %+v", ref)
	}

	_, err = env.orch.DecideReferral(ctx, rt.ID, ReferralDecision{Decision: Decision{Action: ActionApprove}})
	assertKind(t, err, ErrInvalidState)

	stats, err := env.referrals.Stats(ctx, "referrer")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalReferrals != 1 || stats.Claimed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	assertNear(t, "rewards earned", stats.RewardsEarned, 25)
}

func TestReferralRejectKeepsPortfolio(t *testing.T) {
	env := newEnv(t)
	env.orch.ReferralRewardPercent = 10
	env.addInvestor(t, "u1", testWallet, true)
	ctx := context.Background()

	if _, err := env.referrals.RecordReferral(ctx, "referrer", "u1"); err != nil {
		t.Fatalf("record referral: %v", err)
	}
	env.approve(t, env.submit(t, "u1", models.RequestDeposit, "silver", 100).ID)

	page, err := env.referrals.ListTransactions(ctx, ReferralTxFilter{Status: models.StatusPending})
	if err != nil || page.Total != 1 {
		t.Fatalf("pending referral transactions = %d, %v", page.Total, err)
	}
	_, err = env.orch.DecideReferral(ctx, page.Items[0].ID, ReferralDecision{Decision: Decision{Action: ActionReject}})
	assertKind(t, err, ErrValidation)

	got, err := env.orch.DecideReferral(ctx, page.Items[0].ID, ReferralDecision{
		Decision: Decision{Action: ActionReject, RejectionReason: "self referral"},
	})
	if err != nil {
		t.Fatalf("reject referral: %v", err)
	}
	if got.Status != models.StatusRejected {
		t.Errorf("status = %s", got.Status)
	}
	_, err = env.portfolios.GetPortfolio(ctx, "referrer")
	assertKind(t, err, ErrNotFound)
}

func TestExpiredReferralOpensNoReward(t *testing.T) {
	env := newEnv(t)
	env.orch.ReferralRewardPercent = 5
	env.addInvestor(t, "u1", testWallet, true)
	ctx := context.Background()

	env.referrals.ExpiryDays = 0
	if _, err := env.referrals.RecordReferral(ctx, "referrer", "u1"); err != nil {
		t.Fatalf("record referral: %v", err)
	}
	env.approve(t, env.submit(t, "u1", models.RequestDeposit, "silver", 100).ID)

	page, err := env.referrals.ListTransactions(ctx, ReferralTxFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 0 {
		t.Errorf("expired referral opened %d rewards", page.Total)
	}
}

func TestCheckRewardPercentage(t *testing.T) {
	tests := []struct {
		reward, deposit, pct float64
		ok                   bool
	}{
		{25, 500, 5, true},
		{25.005, 500, 5, true},
		{25.02, 500, 5, false},
		{20, 500, 5, false},
	}
	for _, tc := range tests {
		err := checkRewardPercentage(tc.reward, tc.deposit, tc.pct)
		if (err == nil) != tc.ok {
			t.Errorf("checkRewardPercentage(%v, %v, %v) = %v", tc.reward, tc.deposit, tc.pct, err)
		}
	}
}

// captureLogs records entries of the standard logger for the rest of the test.
func captureLogs(t *testing.T) *logtest.Hook {
	t.Helper()
	hook := logtest.NewGlobal()
	t.Cleanup(func() { logrus.StandardLogger().ReplaceHooks(make(logrus.LevelHooks)) })
	return hook
}

func assertWarned(t *testing.T, hook *logtest.Hook, msg string) {
	t.Helper()
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == msg {
			if e.Data[logrus.ErrorKey] == nil {
				t.Errorf("%q logged without an error", msg)
			}
			return
		}
	}
	t.Errorf("no warning %q logged", msg)
}

func TestAbortedDecisionsAreLogged(t *testing.T) {
	env := newEnv(t)
	env.orch.ReferralRewardPercent = 10
	env.addInvestor(t, "u1", testWallet, true)
	ctx := context.Background()

	inv, err := env.investments.Submit(ctx, SubmitInvestment{
		UserID: "u1", Amount: 300, Plan: "gold", WalletAddress: testWallet, Reason: "grow savings",
	})
	if err != nil {
		t.Fatalf("submit investment: %v", err)
	}
	// Without its history row the mirror step fails inside the transaction.
	if err := env.db.Where("txn_req_id = ?", inv.ID).Delete(&models.TransactionHistory{}).Error; err != nil {
		t.Fatalf("delete history: %v", err)
	}

	if _, err := env.referrals.RecordReferral(ctx, "referrer", "u1"); err != nil {
		t.Fatalf("record referral: %v", err)
	}
	env.approve(t, env.submit(t, "u1", models.RequestDeposit, "silver", 100).ID)
	page, err := env.referrals.ListTransactions(ctx, ReferralTxFilter{Status: models.StatusPending})
	if err != nil || page.Total != 1 {
		t.Fatalf("pending referral transactions = %d, %v", page.Total, err)
	}
	// Without its referral the claim step fails inside the transaction.
	if err := env.db.Where("referred_id = ?", "u1").Delete(&models.Referral{}).Error; err != nil {
		t.Fatalf("delete referral: %v", err)
	}

	hook := captureLogs(t)

	if _, err := env.orch.DecideInvestment(ctx, inv.ID, Decision{Action: ActionApprove}); err == nil {
		t.Fatal("investment decision succeeded without a history row")
	}
	assertWarned(t, hook, "investment decision aborted")
	var stored models.InvestRequest
	if err := env.db.First(&stored, "id = ?", inv.ID).Error; err != nil {
		t.Fatalf("reload investment: %v", err)
	}
	if stored.Status != models.StatusPending {
		t.Errorf("aborted investment decision left status %s", stored.Status)
	}

	if _, err := env.orch.DecideReferral(ctx, page.Items[0].ID, ReferralDecision{Decision: Decision{Action: ActionApprove}}); err == nil {
		t.Fatal("referral decision succeeded without a referral")
	}
	assertWarned(t, hook, "referral decision aborted")
	_, err = env.portfolios.GetPortfolio(ctx, "referrer")
	assertKind(t, err, ErrNotFound)
}
