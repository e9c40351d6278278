package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"portfolio-ledger/models"
	"portfolio-ledger/services"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openDB connects to DATABASE_URL (from the environment or .env) and migrates the schema.
func openDB() (*gorm.DB, error) {
	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil, errors.New("DATABASE_URL environment variable not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// optionalFloat is a float flag that remembers whether it was set.
type optionalFloat struct {
	v   float64
	set bool
}

func (f *optionalFloat) String() string {
	if !f.set {
		return ""
	}
	return strconv.FormatFloat(f.v, 'f', -1, 64)
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	f.v, f.set = v, true
	return nil
}

func (f *optionalFloat) ptr() *float64 {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

// --- seedPlansCmd ---

type seedPlansCmd struct{}

func (*seedPlansCmd) Name() string     { return "seed-plans" }
func (*seedPlansCmd) Synopsis() string { return "creates the default silver, gold and platinum plans" }
func (*seedPlansCmd) Usage() string {
	return `ledgerctl seed-plans

Creates the default plans that are missing. Existing plans are left untouched.
`
}
func (*seedPlansCmd) SetFlags(*flag.FlagSet) {}

func (*seedPlansCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	n, err := services.NewPlanService(db).SeedDefaultPlans(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error seeding plans: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%d plan(s) created\n", n)
	return subcommands.ExitSuccess
}

// --- planCmd ---

type planCmd struct {
	name          string
	minInvestment optionalFloat
	maxInvestment optionalFloat
	minRate       optionalFloat
	maxRate       optionalFloat
	features      string
	active        string
}

func (*planCmd) Name() string     { return "plan" }
func (*planCmd) Synopsis() string { return "creates or updates a plan" }
func (*planCmd) Usage() string {
	return `ledgerctl plan -name <silver|gold|platinum> [-min-investment N] [-max-investment N] [-min-rate N] [-max-rate N] [-features a,b] [-active true|false]

Applies the given fields to the plan, creating it if absent. Unset flags keep their current value.
`
}

func (c *planCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "plan name")
	f.Var(&c.minInvestment, "min-investment", "minimum investment amount")
	f.Var(&c.maxInvestment, "max-investment", "maximum investment amount")
	f.Var(&c.minRate, "min-rate", "minimum annual return rate in percent")
	f.Var(&c.maxRate, "max-rate", "maximum annual return rate in percent")
	f.StringVar(&c.features, "features", "", "comma separated feature list")
	f.StringVar(&c.active, "active", "", "whether the plan accepts deposits (true or false)")
}

func (c *planCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.name == "" {
		fmt.Fprintln(os.Stderr, "Error: -name is required.")
		return subcommands.ExitUsageError
	}
	update := services.PlanUpdate{
		MinInvestment: c.minInvestment.ptr(),
		MaxInvestment: c.maxInvestment.ptr(),
		MinReturnRate: c.minRate.ptr(),
		MaxReturnRate: c.maxRate.ptr(),
	}
	if c.features != "" {
		for _, f := range strings.Split(c.features, ",") {
			if f = strings.TrimSpace(f); f != "" {
				update.Features = append(update.Features, f)
			}
		}
	}
	if c.active != "" {
		active, err := strconv.ParseBool(c.active)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -active %q\n", c.active)
			return subcommands.ExitUsageError
		}
		update.IsActive = &active
	}

	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	plan, err := services.NewPlanService(db).UpsertPlan(ctx, c.name, update)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error updating plan: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%s: investment %v..%v, return rate %s..%s, active=%v\n",
		plan.Name, plan.MinInvestment, plan.MaxInvestment, rate(plan.MinReturnRate), rate(plan.MaxReturnRate), plan.IsActive)
	return subcommands.ExitSuccess
}

func rate(r *float64) string {
	if r == nil {
		return "-"
	}
	return strconv.FormatFloat(*r, 'f', -1, 64) + "%"
}

// --- accrueCmd ---

type accrueCmd struct {
	at string
}

func (*accrueCmd) Name() string     { return "accrue" }
func (*accrueCmd) Synopsis() string { return "runs the daily return accrual once" }
func (*accrueCmd) Usage() string {
	return `ledgerctl accrue [-at 2006-01-02T15:04:05Z]

Credits one day of returns to every bucket with an admin rate that has not accrued on that UTC day.
`
}

func (c *accrueCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.at, "at", "", "RFC3339 time to accrue at (default now)")
}

func (c *accrueCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	now := time.Now().UTC()
	if c.at != "" {
		t, err := time.Parse(time.RFC3339, c.at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -at %q: %v\n", c.at, err)
			return subcommands.ExitUsageError
		}
		now = t.UTC()
	}

	db, err := openDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	logrus.SetLevel(logrus.WarnLevel)
	report, err := services.NewPortfolioService(db, services.NewNotificationService(db)).RunAccrual(ctx, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running accrual: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("scanned=%d updated=%d skipped=%d failed=%d credited=%s\n",
		report.Scanned, report.Updated, report.Skipped, report.Failed, strconv.FormatFloat(report.Credited, 'f', 2, 64))
	if report.Failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
