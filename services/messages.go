package services

import (
	"fmt"

	"portfolio-ledger/models"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const displayCurrency = money.USD

// titleCase builds a fresh Caser per call; a Caser keeps state and is not safe for concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(s)
}

// formatAmount renders a ledger amount as currency, e.g. "$1,250.50".
func formatAmount(amount float64) string {
	cur := money.GetCurrency(displayCurrency)
	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, displayCurrency).Display()
}

func planLabel(name models.PlanName) string {
	return titleCase(string(name))
}

func decisionMessage(kind string, amount float64, plan models.PlanName, status models.RequestStatus, reason string) (title, message string) {
	title = fmt.Sprintf("%s %s", titleCase(kind), status)
	message = fmt.Sprintf("Your %s of %s on the %s plan has been %s.", kind, formatAmount(amount), planLabel(plan), status)
	if status == models.StatusRejected && reason != "" {
		message += " Reason: " + reason
	}
	return title, message
}

func submissionMessage(kind, who string, amount float64, plan models.PlanName) (title, message string) {
	title = fmt.Sprintf("New %s request", kind)
	message = fmt.Sprintf("%s requested a %s of %s on the %s plan.", who, kind, formatAmount(amount), planLabel(plan))
	return title, message
}
