package models

// HistoryType widens RequestType with the investment variant.
type HistoryType string

const (
	HistoryDeposit    HistoryType = "deposit"
	HistoryWithdrawal HistoryType = "withdrawal"
	HistoryInvestment HistoryType = "investment"
)

func (t HistoryType) Valid() bool {
	return t == HistoryDeposit || t == HistoryWithdrawal || t == HistoryInvestment
}

// TransactionHistory mirrors the status of exactly one request. Only Status is ever updated.
type TransactionHistory struct {
	ID       string        `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string        `gorm:"index;not null" json:"user_id"`
	Amount   float64       `gorm:"type:numeric(20,8);not null" json:"amount"`
	Type     HistoryType   `gorm:"type:varchar(16);index;not null" json:"type"`
	Status   RequestStatus `gorm:"type:varchar(16);index;not null;default:'pending'" json:"status"`
	TxnReqID string        `gorm:"type:uuid;uniqueIndex;not null" json:"txn_req_id"`

	Timestamps
}

func (TransactionHistory) TableName() string {
	return "transaction_history"
}
