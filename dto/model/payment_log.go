package model

import "time"

// PaymentLog is the audit row written once per finished workflow.
type PaymentLog struct {
	ID              uint      `gorm:"primaryKey" json:"id" bson:"-"`
	Reference       string    `gorm:"type:VARCHAR(64);index;not null" json:"reference" bson:"reference"`
	Amount          int64     `gorm:"type:BIGINT" json:"amount" bson:"amount"`
	Currency        string    `gorm:"type:VARCHAR(3)" json:"currency" bson:"currency"`
	First6          string    `gorm:"type:VARCHAR(6)" json:"first6" bson:"first6"`
	Last4           string    `gorm:"type:VARCHAR(4)" json:"last4" bson:"last4"`
	ExpMonth        int       `json:"expMonth" bson:"exp_month"`
	ExpYear         int       `json:"expYear" bson:"exp_year"`
	RiskOutcome     string    `gorm:"type:VARCHAR(20)" json:"riskOutcome" bson:"risk_outcome"`
	RiskScore       float64   `json:"riskScore" bson:"risk_score"`
	ThreeDsResult   string    `gorm:"type:VARCHAR(32)" json:"threeDsResult" bson:"three_ds_result"`
	ThreeDsVersion  string    `gorm:"type:VARCHAR(16)" json:"threeDsVersion" bson:"three_ds_version"`
	EciCode         string    `gorm:"type:VARCHAR(4)" json:"eciCode" bson:"eci_code"`
	CompletionState string    `gorm:"type:VARCHAR(20);index" json:"completionState" bson:"completion_state"`
	PaymentOutcome  string    `gorm:"type:VARCHAR(32)" json:"paymentOutcome" bson:"payment_outcome"`
	FailReason      string    `gorm:"type:TEXT" json:"failReason" bson:"fail_reason"`
	TokenDeleted    bool      `json:"tokenDeleted" bson:"token_deleted"`
	StartedAt       time.Time `json:"startedAt" bson:"started_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt" bson:"created_at"`
}

func (PaymentLog) TableName() string {
	return "payment_logs"
}

// NewPaymentLog flattens a finished transaction into a log row.
func NewPaymentLog(t *Transaction) PaymentLog {
	entry := PaymentLog{
		Reference:   t.Payment.Reference,
		Amount:      t.Payment.Amount,
		Currency:    t.Payment.Currency,
		First6:      t.Payment.Card.BIN,
		Last4:       t.Payment.Card.Last4,
		ExpMonth:    t.Payment.Card.ExpiryMonth,
		ExpYear:     t.Payment.Card.ExpiryYear,
		RiskOutcome: string(t.Risk.Outcome),
		RiskScore:   t.Risk.Score,
		StartedAt:   t.CreatedAt,
	}
	if auth := t.Authentication; auth != nil {
		entry.ThreeDsResult = string(auth.Outcome)
		if auth.Authentication != nil {
			entry.ThreeDsVersion = auth.Authentication.Version
			entry.EciCode = auth.Authentication.ECI
		}
	}
	if c := t.Completion; c != nil {
		entry.CompletionState = string(c.State)
		entry.PaymentOutcome = c.PaymentOutcome
		entry.FailReason = c.Error
		entry.TokenDeleted = c.TokenDeleted
	}
	return entry
}
