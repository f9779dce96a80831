package model

import (
	"errors"
	"fmt"
	"time"
)

type TokenInstrument struct {
	Type string `json:"type"`
	Href string `json:"href"`
}

// CardSummary is everything kept about the card after tokenization. The PAN is never stored.
type CardSummary struct {
	BIN         string `json:"bin"`
	Last4       string `json:"last4"`
	ExpiryMonth int    `json:"expiryMonth"`
	ExpiryYear  int    `json:"expiryYear"`
}

type Payment struct {
	Amount    int64           `json:"amount"`
	Currency  string          `json:"currency"`
	Reference string          `json:"reference"`
	Token     TokenInstrument `json:"token"`
	CVC       string          `json:"cvc"`
	Card      CardSummary     `json:"card"`
}

type DeviceDataCollection struct {
	JWT string `json:"jwt"`
	URL string `json:"url"`
	BIN string `json:"bin"`
}

type RiskOutcome string

const (
	RiskLow    RiskOutcome = "lowRisk"
	RiskHigh   RiskOutcome = "highRisk"
	RiskReview RiskOutcome = "review"
)

type RiskProfile struct {
	Href string `json:"href"`
}

type RiskAssessment struct {
	Outcome              RiskOutcome `json:"outcome"`
	TransactionReference string      `json:"transactionReference,omitempty"`
	Score                float64     `json:"score"`
	RiskProfile          RiskProfile `json:"riskProfile"`
}

// AuthOutcome is the tag of a 3DS authentication or verification result.
type AuthOutcome string

const (
	AuthAuthenticated AuthOutcome = "authenticated"
	AuthBypassed      AuthOutcome = "bypassed"
	AuthChallenged    AuthOutcome = "challenged"
	AuthFailed        AuthOutcome = "authenticationFailed"
	AuthUnavailable   AuthOutcome = "unavailable"
)

// Known reports whether the gateway sent one of the documented outcomes.
func (o AuthOutcome) Known() bool {
	switch o {
	case AuthAuthenticated, AuthBypassed, AuthChallenged, AuthFailed, AuthUnavailable:
		return true
	default:
		return false
	}
}

func (o AuthOutcome) Terminal() bool {
	switch o {
	case AuthAuthenticated, AuthBypassed, AuthFailed, AuthUnavailable:
		return true
	default:
		return false
	}
}

// Authorizable outcomes allow the charge to be submitted.
func (o AuthOutcome) Authorizable() bool {
	return o == AuthAuthenticated || o == AuthBypassed
}

// ThreeDSAuthentication is the block forwarded to the payment request.
type ThreeDSAuthentication struct {
	Version             string `json:"version,omitempty"`
	AuthenticationValue string `json:"authenticationValue,omitempty"`
	ECI                 string `json:"eci,omitempty"`
	TransactionID       string `json:"transactionId,omitempty"`
}

type Challenge struct {
	Reference string `json:"reference"`
	URL       string `json:"url"`
	JWT       string `json:"jwt"`
	Payload   string `json:"payload,omitempty"`
}

type AuthResult struct {
	Outcome              AuthOutcome            `json:"outcome"`
	TransactionReference string                 `json:"transactionReference,omitempty"`
	AcsTransactionID     string                 `json:"acsTransactionId,omitempty"`
	Status               string                 `json:"status,omitempty"`
	Enrolled             string                 `json:"enrolled,omitempty"`
	Authentication       *ThreeDSAuthentication `json:"authentication,omitempty"`
	Challenge            *Challenge             `json:"challenge,omitempty"`
}

// ErrAuthTransition is returned when an authentication result would move backwards.
var ErrAuthTransition = errors.New("illegal authentication transition")

type CompletionState string

const (
	CompletionProcessing CompletionState = "processing"
	CompletionCharged    CompletionState = "charged"
	CompletionDeclined   CompletionState = "declined"
	CompletionFailed     CompletionState = "failed"
	CompletionAbandoned  CompletionState = "abandoned"
)

type Completion struct {
	State           CompletionState        `json:"state"`
	PaymentOutcome  string                 `json:"paymentOutcome,omitempty"`
	PaymentResponse map[string]interface{} `json:"paymentResponse,omitempty"`
	Error           string                 `json:"error,omitempty"`
	TokenDeleted    bool                   `json:"tokenDeleted"`
	StartedAt       time.Time              `json:"startedAt"`
	CompletedAt     *time.Time             `json:"completedAt,omitempty"`
}

func (c *Completion) Final() bool {
	return c != nil && c.State != CompletionProcessing
}

// Transaction is the registry record of one payment attempt.
type Transaction struct {
	Payment              Payment              `json:"payment"`
	DeviceDataCollection DeviceDataCollection `json:"deviceDataCollection"`
	DeviceSessionID      string               `json:"deviceSessionId,omitempty"`
	ProfilingSessionID   string               `json:"profilingSessionId,omitempty"`
	Risk                 RiskAssessment       `json:"riskAssessment"`
	Authentication       *AuthResult          `json:"authentication,omitempty"`
	Completion           *Completion          `json:"completion,omitempty"`
	CreatedAt            time.Time            `json:"createdAt"`
}

// SetAuthentication applies next if the state machine allows it:
// absent to anything, challenged to terminal, nothing after terminal.
func (t *Transaction) SetAuthentication(next *AuthResult) error {
	if next == nil || !next.Outcome.Known() {
		return fmt.Errorf("%w: unknown outcome", ErrAuthTransition)
	}
	current := t.Authentication
	switch {
	case current == nil:
	case current.Outcome == AuthChallenged && next.Outcome.Terminal():
	default:
		return fmt.Errorf("%w: %s to %s", ErrAuthTransition, current.Outcome, next.Outcome)
	}
	t.Authentication = next
	return nil
}

// Challenged reports whether the record waits for a challenge callback.
func (t *Transaction) Challenged() bool {
	return t.Authentication != nil && t.Authentication.Outcome == AuthChallenged
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	out := *t
	if t.Authentication != nil {
		auth := *t.Authentication
		if auth.Authentication != nil {
			a := *auth.Authentication
			auth.Authentication = &a
		}
		if auth.Challenge != nil {
			c := *auth.Challenge
			auth.Challenge = &c
		}
		out.Authentication = &auth
	}
	if t.Completion != nil {
		c := *t.Completion
		c.PaymentResponse = cloneJSONMap(t.Completion.PaymentResponse)
		if t.Completion.CompletedAt != nil {
			at := *t.Completion.CompletedAt
			c.CompletedAt = &at
		}
		out.Completion = &c
	}
	return &out
}

// cloneJSONMap deep copies a decoded JSON object, nested HAL links included.
func cloneJSONMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = cloneJSONValue(v)
	}
	return out
}

func cloneJSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneJSONMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneJSONValue(item)
		}
		return out
	default:
		return v
	}
}

// TransactionSummary is the externally visible view of a record, without CVC or token.
type TransactionSummary struct {
	Reference       string     `json:"reference"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	CardBIN         string     `json:"cardBin"`
	CardLast4       string     `json:"cardLast4"`
	RiskOutcome     string     `json:"riskOutcome"`
	RiskScore       float64    `json:"riskScore"`
	AuthOutcome     string     `json:"authOutcome,omitempty"`
	ECI             string     `json:"eci,omitempty"`
	CompletionState string     `json:"completionState,omitempty"`
	PaymentOutcome  string     `json:"paymentOutcome,omitempty"`
	TokenDeleted    bool       `json:"tokenDeleted"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

func (t *Transaction) Summary() TransactionSummary {
	s := TransactionSummary{
		Reference:   t.Payment.Reference,
		Amount:      t.Payment.Amount,
		Currency:    t.Payment.Currency,
		CardBIN:     t.Payment.Card.BIN,
		CardLast4:   t.Payment.Card.Last4,
		RiskOutcome: string(t.Risk.Outcome),
		RiskScore:   t.Risk.Score,
		CreatedAt:   t.CreatedAt,
	}
	if t.Authentication != nil {
		s.AuthOutcome = string(t.Authentication.Outcome)
		if t.Authentication.Authentication != nil {
			s.ECI = t.Authentication.Authentication.ECI
		}
	}
	if t.Completion != nil {
		s.CompletionState = string(t.Completion.State)
		s.PaymentOutcome = t.Completion.PaymentOutcome
		s.TokenDeleted = t.Completion.TokenDeleted
		s.CompletedAt = t.Completion.CompletedAt
	}
	return s
}
