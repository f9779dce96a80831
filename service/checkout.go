package service

import (
	"cardpay/config"
	httpdto "cardpay/dto/http"
	"cardpay/dto/model"
	"cardpay/helper"
	"cardpay/lib"
	"cardpay/repository"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Gateway is the subset of the Worldpay API the checkout needs.
type Gateway interface {
	CreateToken(ctx context.Context, card lib.CardDetails) (*model.TokenInstrument, error)
	DeleteToken(ctx context.Context, href string) error
	DeviceDataInit(ctx context.Context, reference string, token model.TokenInstrument) (*model.DeviceDataCollection, error)
	FraudsightAssessment(ctx context.Context, in lib.AssessmentRequest) (*model.RiskAssessment, error)
	Authenticate(ctx context.Context, in lib.AuthenticationRequest) (*model.AuthResult, error)
	Verify(ctx context.Context, reference, challengeReference string) (*model.AuthResult, error)
	CustomerInitiatedTransaction(ctx context.Context, in lib.PaymentRequest) (map[string]interface{}, error)
}

// PaymentLogSink receives one audit entry per finished transaction.
type PaymentLogSink interface {
	Enqueue(entry model.PaymentLog)
}

type CheckoutConfig struct {
	Amount       int64
	Currency     string
	Billing      config.BillingAddress
	CallbackURL  string
	AbandonAfter time.Duration
}

func CheckoutConfigFrom(cfg *config.AppConfig) CheckoutConfig {
	return CheckoutConfig{
		Amount:       cfg.Amount,
		Currency:     cfg.Currency,
		Billing:      cfg.Billing,
		CallbackURL:  cfg.CallbackURL(),
		AbandonAfter: cfg.Registry.AbandonAfter,
	}
}

// CheckoutService drives a payment through tokenization, device data collection,
// 3DS authentication and the final charge.
type CheckoutService struct {
	registry   repository.TransactionRegistry
	gateway    Gateway
	codec      *helper.MerchantDataCodec
	paymentLog PaymentLogSink
	cfg        CheckoutConfig
	validate   *validator.Validate

	now          func() time.Time
	newReference func() string
}

func NewCheckoutService(registry repository.TransactionRegistry, gateway Gateway, codec *helper.MerchantDataCodec, paymentLog PaymentLogSink, cfg CheckoutConfig) *CheckoutService {
	s := &CheckoutService{
		registry:     registry,
		gateway:      gateway,
		codec:        codec,
		paymentLog:   paymentLog,
		cfg:          cfg,
		now:          time.Now,
		newReference: newReference,
	}
	s.validate = s.newValidator()
	return s
}

func newReference() string {
	return "TEST-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (s *CheckoutService) newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("card_expiry", func(fl validator.FieldLevel) bool {
		month, year, err := helper.ParseCardExpiry(fl.Field().String())
		if err != nil {
			return false
		}
		now := s.now()
		return year > now.Year() || (year == now.Year() && month >= int(now.Month()))
	})
	return v
}

var validationMessages = map[string]string{
	"required":      "is required",
	"luhn_checksum": "is not a valid card number",
	"card_expiry":   "must be a future date in MM/YY format",
	"email":         "must be a valid email address",
	"numeric":       "must contain digits only",
	"oneof":         "has an unsupported value",
}

func (s *CheckoutService) validateStruct(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		if _, seen := out.Fields[fe.Field()]; seen {
			continue
		}
		msg, ok := validationMessages[fe.Tag()]
		if !ok {
			switch fe.Tag() {
			case "min", "max":
				msg = "has an invalid length"
			default:
				msg = "is invalid"
			}
		}
		out.Fields[fe.Field()] = msg
	}
	return out
}

type InitiateInput struct {
	Form     httpdto.PaymentFormRequest
	ClientIP string
}

// Initiate tokenizes the card, runs FraudSight and DDC initialization concurrently
// and stores the new transaction. It returns the generated reference.
func (s *CheckoutService) Initiate(ctx context.Context, in InitiateInput) (string, error) {
	form := in.Form
	form.CardNumber = helper.NormalizeCardNumber(form.CardNumber)
	form.CardExpiry = strings.TrimSpace(form.CardExpiry)
	form.CardCVC = strings.TrimSpace(form.CardCVC)
	if err := s.validateStruct(form); err != nil {
		observeStage(stageInitiate, "invalid")
		return "", err
	}
	month, year, _ := helper.ParseCardExpiry(form.CardExpiry)

	reference := s.newReference()
	token, err := s.gateway.CreateToken(ctx, lib.CardDetails{
		HolderName:  form.CardHolderName,
		Number:      form.CardNumber,
		ExpiryMonth: month,
		ExpiryYear:  year,
		Billing:     s.cfg.Billing,
	})
	if err != nil {
		observeStage(stageInitiate, "card_rejected")
		helper.WorkflowLogger.LogTransactionError(reference, s.cfg.Amount, err.Error(), map[string]interface{}{"stage": stageInitiate})
		return "", fmt.Errorf("%w: %w", ErrCardRejected, err)
	}

	payment := model.Payment{
		Amount:    s.cfg.Amount,
		Currency:  s.cfg.Currency,
		Reference: reference,
		Token:     *token,
		CVC:       form.CardCVC,
		Card: model.CardSummary{
			BIN:         helper.CardBIN(form.CardNumber),
			Last4:       helper.CardLast4(form.CardNumber),
			ExpiryMonth: month,
			ExpiryYear:  year,
		},
	}

	var risk *model.RiskAssessment
	var ddc *model.DeviceDataCollection
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		risk, err = s.gateway.FraudsightAssessment(gctx, lib.AssessmentRequest{
			Reference:    reference,
			Amount:       payment.Amount,
			Currency:     payment.Currency,
			Token:        payment.Token,
			SessionID:    form.TmxSessionID,
			IPAddress:    in.ClientIP,
			ShopperEmail: form.CardHolderEmail,
		})
		return err
	})
	g.Go(func() error {
		var err error
		ddc, err = s.gateway.DeviceDataInit(gctx, reference, payment.Token)
		return err
	})
	if err := g.Wait(); err != nil {
		observeStage(stageInitiate, "gateway_error")
		helper.WorkflowLogger.LogTransactionError(reference, payment.Amount, err.Error(), map[string]interface{}{"stage": stageInitiate})
		_ = s.releaseToken(ctx, reference, payment.Token.Href)
		return "", err
	}

	trx := &model.Transaction{
		Payment:              payment,
		DeviceDataCollection: *ddc,
		ProfilingSessionID:   form.TmxSessionID,
		Risk:                 *risk,
		CreatedAt:            s.now(),
	}
	if err := s.registry.Put(ctx, reference, trx); err != nil {
		observeStage(stageInitiate, "registry_error")
		_ = s.releaseToken(ctx, reference, payment.Token.Href)
		return "", fmt.Errorf("store transaction %s: %w", reference, err)
	}

	observeStage(stageInitiate, "ok")
	helper.WorkflowLogger.LogTransactionStep(reference, payment.Amount, "initiated", map[string]interface{}{
		"risk_outcome": risk.Outcome,
		"risk_score":   risk.Score,
		"card_bin":     payment.Card.BIN,
	})
	return reference, nil
}

// DeviceDataPage is what the browser needs to run device data collection.
type DeviceDataPage struct {
	Reference string
	FrameURL  string
}

// DeviceDataCollection builds the relay for the DDC iframe. It does not call the gateway.
func (s *CheckoutService) DeviceDataCollection(ctx context.Context, reference string) (*DeviceDataPage, error) {
	trx, err := s.registry.Get(ctx, reference)
	if err != nil {
		observeStage(stageDDC, "not_found")
		return nil, err
	}
	frameURL, err := PostFormURL(trx.DeviceDataCollection.URL, map[string]string{
		"JWT": trx.DeviceDataCollection.JWT,
		"Bin": trx.DeviceDataCollection.BIN,
	})
	if err != nil {
		return nil, err
	}
	observeStage(stageDDC, "ok")
	return &DeviceDataPage{Reference: reference, FrameURL: frameURL}, nil
}

// Transaction returns the stored record for reference.
func (s *CheckoutService) Transaction(ctx context.Context, reference string) (*model.Transaction, error) {
	return s.registry.Get(ctx, reference)
}

// PostFormURL points at the local auto-submitting form page which posts fields to target.
func PostFormURL(target string, fields map[string]string) (string, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode post form payload: %w", err)
	}
	q := url.Values{}
	q.Set("url", target)
	q.Set("p", string(payload))
	return "/post-form?" + q.Encode(), nil
}

// releaseToken deletes the card token. It runs on a context detached from the
// request so a disconnected browser does not leave the token live.
func (s *CheckoutService) releaseToken(ctx context.Context, reference, href string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	if err := s.gateway.DeleteToken(ctx, href); err != nil {
		helper.TokensLogger.LogTransactionError(reference, 0, err.Error(), map[string]interface{}{"step": "delete_token"})
		helper.Error("Failed to delete token for %s: %v", reference, err)
		return err
	}
	helper.TokensLogger.LogTransactionStep(reference, 0, "token_deleted", nil)
	return nil
}
