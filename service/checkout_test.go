package service

import (
	"cardpay/config"
	httpdto "cardpay/dto/http"
	"cardpay/dto/model"
	"cardpay/helper"
	"cardpay/lib"
	"cardpay/repository"
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

type stubGateway struct {
	mu    sync.Mutex
	calls map[string]int

	createTokenFn  func(ctx context.Context, card lib.CardDetails) (*model.TokenInstrument, error)
	deleteTokenFn  func(ctx context.Context, href string) error
	ddcInitFn      func(ctx context.Context, reference string, token model.TokenInstrument) (*model.DeviceDataCollection, error)
	fraudsightFn   func(ctx context.Context, in lib.AssessmentRequest) (*model.RiskAssessment, error)
	authenticateFn func(ctx context.Context, in lib.AuthenticationRequest) (*model.AuthResult, error)
	verifyFn       func(ctx context.Context, reference, challengeReference string) (*model.AuthResult, error)
	citFn          func(ctx context.Context, in lib.PaymentRequest) (map[string]interface{}, error)

	lastCard lib.CardDetails
	lastAuth lib.AuthenticationRequest
	lastCIT  lib.PaymentRequest
}

func newStubGateway() *stubGateway {
	return &stubGateway{calls: map[string]int{}}
}

func (g *stubGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *stubGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *stubGateway) record(op string) {
	g.mu.Lock()
	g.calls[op]++
	g.mu.Unlock()
}

func (g *stubGateway) CreateToken(ctx context.Context, card lib.CardDetails) (*model.TokenInstrument, error) {
	g.record(config.OpCreateToken)
	g.mu.Lock()
	g.lastCard = card
	g.mu.Unlock()
	if g.createTokenFn != nil {
		return g.createTokenFn(ctx, card)
	}
	return &model.TokenInstrument{Type: "card/tokenized", Href: "https://gw.test/tokens/t1"}, nil
}

func (g *stubGateway) DeleteToken(ctx context.Context, href string) error {
	g.record(config.OpDeleteToken)
	if g.deleteTokenFn != nil {
		return g.deleteTokenFn(ctx, href)
	}
	return nil
}

func (g *stubGateway) DeviceDataInit(ctx context.Context, reference string, token model.TokenInstrument) (*model.DeviceDataCollection, error) {
	g.record(config.OpDeviceDataInit)
	if g.ddcInitFn != nil {
		return g.ddcInitFn(ctx, reference, token)
	}
	return &model.DeviceDataCollection{JWT: "ddc.jwt", URL: "https://ddc.test/collect", BIN: "411111"}, nil
}

func (g *stubGateway) FraudsightAssessment(ctx context.Context, in lib.AssessmentRequest) (*model.RiskAssessment, error) {
	g.record(config.OpFraudsight)
	if g.fraudsightFn != nil {
		return g.fraudsightFn(ctx, in)
	}
	return &model.RiskAssessment{Outcome: model.RiskLow, Score: 10, RiskProfile: model.RiskProfile{Href: "https://gw.test/risk/1"}}, nil
}

func (g *stubGateway) Authenticate(ctx context.Context, in lib.AuthenticationRequest) (*model.AuthResult, error) {
	g.record(config.OpThreeDSAuthenticate)
	g.mu.Lock()
	g.lastAuth = in
	g.mu.Unlock()
	if g.authenticateFn != nil {
		return g.authenticateFn(ctx, in)
	}
	return authenticated(), nil
}

func (g *stubGateway) Verify(ctx context.Context, reference, challengeReference string) (*model.AuthResult, error) {
	g.record(config.OpThreeDSVerify)
	if g.verifyFn != nil {
		return g.verifyFn(ctx, reference, challengeReference)
	}
	return authenticated(), nil
}

func (g *stubGateway) CustomerInitiatedTransaction(ctx context.Context, in lib.PaymentRequest) (map[string]interface{}, error) {
	g.record(config.OpCustomerInitiated)
	g.mu.Lock()
	g.lastCIT = in
	g.mu.Unlock()
	if g.citFn != nil {
		return g.citFn(ctx, in)
	}
	return map[string]interface{}{"outcome": "authorized"}, nil
}

type memorySink struct {
	mu      sync.Mutex
	entries []model.PaymentLog
}

func (m *memorySink) Enqueue(entry model.PaymentLog) {
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
}

func authenticated() *model.AuthResult {
	return &model.AuthResult{
		Outcome: model.AuthAuthenticated,
		Authentication: &model.ThreeDSAuthentication{
			Version:             "2.1.0",
			AuthenticationValue: "AAABBBCCC=",
			ECI:                 "05",
			TransactionID:       "t-1",
		},
	}
}

func challenged() *model.AuthResult {
	return &model.AuthResult{
		Outcome:        model.AuthChallenged,
		Authentication: &model.ThreeDSAuthentication{Version: "2.1.0"},
		Challenge: &model.Challenge{
			Reference: "ch-1",
			URL:       "https://acs.test/challenge",
			JWT:       "challenge.jwt",
		},
	}
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *CheckoutService
	gateway  *stubGateway
	registry *repository.MemoryRegistry
	codec    *helper.MerchantDataCodec
	sink     *memorySink
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		gateway:  newStubGateway(),
		registry: repository.NewMemoryRegistry(time.Hour),
		codec:    helper.NewMerchantDataCodec("test-secret-0123456789", time.Hour),
		sink:     &memorySink{},
		now:      testNow,
	}
	f.svc = NewCheckoutService(f.registry, f.gateway, f.codec, f.sink, CheckoutConfig{
		Amount:       100,
		Currency:     "GBP",
		Billing:      config.BillingAddress{Address1: "221B Baker Street", City: "London", PostalCode: "NW1 6XE", CountryCode: "GB"},
		CallbackURL:  "http://localhost:3000/auth-callback",
		AbandonAfter: 15 * time.Minute,
	})
	f.svc.now = func() time.Time { return f.now }
	f.svc.newReference = func() string { return "R1" }
	return f
}

func validForm() httpdto.PaymentFormRequest {
	return httpdto.PaymentFormRequest{
		CardNumber:      "4111 1111 1111 1111",
		CardExpiry:      "12/30",
		CardCVC:         "123",
		CardHolderName:  "Sherlock Holmes",
		CardHolderEmail: "sherlock@example.com",
		TmxSessionID:    "tmx-1",
	}
}

func (f *fixture) initiate(t *testing.T) string {
	t.Helper()
	ref, err := f.svc.Initiate(context.Background(), InitiateInput{Form: validForm(), ClientIP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return ref
}

func (f *fixture) authenticate(t *testing.T, ref string) *AuthenticateResult {
	t.Helper()
	res, err := f.svc.Authenticate(context.Background(), AuthenticateInput{
		Form:         httpdto.AuthenticateRequest{Reference: ref, SessionID: "ddc-session", BrowserScreenHeight: "800", BrowserJavascriptEnabled: "true"},
		AcceptHeader: "text/html",
		UserAgent:    "Go-test",
		ClientIP:     "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return res
}

func TestInitiateStoresTransaction(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	if ref != "R1" {
		t.Fatalf("unexpected reference %q", ref)
	}

	trx, err := f.registry.Get(context.Background(), "R1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if trx.Payment.Amount != 100 || trx.Payment.Currency != "GBP" {
		t.Fatalf("unexpected payment %+v", trx.Payment)
	}
	if trx.Payment.Card.BIN != "411111" || trx.Payment.Card.Last4 != "1111" {
		t.Fatalf("unexpected card summary %+v", trx.Payment.Card)
	}
	if trx.DeviceDataCollection.JWT != "ddc.jwt" || trx.Risk.Outcome != model.RiskLow {
		t.Fatalf("ddc/risk not stored: %+v", trx)
	}
	if trx.ProfilingSessionID != "tmx-1" || trx.Authentication != nil {
		t.Fatalf("unexpected state %+v", trx)
	}

	card := f.gateway.lastCard
	if card.Number != "4111111111111111" || card.ExpiryMonth != 12 || card.ExpiryYear != 2030 {
		t.Fatalf("card not normalized: %+v", card)
	}
	if f.gateway.count(config.OpDeleteToken) != 0 {
		t.Fatal("token must stay live after successful initiation")
	}
}

func TestInitiateValidation(t *testing.T) {
	cases := map[string]struct {
		mutate func(*httpdto.PaymentFormRequest)
		field  string
	}{
		"checksum":    {func(r *httpdto.PaymentFormRequest) { r.CardNumber = "4111111111111112" }, "card_number"},
		"separators":  {func(r *httpdto.PaymentFormRequest) { r.CardNumber = "4111-1111-1111-1112" }, "card_number"},
		"short card":  {func(r *httpdto.PaymentFormRequest) { r.CardNumber = "4111" }, "card_number"},
		"expiry":      {func(r *httpdto.PaymentFormRequest) { r.CardExpiry = "1230" }, "card_expiry"},
		"expired":     {func(r *httpdto.PaymentFormRequest) { r.CardExpiry = "01/25" }, "card_expiry"},
		"bad month":   {func(r *httpdto.PaymentFormRequest) { r.CardExpiry = "13/30" }, "card_expiry"},
		"cvc":         {func(r *httpdto.PaymentFormRequest) { r.CardCVC = "12a" }, "card_cvc"},
		"email":       {func(r *httpdto.PaymentFormRequest) { r.CardHolderEmail = "nope" }, "card_holder_email"},
		"holder name": {func(r *httpdto.PaymentFormRequest) { r.CardHolderName = "" }, "card_holder_name"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			form := validForm()
			tc.mutate(&form)

			_, err := f.svc.Initiate(context.Background(), InitiateInput{Form: form})
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := vErr.Fields[tc.field]; !ok {
				t.Fatalf("expected %s to be rejected, got %v", tc.field, vErr.Fields)
			}
			if f.gateway.total() != 0 {
				t.Fatalf("invalid input must not reach the gateway, got %v", f.gateway.calls)
			}
		})
	}
}

func TestInitiateChecksumMessage(t *testing.T) {
	f := newFixture(t)
	form := validForm()
	form.CardNumber = "4111 1111 1111 1112"

	_, err := f.svc.Initiate(context.Background(), InitiateInput{Form: form})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := vErr.Fields["card_number"]; got != "is not a valid card number" {
		t.Fatalf("unexpected card number message %q", got)
	}
}

func TestInitiateTokenFailureIsCardRejected(t *testing.T) {
	f := newFixture(t)
	f.gateway.createTokenFn = func(context.Context, lib.CardDetails) (*model.TokenInstrument, error) {
		return nil, &lib.GatewayError{Operation: config.OpCreateToken, StatusCode: 400}
	}

	_, err := f.svc.Initiate(context.Background(), InitiateInput{Form: validForm()})
	if !errors.Is(err, ErrCardRejected) {
		t.Fatalf("expected ErrCardRejected, got %v", err)
	}
	var gwErr *lib.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected wrapped GatewayError, got %v", err)
	}
	if f.gateway.count(config.OpFraudsight) != 0 || f.gateway.count(config.OpDeviceDataInit) != 0 {
		t.Fatal("no further calls expected after tokenization failure")
	}
}

func TestInitiateIsAtomic(t *testing.T) {
	gatewayErr := &lib.GatewayError{Operation: "x", StatusCode: 500}
	cases := map[string]func(g *stubGateway){
		"risk fails": func(g *stubGateway) {
			g.fraudsightFn = func(context.Context, lib.AssessmentRequest) (*model.RiskAssessment, error) { return nil, gatewayErr }
		},
		"ddc fails": func(g *stubGateway) {
			g.ddcInitFn = func(context.Context, string, model.TokenInstrument) (*model.DeviceDataCollection, error) {
				return nil, gatewayErr
			}
		},
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			setup(f.gateway)

			_, err := f.svc.Initiate(context.Background(), InitiateInput{Form: validForm()})
			if !errors.Is(err, gatewayErr) {
				t.Fatalf("expected gateway error, got %v", err)
			}
			if _, err := f.registry.Get(context.Background(), "R1"); !errors.Is(err, repository.ErrTransactionNotFound) {
				t.Fatalf("no record may be stored, got %v", err)
			}
			if got := f.gateway.count(config.OpDeleteToken); got != 1 {
				t.Fatalf("expected token deleted once, got %d", got)
			}
		})
	}
}

func TestInitiateDuplicateReferenceReleasesToken(t *testing.T) {
	f := newFixture(t)
	f.initiate(t)

	_, err := f.svc.Initiate(context.Background(), InitiateInput{Form: validForm()})
	if !errors.Is(err, repository.ErrDuplicateReference) {
		t.Fatalf("expected duplicate reference, got %v", err)
	}
	if got := f.gateway.count(config.OpDeleteToken); got != 1 {
		t.Fatalf("expected token of rejected attempt deleted, got %d", got)
	}
}

func TestDeviceDataCollectionRelay(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	before := f.gateway.total()

	page, err := f.svc.DeviceDataCollection(context.Background(), ref)
	if err != nil {
		t.Fatalf("ddc: %v", err)
	}
	u, err := url.Parse(page.FrameURL)
	if err != nil {
		t.Fatalf("parse frame url: %v", err)
	}
	if u.Path != "/post-form" || u.Query().Get("url") != "https://ddc.test/collect" {
		t.Fatalf("unexpected frame url %s", page.FrameURL)
	}
	if p := u.Query().Get("p"); p != `{"Bin":"411111","JWT":"ddc.jwt"}` {
		t.Fatalf("unexpected payload %s", p)
	}
	if f.gateway.total() != before {
		t.Fatal("device data collection must not call the gateway")
	}

	if _, err := f.svc.DeviceDataCollection(context.Background(), "unknown"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAuthenticateFrictionless(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)

	res := f.authenticate(t, ref)
	if res.Challenge != nil || res.RedirectURL != "/auth-complete?reference=R1" {
		t.Fatalf("expected redirect to completion, got %+v", res)
	}

	auth := f.gateway.lastAuth
	if auth.CollectionReference != "ddc-session" || auth.ChallengeReturnURL != "http://localhost:3000/auth-callback" {
		t.Fatalf("unexpected authentication request %+v", auth)
	}
	if auth.Browser.UserAgentHeader != "Go-test" || auth.Browser.BrowserScreenHeight != 800 || !auth.Browser.BrowserJavascriptEnabled {
		t.Fatalf("browser data not passed through: %+v", auth.Browser)
	}

	trx, _ := f.registry.Get(context.Background(), ref)
	if trx.Authentication == nil || trx.Authentication.Outcome != model.AuthAuthenticated {
		t.Fatalf("authentication not stored: %+v", trx.Authentication)
	}
	if trx.DeviceSessionID != "ddc-session" {
		t.Fatalf("device session not stored: %q", trx.DeviceSessionID)
	}
}

func TestAuthenticateTwiceIsRejected(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	f.authenticate(t, ref)

	_, err := f.svc.Authenticate(context.Background(), AuthenticateInput{Form: httpdto.AuthenticateRequest{Reference: ref}})
	if !errors.Is(err, ErrWorkflowState) {
		t.Fatalf("expected workflow state error, got %v", err)
	}
	if got := f.gateway.count(config.OpThreeDSAuthenticate); got != 1 {
		t.Fatalf("expected one authentication call, got %d", got)
	}
}

func TestAuthenticateUnknownReference(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Authenticate(context.Background(), AuthenticateInput{Form: httpdto.AuthenticateRequest{Reference: "nope"}})
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.gateway.total() != 0 {
		t.Fatal("no gateway call expected")
	}
}

func TestAuthenticateUnexpectedOutcome(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	f.gateway.authenticateFn = func(context.Context, lib.AuthenticationRequest) (*model.AuthResult, error) {
		return &model.AuthResult{Outcome: "somethingNew"}, nil
	}

	_, err := f.svc.Authenticate(context.Background(), AuthenticateInput{Form: httpdto.AuthenticateRequest{Reference: ref}})
	var gwErr *lib.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	trx, _ := f.registry.Get(context.Background(), ref)
	if trx.Authentication != nil {
		t.Fatal("unexpected outcome must not be stored")
	}
}

func TestChallengeDefersCompletion(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	f.gateway.authenticateFn = func(context.Context, lib.AuthenticationRequest) (*model.AuthResult, error) {
		return challenged(), nil
	}

	res := f.authenticate(t, ref)
	if res.Challenge == nil || res.RedirectURL != "" {
		t.Fatalf("expected challenge page, got %+v", res)
	}
	u, _ := url.Parse(res.Challenge.FrameURL)
	if u.Query().Get("url") != "https://acs.test/challenge" {
		t.Fatalf("unexpected challenge target %s", res.Challenge.FrameURL)
	}
	if !strings.Contains(u.Query().Get("p"), `"JWT":"challenge.jwt"`) {
		t.Fatalf("challenge jwt missing from payload %s", u.Query().Get("p"))
	}
	if res.Challenge.CompleteURL != "/auth-complete?reference=R1" {
		t.Fatalf("unexpected complete url %s", res.Challenge.CompleteURL)
	}

	_, err := f.svc.Complete(context.Background(), ref)
	if !errors.Is(err, ErrWorkflowState) {
		t.Fatalf("expected completion to be refused while challenged, got %v", err)
	}
	if f.gateway.count(config.OpCustomerInitiated) != 0 || f.gateway.count(config.OpDeleteToken) != 0 {
		t.Fatal("no charge and no token deletion while challenge is pending")
	}
}

func challengeMD(t *testing.T, frameURL string) string {
	t.Helper()
	u, _ := url.Parse(frameURL)
	p := u.Query().Get("p")
	start := strings.Index(p, `"MD":"`)
	if start < 0 {
		t.Fatalf("no MD in %s", p)
	}
	rest := p[start+len(`"MD":"`):]
	return rest[:strings.Index(rest, `"`)]
}

func TestChallengeCallbackStoresVerifiedResult(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	f.gateway.authenticateFn = func(context.Context, lib.AuthenticationRequest) (*model.AuthResult, error) {
		return challenged(), nil
	}
	res := f.authenticate(t, ref)
	md := challengeMD(t, res.Challenge.FrameURL)

	var verifiedWith string
	f.gateway.verifyFn = func(_ context.Context, reference, challengeReference string) (*model.AuthResult, error) {
		verifiedWith = reference + "/" + challengeReference
		return authenticated(), nil
	}
	got, err := f.svc.ChallengeCallback(context.Background(), ChallengeCallbackInput{TransactionID: "txn-9", MerchantData: md})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}
	if got != ref || verifiedWith != "R1/txn-9" {
		t.Fatalf("unexpected verification %q %q", got, verifiedWith)
	}

	trx, _ := f.registry.Get(context.Background(), ref)
	if trx.Authentication.Outcome != model.AuthAuthenticated {
		t.Fatalf("verified result not stored: %+v", trx.Authentication)
	}

	if _, err := f.svc.ChallengeCallback(context.Background(), ChallengeCallbackInput{TransactionID: "txn-9", MerchantData: md}); !errors.Is(err, ErrWorkflowState) {
		t.Fatalf("expected second callback to be rejected, got %v", err)
	}
	if got := f.gateway.count(config.OpThreeDSVerify); got != 1 {
		t.Fatalf("expected one verification, got %d", got)
	}

	final, err := f.svc.Complete(context.Background(), ref)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if final.Completion.State != model.CompletionCharged {
		t.Fatalf("expected charge after challenge, got %+v", final.Completion)
	}
}

func TestChallengeCallbackRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	unknownMD, _ := f.codec.Encode("never-created")

	cases := map[string]struct {
		in   ChallengeCallbackInput
		want error
	}{
		"missing md":        {ChallengeCallbackInput{TransactionID: "t"}, ErrInvalidMerchantData},
		"garbage md":        {ChallengeCallbackInput{TransactionID: "t", MerchantData: "reference=R1"}, ErrInvalidMerchantData},
		"unknown reference": {ChallengeCallbackInput{TransactionID: "t", MerchantData: unknownMD}, ErrTransactionNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.ChallengeCallback(context.Background(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if f.gateway.total() != 0 {
		t.Fatalf("no gateway calls expected, got %v", f.gateway.calls)
	}
}

func TestChallengeCallbackWithoutPendingChallenge(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	md, _ := f.codec.Encode(ref)

	_, err := f.svc.ChallengeCallback(context.Background(), ChallengeCallbackInput{TransactionID: "t", MerchantData: md})
	if !errors.Is(err, ErrWorkflowState) {
		t.Fatalf("expected workflow state error, got %v", err)
	}
	if f.gateway.count(config.OpThreeDSVerify) != 0 {
		t.Fatal("verification must not be called")
	}
}

func TestCompleteCharges(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	f.authenticate(t, ref)

	final, err := f.svc.Complete(context.Background(), ref)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if final.Completion.State != model.CompletionCharged || final.Completion.PaymentOutcome != "authorized" {
		t.Fatalf("unexpected completion %+v", final.Completion)
	}
	if !final.Completion.TokenDeleted || final.Completion.CompletedAt == nil {
		t.Fatalf("expected token deleted and completion time, got %+v", final.Completion)
	}

	cit := f.gateway.lastCIT
	if cit.CVC != "123" || cit.RiskProfileHref != "https://gw.test/risk/1" || cit.ThreeDS == nil || cit.ThreeDS.ECI != "05" {
		t.Fatalf("unexpected payment request %+v", cit)
	}
	if f.gateway.count(config.OpCustomerInitiated) != 1 || f.gateway.count(config.OpDeleteToken) != 1 {
		t.Fatalf("expected one charge and one delete, got %v", f.gateway.calls)
	}
	if len(f.sink.entries) != 1 || f.sink.entries[0].CompletionState != "charged" {
		t.Fatalf("expected one payment log entry, got %+v", f.sink.entries)
	}
}

func TestCompleteResubmissionDoesNotChargeTwice(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	f.authenticate(t, ref)
	if _, err := f.svc.Complete(context.Background(), ref); err != nil {
		t.Fatalf("complete: %v", err)
	}

	again, err := f.svc.Complete(context.Background(), ref)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
	var done *AlreadyCompletedError
	if !errors.As(err, &done) || done.Transaction.Completion.State != model.CompletionCharged {
		t.Fatalf("expected stored completion to be returned, got %v", err)
	}
	if again == nil || again.Completion.PaymentOutcome != "authorized" {
		t.Fatalf("expected stored transaction, got %+v", again)
	}
	if f.gateway.count(config.OpCustomerInitiated) != 1 || f.gateway.count(config.OpDeleteToken) != 1 {
		t.Fatalf("resubmission must not call the gateway, got %v", f.gateway.calls)
	}
}

func TestCompleteInProgress(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	f.authenticate(t, ref)

	release := make(chan struct{})
	entered := make(chan struct{})
	f.gateway.citFn = func(context.Context, lib.PaymentRequest) (map[string]interface{}, error) {
		close(entered)
		<-release
		return map[string]interface{}{"outcome": "authorized"}, nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Complete(context.Background(), ref)
		done <- err
	}()
	<-entered

	if _, err := f.svc.Complete(context.Background(), ref); !errors.Is(err, ErrCompletionInProgress) {
		t.Fatalf("expected in progress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if f.gateway.count(config.OpCustomerInitiated) != 1 {
		t.Fatalf("expected a single charge, got %d", f.gateway.count(config.OpCustomerInitiated))
	}
}

func TestCompleteDeletesTokenWhenChargeFails(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	f.authenticate(t, ref)
	f.gateway.citFn = func(context.Context, lib.PaymentRequest) (map[string]interface{}, error) {
		return nil, &lib.GatewayError{Operation: config.OpCustomerInitiated, StatusCode: 500, Body: "boom"}
	}

	final, err := f.svc.Complete(context.Background(), ref)
	var gwErr *lib.GatewayError
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if got := f.gateway.count(config.OpDeleteToken); got != 1 {
		t.Fatalf("expected token deleted exactly once, got %d", got)
	}
	if final.Completion.State != model.CompletionFailed || !final.Completion.TokenDeleted {
		t.Fatalf("unexpected completion %+v", final.Completion)
	}
}

func TestCompleteWithFailedAuthenticationDoesNotCharge(t *testing.T) {
	for _, outcome := range []model.AuthOutcome{model.AuthFailed, model.AuthUnavailable} {
		t.Run(string(outcome), func(t *testing.T) {
			f := newFixture(t)
			ref := f.initiate(t)
			f.gateway.authenticateFn = func(context.Context, lib.AuthenticationRequest) (*model.AuthResult, error) {
				return &model.AuthResult{Outcome: outcome}, nil
			}
			f.authenticate(t, ref)

			final, err := f.svc.Complete(context.Background(), ref)
			if err != nil {
				t.Fatalf("complete: %v", err)
			}
			if final.Completion.State != model.CompletionDeclined {
				t.Fatalf("expected declined, got %+v", final.Completion)
			}
			if f.gateway.count(config.OpCustomerInitiated) != 0 {
				t.Fatal("charge must not be attempted")
			}
			if f.gateway.count(config.OpDeleteToken) != 1 {
				t.Fatal("token must still be deleted")
			}
		})
	}
}

func TestCompleteWithoutAuthentication(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)

	if _, err := f.svc.Complete(context.Background(), ref); !errors.Is(err, ErrWorkflowState) {
		t.Fatalf("expected workflow state error, got %v", err)
	}
	if _, err := f.svc.Complete(context.Background(), "unknown"); !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.gateway.count(config.OpCustomerInitiated) != 0 || f.gateway.count(config.OpDeleteToken) != 0 {
		t.Fatal("no charge and no token deletion expected")
	}
}

func TestSweepAbandoned(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)

	if n, _ := f.svc.SweepAbandoned(context.Background()); n != 0 {
		t.Fatalf("fresh transaction must not be swept, got %d", n)
	}

	f.now = f.now.Add(16 * time.Minute)
	n, err := f.svc.SweepAbandoned(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected one swept transaction, got %d %v", n, err)
	}
	trx, _ := f.registry.Get(context.Background(), ref)
	if trx.Completion == nil || trx.Completion.State != model.CompletionAbandoned || !trx.Completion.TokenDeleted {
		t.Fatalf("unexpected completion %+v", trx.Completion)
	}

	if n, _ := f.svc.SweepAbandoned(context.Background()); n != 0 {
		t.Fatalf("second sweep must be a no-op, got %d", n)
	}
	if got := f.gateway.count(config.OpDeleteToken); got != 1 {
		t.Fatalf("expected token deleted once, got %d", got)
	}

	if _, err := f.svc.Complete(context.Background(), ref); !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected completion of abandoned transaction to be refused, got %v", err)
	}
	if f.gateway.count(config.OpCustomerInitiated) != 0 {
		t.Fatal("abandoned transaction must not be charged")
	}
}

func TestSweepSkipsCompletedTransactions(t *testing.T) {
	f := newFixture(t)
	ref := f.initiate(t)
	f.authenticate(t, ref)
	if _, err := f.svc.Complete(context.Background(), ref); err != nil {
		t.Fatalf("complete: %v", err)
	}

	f.now = f.now.Add(time.Hour)
	if n, _ := f.svc.SweepAbandoned(context.Background()); n != 0 {
		t.Fatalf("completed transaction must not be swept, got %d", n)
	}
	if got := f.gateway.count(config.OpDeleteToken); got != 1 {
		t.Fatalf("expected a single token deletion, got %d", got)
	}
}
