package service

import (
	"cardpay/config"
	httpdto "cardpay/dto/http"
	"cardpay/dto/model"
	"cardpay/helper"
	"cardpay/lib"
	"context"
	"fmt"
	"net/url"
	"strconv"
)

type AuthenticateInput struct {
	Form         httpdto.AuthenticateRequest
	AcceptHeader string
	UserAgent    string
	ClientIP     string
}

// ChallengePage is rendered when the issuer wants the cardholder to complete a challenge.
type ChallengePage struct {
	FrameURL    string
	CompleteURL string
}

// AuthenticateResult is either a redirect to completion or a challenge to render.
type AuthenticateResult struct {
	Reference   string
	Outcome     model.AuthOutcome
	RedirectURL string
	Challenge   *ChallengePage
}

func CompleteURL(reference string) string {
	return "/auth-complete?reference=" + url.QueryEscape(reference)
}

func browserData(in AuthenticateInput) lib.BrowserData {
	height, _ := strconv.Atoi(in.Form.BrowserScreenHeight)
	width, _ := strconv.Atoi(in.Form.BrowserScreenWidth)
	return lib.BrowserData{
		AcceptHeader:             in.AcceptHeader,
		UserAgentHeader:          in.UserAgent,
		BrowserLanguage:          in.Form.BrowserLanguage,
		BrowserJavaEnabled:       in.Form.BrowserJavaEnabled == "true",
		BrowserColorDepth:        in.Form.BrowserColorDepth,
		BrowserScreenHeight:      height,
		BrowserScreenWidth:       width,
		TimeZone:                 in.Form.BrowserTZ,
		BrowserJavascriptEnabled: in.Form.BrowserJavascriptEnabled == "true",
		IPAddress:                in.ClientIP,
	}
}

func setAuthentication(sessionID string, result *model.AuthResult) func(*model.Transaction) error {
	return func(trx *model.Transaction) error {
		if trx.Authentication != nil {
			return fmt.Errorf("%w: authentication already %s", ErrWorkflowState, trx.Authentication.Outcome)
		}
		if err := trx.SetAuthentication(result); err != nil {
			return fmt.Errorf("%w: %w", ErrWorkflowState, err)
		}
		if trx.DeviceSessionID == "" {
			trx.DeviceSessionID = sessionID
		}
		return nil
	}
}

// Authenticate runs 3DS authentication with the device session id from DDC.
func (s *CheckoutService) Authenticate(ctx context.Context, in AuthenticateInput) (*AuthenticateResult, error) {
	if err := s.validateStruct(in.Form); err != nil {
		observeStage(stageAuthenticate, "invalid")
		return nil, err
	}
	reference := in.Form.Reference

	trx, err := s.registry.Get(ctx, reference)
	if err != nil {
		observeStage(stageAuthenticate, "not_found")
		return nil, err
	}
	if trx.Authentication != nil {
		observeStage(stageAuthenticate, "invalid_state")
		return nil, fmt.Errorf("%w: authentication already %s", ErrWorkflowState, trx.Authentication.Outcome)
	}

	result, err := s.gateway.Authenticate(ctx, lib.AuthenticationRequest{
		Reference:           reference,
		Amount:              trx.Payment.Amount,
		Currency:            trx.Payment.Currency,
		Token:               trx.Payment.Token,
		CollectionReference: in.Form.SessionID,
		Browser:             browserData(in),
		ChallengeReturnURL:  s.cfg.CallbackURL,
	})
	if err != nil {
		observeStage(stageAuthenticate, "gateway_error")
		helper.ThreeDSLogger.LogTransactionError(reference, trx.Payment.Amount, err.Error(), nil)
		return nil, err
	}

	switch result.Outcome {
	case model.AuthAuthenticated, model.AuthBypassed, model.AuthFailed, model.AuthUnavailable:
		if _, err := s.registry.Update(ctx, reference, setAuthentication(in.Form.SessionID, result)); err != nil {
			observeStage(stageAuthenticate, "invalid_state")
			return nil, err
		}
		observeStage(stageAuthenticate, string(result.Outcome))
		helper.ThreeDSLogger.LogTransactionStep(reference, trx.Payment.Amount, string(result.Outcome), nil)
		return &AuthenticateResult{
			Reference:   reference,
			Outcome:     result.Outcome,
			RedirectURL: CompleteURL(reference),
		}, nil

	case model.AuthChallenged:
		if result.Challenge == nil || result.Challenge.URL == "" {
			observeStage(stageAuthenticate, "gateway_error")
			return nil, &lib.GatewayError{Operation: config.OpThreeDSAuthenticate, Message: "challenge outcome without challenge details"}
		}
		md, err := s.codec.Encode(reference)
		if err != nil {
			return nil, err
		}
		frameURL, err := PostFormURL(result.Challenge.URL, map[string]string{
			"JWT": result.Challenge.JWT,
			"MD":  md,
		})
		if err != nil {
			return nil, err
		}
		if _, err := s.registry.Update(ctx, reference, setAuthentication(in.Form.SessionID, result)); err != nil {
			observeStage(stageAuthenticate, "invalid_state")
			return nil, err
		}
		observeStage(stageAuthenticate, string(result.Outcome))
		helper.ThreeDSLogger.LogTransactionStep(reference, trx.Payment.Amount, string(result.Outcome), map[string]interface{}{
			"challenge_reference": result.Challenge.Reference,
		})
		return &AuthenticateResult{
			Reference: reference,
			Outcome:   result.Outcome,
			Challenge: &ChallengePage{FrameURL: frameURL, CompleteURL: CompleteURL(reference)},
		}, nil

	default:
		observeStage(stageAuthenticate, "unexpected_outcome")
		return nil, &lib.GatewayError{
			Operation: config.OpThreeDSAuthenticate,
			Message:   fmt.Sprintf("unexpected authentication outcome %q", result.Outcome),
		}
	}
}

type ChallengeCallbackInput struct {
	TransactionID string
	MerchantData  string
}

// ChallengeCallback verifies a finished challenge and stores the terminal result.
// Nothing is sent to the gateway unless the merchant data resolves to a challenged record.
func (s *CheckoutService) ChallengeCallback(ctx context.Context, in ChallengeCallbackInput) (string, error) {
	reference, err := s.codec.Decode(in.MerchantData)
	if err != nil {
		observeStage(stageCallback, "invalid_md")
		helper.CallbackLogger.LogCallback("", false, map[string]interface{}{"error": err.Error()})
		return "", err
	}
	if in.TransactionID == "" {
		observeStage(stageCallback, "invalid")
		return "", &ValidationError{Fields: map[string]string{"TransactionId": "is required"}}
	}

	trx, err := s.registry.Get(ctx, reference)
	if err != nil {
		observeStage(stageCallback, "not_found")
		return "", err
	}
	if !trx.Challenged() {
		observeStage(stageCallback, "invalid_state")
		return "", fmt.Errorf("%w: no challenge pending for %s", ErrWorkflowState, reference)
	}

	result, err := s.gateway.Verify(ctx, reference, in.TransactionID)
	if err != nil {
		observeStage(stageCallback, "gateway_error")
		helper.CallbackLogger.LogCallback(reference, false, map[string]interface{}{"error": err.Error()})
		return "", err
	}
	if !result.Outcome.Terminal() {
		observeStage(stageCallback, "unexpected_outcome")
		return "", &lib.GatewayError{
			Operation: config.OpThreeDSVerify,
			Message:   fmt.Sprintf("unexpected verification outcome %q", result.Outcome),
		}
	}

	_, err = s.registry.Update(ctx, reference, func(t *model.Transaction) error {
		if !t.Challenged() {
			return fmt.Errorf("%w: no challenge pending for %s", ErrWorkflowState, reference)
		}
		if err := t.SetAuthentication(result); err != nil {
			return fmt.Errorf("%w: %w", ErrWorkflowState, err)
		}
		return nil
	})
	if err != nil {
		observeStage(stageCallback, "invalid_state")
		return "", err
	}

	observeStage(stageCallback, string(result.Outcome))
	helper.CallbackLogger.LogCallback(reference, true, map[string]interface{}{
		"transaction_id": in.TransactionID,
		"outcome":        result.Outcome,
	})
	return reference, nil
}
