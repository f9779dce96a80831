package service

import (
	"cardpay/dto/model"
	"cardpay/helper"
	"cardpay/lib"
	"context"
	"errors"
	"fmt"
)

var errCompletionClaimed = errors.New("completion already claimed")

// claim marks the record as owned by one finisher. existing is set when another
// completion (or the sweeper) got there first.
func (s *CheckoutService) claim(ctx context.Context, reference string, state model.CompletionState, check func(*model.Transaction) error) (claimed, existing *model.Transaction, err error) {
	claimed, err = s.registry.Update(ctx, reference, func(t *model.Transaction) error {
		if t.Completion != nil {
			existing = t.Clone()
			return errCompletionClaimed
		}
		if check != nil {
			if err := check(t); err != nil {
				return err
			}
		}
		t.Completion = &model.Completion{State: state, StartedAt: s.now()}
		return nil
	})
	if errors.Is(err, errCompletionClaimed) {
		return nil, existing, nil
	}
	return claimed, nil, err
}

func requireTerminalAuthentication(t *model.Transaction) error {
	if t.Authentication == nil {
		return fmt.Errorf("%w: no authentication result", ErrWorkflowState)
	}
	if !t.Authentication.Outcome.Terminal() {
		return fmt.Errorf("%w: authentication is %s", ErrWorkflowState, t.Authentication.Outcome)
	}
	return nil
}

// Complete charges an authenticated transaction, or reports the failed authentication.
// The token is deleted afterwards in every case, and only the first call does any of it.
func (s *CheckoutService) Complete(ctx context.Context, reference string) (*model.Transaction, error) {
	trx, err := s.registry.Get(ctx, reference)
	if err != nil {
		observeStage(stageComplete, "not_found")
		return nil, err
	}
	if trx.Completion == nil {
		if err := requireTerminalAuthentication(trx); err != nil {
			observeStage(stageComplete, "invalid_state")
			return nil, err
		}
	}

	trx, existing, err := s.claim(ctx, reference, model.CompletionProcessing, requireTerminalAuthentication)
	if err != nil {
		observeStage(stageComplete, "invalid_state")
		return nil, err
	}
	if existing != nil {
		observeStage(stageComplete, "repeated")
		if existing.Completion.Final() {
			return existing, &AlreadyCompletedError{Transaction: existing}
		}
		return nil, ErrCompletionInProgress
	}

	completion := *trx.Completion
	chargeErr := s.charge(ctx, trx, &completion)

	completedAt := s.now()
	completion.CompletedAt = &completedAt
	final, err := s.registry.Update(ctx, reference, func(t *model.Transaction) error {
		t.Completion = &completion
		return nil
	})
	if err != nil {
		helper.Error("Failed to persist completion of %s: %v", reference, err)
		final = trx.Clone()
		final.Completion = &completion
	}

	s.recordPaymentLog(final)
	observeStage(stageComplete, string(completion.State))
	if chargeErr != nil {
		helper.PaymentsLogger.LogTransactionError(reference, trx.Payment.Amount, chargeErr.Error(), nil)
		return final, chargeErr
	}
	helper.PaymentsLogger.LogTransactionStep(reference, trx.Payment.Amount, string(completion.State), map[string]interface{}{
		"payment_outcome": completion.PaymentOutcome,
		"token_deleted":   completion.TokenDeleted,
	})
	return final, nil
}

// charge fills in completion. The token release is deferred so it also runs when
// the charge request fails or panics.
func (s *CheckoutService) charge(ctx context.Context, trx *model.Transaction, completion *model.Completion) error {
	reference := trx.Payment.Reference
	defer func() {
		completion.TokenDeleted = s.releaseToken(ctx, reference, trx.Payment.Token.Href) == nil
	}()

	auth := trx.Authentication
	if !auth.Outcome.Authorizable() {
		completion.State = model.CompletionDeclined
		completion.PaymentOutcome = string(auth.Outcome)
		return nil
	}

	resp, err := s.gateway.CustomerInitiatedTransaction(ctx, lib.PaymentRequest{
		Reference:       reference,
		Amount:          trx.Payment.Amount,
		Currency:        trx.Payment.Currency,
		Token:           trx.Payment.Token,
		CVC:             trx.Payment.CVC,
		ThreeDS:         auth.Authentication,
		RiskProfileHref: trx.Risk.RiskProfile.Href,
	})
	if err != nil {
		completion.State = model.CompletionFailed
		completion.Error = err.Error()
		return err
	}
	completion.State = model.CompletionCharged
	completion.PaymentResponse = resp
	if outcome, ok := resp["outcome"].(string); ok {
		completion.PaymentOutcome = outcome
	}
	return nil
}

func (s *CheckoutService) recordPaymentLog(trx *model.Transaction) {
	if s.paymentLog == nil {
		return
	}
	s.paymentLog.Enqueue(model.NewPaymentLog(trx))
}

// SweepAbandoned closes transactions that never reached completion within
// AbandonAfter and deletes their tokens. It returns how many were swept.
func (s *CheckoutService) SweepAbandoned(ctx context.Context) (int, error) {
	all, err := s.registry.List(ctx)
	if err != nil {
		return 0, err
	}

	swept := 0
	cutoff := s.now().Add(-s.cfg.AbandonAfter)
	for _, candidate := range all {
		if candidate.Completion != nil || candidate.CreatedAt.After(cutoff) {
			continue
		}
		reference := candidate.Payment.Reference

		trx, existing, err := s.claim(ctx, reference, model.CompletionAbandoned, func(t *model.Transaction) error {
			if t.CreatedAt.After(cutoff) {
				return errCompletionClaimed
			}
			return nil
		})
		if err != nil {
			if !errors.Is(err, ErrTransactionNotFound) {
				helper.Warn("Skipping abandoned transaction %s: %v", reference, err)
			}
			continue
		}
		if existing != nil || trx == nil {
			continue
		}

		completion := *trx.Completion
		completion.TokenDeleted = s.releaseToken(ctx, reference, trx.Payment.Token.Href) == nil
		completedAt := s.now()
		completion.CompletedAt = &completedAt

		final, err := s.registry.Update(ctx, reference, func(t *model.Transaction) error {
			t.Completion = &completion
			return nil
		})
		if err != nil {
			final = trx.Clone()
			final.Completion = &completion
		}
		s.recordPaymentLog(final)
		helper.WorkflowLogger.LogTransactionStep(reference, trx.Payment.Amount, string(model.CompletionAbandoned), map[string]interface{}{
			"token_deleted": completion.TokenDeleted,
		})
		swept++
	}

	if swept > 0 {
		observeStage(stageSweep, "abandoned")
		helper.Info("Swept %d abandoned transactions", swept)
	}
	return swept, nil
}
