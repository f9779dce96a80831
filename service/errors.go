package service

import (
	"cardpay/dto/model"
	"cardpay/helper"
	"cardpay/repository"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrTransactionNotFound = repository.ErrTransactionNotFound
	ErrInvalidMerchantData = helper.ErrInvalidMerchantData

	// ErrCardRejected wraps the gateway error of a failed tokenization.
	ErrCardRejected = errors.New("card rejected")
	// ErrWorkflowState means the request does not fit the current stage of the transaction.
	ErrWorkflowState        = errors.New("transaction is not in a valid state for this step")
	ErrAlreadyCompleted     = errors.New("transaction already completed")
	ErrCompletionInProgress = errors.New("transaction completion in progress")
)

// ValidationError lists the rejected form fields with a message each.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %s", k, e.Fields[k]))
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

// AlreadyCompletedError is returned for a repeated completion and carries the
// stored outcome so it can be shown again.
type AlreadyCompletedError struct {
	Transaction *model.Transaction
}

func (e *AlreadyCompletedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAlreadyCompleted, e.Transaction.Completion.State)
}

func (e *AlreadyCompletedError) Is(target error) bool {
	return target == ErrAlreadyCompleted
}
