package handler

import (
	httpdto "cardpay/dto/http"
	"cardpay/dto/model"
	"cardpay/helper"
	"cardpay/pkg/response"
	"cardpay/service"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.elastic.co/apm"
)

// Hello handle api status
func Hello(c *fiber.Ctx) error {
	return response.ResponseSuccess(c, fiber.StatusOK, fiber.Map{"status": "ok"})
}

// PaymentLogReader looks up the persisted trail of a finished checkout.
type PaymentLogReader interface {
	FindPaymentLogsByReference(ctx context.Context, reference string) ([]model.PaymentLog, error)
}

// SchedulerReporter reports the cron entries of the abandonment sweep.
type SchedulerReporter interface {
	GetStatus() map[string]interface{}
}

// StatusHandler serves the admin JSON view of a transaction. Card data other
// than BIN and last four digits never leaves the registry.
type StatusHandler struct {
	checkout  Checkout
	logs      PaymentLogReader
	scheduler SchedulerReporter
}

// NewStatusHandler accepts a nil logs reader when payment logs are disabled.
func NewStatusHandler(checkout Checkout, logs PaymentLogReader, scheduler SchedulerReporter) *StatusHandler {
	return &StatusHandler{checkout: checkout, logs: logs, scheduler: scheduler}
}

func (h *StatusHandler) CheckTransactionStatus(c *fiber.Ctx) error {
	span, ctx := apm.StartSpan(c.UserContext(), "CheckTransactionStatus", "handler")
	defer span.End()

	reference := c.Params("reference")
	if reference == "" {
		return response.Response(c, fiber.StatusBadRequest, "Missing required parameters")
	}

	trx, err := h.checkout.Transaction(ctx, reference)
	if errors.Is(err, service.ErrTransactionNotFound) {
		return h.archivedStatus(ctx, c, reference)
	}
	if err != nil {
		helper.Error("Failed to read transaction %s: %v", reference, err)
		return response.Response(c, fiber.StatusInternalServerError, "Failed to get transaction")
	}

	code := helper.TransactionStatusCode(trx)
	return response.ResponseSuccess(c, fiber.StatusOK, httpdto.TransactionStatus{
		TransactionSummary: trx.Summary(),
		Status:             code,
		StatusMessage:      helper.GetStatusMessage(code),
		DisplayAmount:      helper.FormatAmount(trx.Payment.Amount, trx.Payment.Currency),
	})
}

func (h *StatusHandler) archivedStatus(ctx context.Context, c *fiber.Ctx, reference string) error {
	if h.logs == nil {
		return response.Response(c, fiber.StatusNotFound, "Transaction not found")
	}
	logs, err := h.logs.FindPaymentLogsByReference(ctx, reference)
	if err != nil {
		helper.Error("Failed to read payment logs of %s: %v", reference, err)
		return response.Response(c, fiber.StatusInternalServerError, "Failed to get transaction")
	}
	if len(logs) == 0 {
		return response.Response(c, fiber.StatusNotFound, "Transaction not found")
	}

	latest := logs[len(logs)-1]
	return response.ResponseSuccess(c, fiber.StatusOK, httpdto.ArchivedTransactionStatus{
		Reference:     reference,
		Status:        latest.CompletionState,
		StatusMessage: helper.GetStatusMessage(latest.CompletionState),
		DisplayAmount: helper.FormatAmount(latest.Amount, latest.Currency),
		Archived:      true,
		Logs:          logs,
	})
}

func (h *StatusHandler) SchedulerStatus(c *fiber.Ctx) error {
	if h.scheduler == nil {
		return response.Response(c, fiber.StatusServiceUnavailable, "Scheduler is not running")
	}
	return response.ResponseSuccess(c, fiber.StatusOK, h.scheduler.GetStatus())
}
