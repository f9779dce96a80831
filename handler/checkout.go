package handler

import (
	httpdto "cardpay/dto/http"
	"cardpay/dto/model"
	"cardpay/helper"
	"cardpay/lib"
	"cardpay/service"
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.elastic.co/apm"
)

// Checkout is the workflow the browser pages drive.
type Checkout interface {
	Initiate(ctx context.Context, in service.InitiateInput) (string, error)
	DeviceDataCollection(ctx context.Context, reference string) (*service.DeviceDataPage, error)
	Authenticate(ctx context.Context, in service.AuthenticateInput) (*service.AuthenticateResult, error)
	ChallengeCallback(ctx context.Context, in service.ChallengeCallbackInput) (string, error)
	Complete(ctx context.Context, reference string) (*model.Transaction, error)
	Transaction(ctx context.Context, reference string) (*model.Transaction, error)
}

// PageConfig carries what the payment form needs besides the workflow.
type PageConfig struct {
	ProfilingOrgID  string
	ProfilingDomain string
	Amount          int64
	Currency        string
}

type CheckoutHandler struct {
	checkout Checkout
	page     PageConfig
}

func NewCheckoutHandler(checkout Checkout, page PageConfig) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, page: page}
}

func (h *CheckoutHandler) renderForm(c *fiber.Ctx, status int, form httpdto.PaymentFormRequest, errs map[string]string, message string) error {
	if errs == nil {
		errs = map[string]string{}
	}
	return c.Status(status).Render("index", fiber.Map{
		"ProfilingDomain": h.page.ProfilingDomain,
		"OrgID":           h.page.ProfilingOrgID,
		"SessionID":       uuid.NewString(),
		"Amount":          helper.FormatAmount(h.page.Amount, h.page.Currency),
		"Form":            form,
		"Errors":          errs,
		"Message":         message,
	})
}

func (h *CheckoutHandler) PaymentForm(c *fiber.Ctx) error {
	return h.renderForm(c, fiber.StatusOK, httpdto.PaymentFormRequest{}, nil, "")
}

func (h *CheckoutHandler) SubmitPayment(c *fiber.Ctx) error {
	span, ctx := apm.StartSpan(c.UserContext(), "SubmitPayment", "handler")
	defer span.End()

	var form httpdto.PaymentFormRequest
	if err := c.BodyParser(&form); err != nil {
		return h.renderForm(c, fiber.StatusBadRequest, form, nil, "Invalid request")
	}

	reference, err := h.checkout.Initiate(ctx, service.InitiateInput{Form: form, ClientIP: c.IP()})
	if err != nil {
		var vErr *service.ValidationError
		if errors.As(err, &vErr) {
			return h.renderForm(c, fiber.StatusBadRequest, form, vErr.Fields, "Please check the highlighted fields")
		}
		return renderError(c, err)
	}

	return c.Redirect("/ddc?reference="+url.QueryEscape(reference), fiber.StatusFound)
}

func (h *CheckoutHandler) DeviceDataCollection(c *fiber.Ctx) error {
	page, err := h.checkout.DeviceDataCollection(c.UserContext(), c.Query("reference"))
	if err != nil {
		return renderError(c, err)
	}
	return c.Render("ddc", fiber.Map{
		"Reference": page.Reference,
		"FrameURL":  page.FrameURL,
	})
}

// PostForm renders a self-submitting form posting the JSON object in p to url.
func (h *CheckoutHandler) PostForm(c *fiber.Ctx) error {
	target, err := url.Parse(c.Query("url"))
	if err != nil || !target.IsAbs() || (target.Scheme != "https" && target.Scheme != "http") {
		return renderPage(c, fiber.StatusBadRequest, "Invalid request", "The form target is not a valid URL.")
	}
	fields := map[string]string{}
	if p := c.Query("p"); p != "" {
		if err := json.Unmarshal([]byte(p), &fields); err != nil {
			return renderPage(c, fiber.StatusBadRequest, "Invalid request", "The form payload is not valid.")
		}
	}
	return c.Render("post_form", fiber.Map{
		"URL":    target.String(),
		"Fields": fields,
	})
}

func (h *CheckoutHandler) Authenticate(c *fiber.Ctx) error {
	span, ctx := apm.StartSpan(c.UserContext(), "Authenticate", "handler")
	defer span.End()

	var form httpdto.AuthenticateRequest
	if err := c.BodyParser(&form); err != nil {
		return renderPage(c, fiber.StatusBadRequest, "Invalid request", "The request could not be read.")
	}

	result, err := h.checkout.Authenticate(ctx, service.AuthenticateInput{
		Form:         form,
		AcceptHeader: c.Get(fiber.HeaderAccept),
		UserAgent:    c.Get(fiber.HeaderUserAgent),
		ClientIP:     c.IP(),
	})
	if err != nil {
		return renderError(c, err)
	}

	if result.Challenge != nil {
		return c.Render("challenge", fiber.Map{
			"FrameURL":    result.Challenge.FrameURL,
			"CompleteURL": result.Challenge.CompleteURL,
		})
	}
	return c.Redirect(result.RedirectURL, fiber.StatusFound)
}

func (h *CheckoutHandler) AuthComplete(c *fiber.Ctx) error {
	span, ctx := apm.StartSpan(c.UserContext(), "AuthComplete", "handler")
	defer span.End()

	trx, err := h.checkout.Complete(ctx, c.Query("reference"))
	if err != nil {
		var done *service.AlreadyCompletedError
		if !errors.As(err, &done) {
			return renderError(c, err)
		}
		trx = done.Transaction
	}
	return renderResult(c, trx)
}

// AuthCallback is posted by the issuer inside the challenge iframe.
func (h *CheckoutHandler) AuthCallback(c *fiber.Ctx) error {
	var form httpdto.ChallengeCallbackRequest
	if err := c.BodyParser(&form); err != nil {
		return renderPage(c, fiber.StatusBadRequest, "Invalid request", "The callback could not be read.")
	}

	if _, err := h.checkout.ChallengeCallback(c.UserContext(), service.ChallengeCallbackInput{
		TransactionID: form.TransactionID,
		MerchantData:  form.MD,
	}); err != nil {
		return renderError(c, err)
	}
	return c.Render("challenge_complete", fiber.Map{})
}

func renderPage(c *fiber.Ctx, status int, title, message string) error {
	return c.Status(status).Render("error", fiber.Map{
		"Title":   title,
		"Message": message,
	})
}

// renderError maps workflow errors to the status codes the browser sees.
func renderError(c *fiber.Ctx, err error) error {
	var vErr *service.ValidationError
	var gwErr *lib.GatewayError
	switch {
	case errors.As(err, &vErr):
		return renderPage(c, fiber.StatusBadRequest, "Invalid request", vErr.Error())
	case errors.Is(err, service.ErrInvalidMerchantData):
		return renderPage(c, fiber.StatusBadRequest, "Reference missing", "The payment reference could not be read.")
	case errors.Is(err, service.ErrTransactionNotFound), errors.Is(err, service.ErrWorkflowState):
		return renderPage(c, fiber.StatusBadRequest, "Invalid reference", "This payment cannot continue. Please start again.")
	case errors.Is(err, service.ErrCardRejected):
		return renderPage(c, fiber.StatusPaymentRequired, "Card rejected", "Your card was not accepted. Please check the details or use another card.")
	case errors.Is(err, service.ErrCompletionInProgress):
		return renderPage(c, fiber.StatusConflict, "Payment in progress", "This payment is already being processed.")
	case errors.As(err, &gwErr):
		helper.Error("Gateway failure on %s: %v", c.Path(), err)
		return renderPage(c, fiber.StatusBadGateway, "Payment failed", "We could not reach the payment provider. Please try again later.")
	default:
		helper.Error("Unexpected failure on %s: %v", c.Path(), err)
		return renderPage(c, fiber.StatusInternalServerError, "Something went wrong", "Please try again later.")
	}
}

func renderResult(c *fiber.Ctx, trx *model.Transaction) error {
	if trx == nil || trx.Completion == nil {
		return renderPage(c, fiber.StatusInternalServerError, "Something went wrong", "Please try again later.")
	}

	var title, message string
	var details interface{}
	status := fiber.StatusOK
	switch trx.Completion.State {
	case model.CompletionCharged:
		title, message, details = "Payment complete", "Thank you, your payment was submitted.", trx.Completion.PaymentResponse
	case model.CompletionDeclined:
		title, message, details = "Auth failed", "Your bank did not authenticate this payment.", trx.Authentication
	case model.CompletionAbandoned:
		title, message = "Payment expired", "This payment was not completed in time."
	case model.CompletionFailed:
		status = fiber.StatusBadGateway
		title, message = "Payment failed", "We could not reach the payment provider. Please try again later."
	default:
		status = fiber.StatusConflict
		title, message = "Payment in progress", "This payment is already being processed."
	}

	var pretty string
	if details != nil {
		if b, err := json.MarshalIndent(details, "", "  "); err == nil {
			pretty = string(b)
		}
	}

	return c.Status(status).Render("result", fiber.Map{
		"Title":     title,
		"Message":   message,
		"Reference": trx.Payment.Reference,
		"Amount":    helper.FormatAmount(trx.Payment.Amount, trx.Payment.Currency),
		"Outcome":   trx.Completion.PaymentOutcome,
		"Details":   pretty,
	})
}
