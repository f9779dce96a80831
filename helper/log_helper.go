package helper

import (
	"cardpay/config"
	"time"
)

// PaymentHelpers writes gateway events to the category log of one payment concern.
type PaymentHelpers struct {
	PaymentType string
}

func NewPaymentHelpers(paymentType string) *PaymentHelpers {
	return &PaymentHelpers{
		PaymentType: paymentType,
	}
}

// LogTransactionError logs a failed workflow step for a reference.
func (ph *PaymentHelpers) LogTransactionError(reference string, amount int64, errorMsg string, data map[string]interface{}) {
	entry := config.LogEntry{
		TransactionReference: reference,
		Amount:               amount,
		Status:               "error",
		Error:                errorMsg,
		Data:                 data,
	}
	config.LogError(ph.PaymentType, "Transaction failed", entry)
}

// LogTransactionStep logs a successful workflow step for a reference.
func (ph *PaymentHelpers) LogTransactionStep(reference string, amount int64, status string, data map[string]interface{}) {
	entry := config.LogEntry{
		TransactionReference: reference,
		Amount:               amount,
		Status:               status,
		Data:                 data,
	}
	config.LogPaymentInfo(ph.PaymentType, "Transaction step", entry)
}

// LogAPICall logs an external API call. Sensitive card fields are redacted first.
func (ph *PaymentHelpers) LogAPICall(endpoint, method string, duration time.Duration, statusCode int, requestData, responseData map[string]interface{}) {
	data := map[string]interface{}{}

	if requestData != nil {
		data["request"] = RedactSensitive(requestData)
	}

	if responseData != nil {
		data["response"] = RedactSensitive(responseData)
	}

	config.LogPaymentAPI(ph.PaymentType, endpoint, method, duration, statusCode, data)
}

// LogCallback logs a callback received from the issuer.
func (ph *PaymentHelpers) LogCallback(reference string, success bool, callbackData map[string]interface{}) {
	config.LogPaymentCallback(ph.PaymentType, reference, success, callbackData)
}

var sensitiveKeys = map[string]bool{
	"cardNumber":          true,
	"cvc":                 true,
	"cardCvc":             true,
	"authenticationValue": true,
	"jwt":                 true,
	"JWT":                 true,
}

// RedactSensitive returns a copy of data with card secrets masked at any depth.
func RedactSensitive(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for k, v := range data {
		if sensitiveKeys[k] {
			if s, ok := v.(string); ok && k == "cardNumber" {
				out[k] = MaskCardNumber(s)
			} else {
				out[k] = "[REDACTED]"
			}
			continue
		}
		switch typed := v.(type) {
		case map[string]interface{}:
			out[k] = RedactSensitive(typed)
		case []interface{}:
			items := make([]interface{}, len(typed))
			for i, item := range typed {
				if m, ok := item.(map[string]interface{}); ok {
					items[i] = RedactSensitive(m)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}

var (
	TokensLogger     = NewPaymentHelpers(config.PAYMENT_TOKENS)
	FraudsightLogger = NewPaymentHelpers(config.PAYMENT_FRAUDSIGHT)
	ThreeDSLogger    = NewPaymentHelpers(config.PAYMENT_THREEDS)
	PaymentsLogger   = NewPaymentHelpers(config.PAYMENT_PAYMENTS)
	CallbackLogger   = NewPaymentHelpers(config.PAYMENT_CALLBACK)
	WorkflowLogger   = NewPaymentHelpers(config.PAYMENT_WORKFLOW)
)

// GatewayLoggerFor picks the helper matching a category from config.GetEndpointConfig.
func GatewayLoggerFor(category string) *PaymentHelpers {
	switch category {
	case config.PAYMENT_TOKENS:
		return TokensLogger
	case config.PAYMENT_FRAUDSIGHT:
		return FraudsightLogger
	case config.PAYMENT_THREEDS:
		return ThreeDSLogger
	case config.PAYMENT_PAYMENTS:
		return PaymentsLogger
	case config.PAYMENT_CALLBACK:
		return CallbackLogger
	default:
		return WorkflowLogger
	}
}
