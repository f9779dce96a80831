package helper

import "cardpay/dto/model"

const (
	StatusAwaitingAuthentication = "awaiting_authentication"
	StatusAwaitingChallenge      = "awaiting_challenge"
	StatusAuthenticated          = "authenticated"
)

var StatusMessages = map[string]string{
	StatusAwaitingAuthentication:       "Waiting for device data collection and 3DS authentication",
	StatusAwaitingChallenge:            "Waiting for the cardholder to complete the 3DS challenge",
	StatusAuthenticated:                "Authentication finished, payment not submitted yet",
	string(model.CompletionProcessing): "Payment is being submitted",
	string(model.CompletionCharged):    "Payment completed",
	string(model.CompletionDeclined):   "Authentication failed, payment not attempted",
	string(model.CompletionFailed):     "Payment request failed",
	string(model.CompletionAbandoned):  "Transaction abandoned before completion",
}

func GetStatusMessage(code string) string {
	if message, exists := StatusMessages[code]; exists {
		return message
	}
	return "Unknown status"
}

// TransactionStatusCode derives the workflow position of a record.
func TransactionStatusCode(t *model.Transaction) string {
	switch {
	case t.Completion != nil:
		return string(t.Completion.State)
	case t.Authentication == nil:
		return StatusAwaitingAuthentication
	case t.Challenged():
		return StatusAwaitingChallenge
	default:
		return StatusAuthenticated
	}
}
