package config

import (
	"fmt"
)

// Gateway operations.
const (
	OpCreateToken         = "create_token"
	OpDeleteToken         = "delete_token"
	OpDeviceDataInit      = "device_data_init"
	OpFraudsight          = "fraudsight_assessment"
	OpThreeDSAuthenticate = "threeds_authentication"
	OpThreeDSVerify       = "threeds_verification"
	OpCustomerInitiated   = "customer_initiated_transaction"
)

// EndpointConfig describes how one gateway operation is reached.
type EndpointConfig struct {
	Method    string
	Path      string // relative to the base URL, empty when the href comes from a prior response
	MediaType string // sent as both Accept and Content-Type, empty for body-less calls
	LogType   string // payment logger category
}

const (
	mediaTokens        = "application/vnd.worldpay.tokens-v3.hal+json"
	mediaVerifications = "application/vnd.worldpay.verifications.customers-v3.hal+json"
	mediaFraudsight    = "application/vnd.worldpay.fraudsight-v1.hal+json"
	mediaPayments      = "application/vnd.worldpay.payments-v7+json"
)

var worldpayEndpoints = map[string]EndpointConfig{
	OpCreateToken: {
		Method:    "POST",
		Path:      "tokens",
		MediaType: mediaTokens,
		LogType:   PAYMENT_TOKENS,
	},
	OpDeleteToken: {
		Method:  "DELETE",
		LogType: PAYMENT_TOKENS,
	},
	OpDeviceDataInit: {
		Method:    "POST",
		Path:      "verifications/customers/3ds/deviceDataInitialization",
		MediaType: mediaVerifications,
		LogType:   PAYMENT_THREEDS,
	},
	OpFraudsight: {
		Method:    "POST",
		Path:      "fraudsight/assessment",
		MediaType: mediaFraudsight,
		LogType:   PAYMENT_FRAUDSIGHT,
	},
	OpThreeDSAuthenticate: {
		Method:    "POST",
		Path:      "verifications/customers/3ds/authentication",
		MediaType: mediaVerifications,
		LogType:   PAYMENT_THREEDS,
	},
	OpThreeDSVerify: {
		Method:    "POST",
		Path:      "verifications/customers/3ds/verification",
		MediaType: mediaVerifications,
		LogType:   PAYMENT_THREEDS,
	},
	OpCustomerInitiated: {
		Method:    "POST",
		Path:      "cardPayments/customerInitiatedTransactions",
		MediaType: mediaPayments,
		LogType:   PAYMENT_PAYMENTS,
	},
}

// GetEndpointConfig retrieves the endpoint definition for a gateway operation.
func GetEndpointConfig(operation string) (EndpointConfig, error) {
	if endpoint, exists := worldpayEndpoints[operation]; exists {
		return endpoint, nil
	}
	return EndpointConfig{}, fmt.Errorf("gateway operation %s not found", operation)
}
