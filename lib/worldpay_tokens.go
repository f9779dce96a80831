package lib

import (
	"cardpay/config"
	"cardpay/dto/model"
	"context"
	"errors"
)

// CardDetails is the raw card sent once for tokenization.
type CardDetails struct {
	HolderName  string
	Number      string
	ExpiryMonth int
	ExpiryYear  int
	Billing     config.BillingAddress
}

type createTokenRequest struct {
	Merchant          merchantRef `json:"merchant"`
	PaymentInstrument struct {
		Type           string `json:"type"`
		CardHolderName string `json:"cardHolderName"`
		CardNumber     string `json:"cardNumber"`
		CardExpiryDate struct {
			Month int `json:"month"`
			Year  int `json:"year"`
		} `json:"cardExpiryDate"`
		BillingAddress struct {
			Address1    string `json:"address1"`
			Address2    string `json:"address2,omitempty"`
			Address3    string `json:"address3,omitempty"`
			City        string `json:"city"`
			PostalCode  string `json:"postalCode"`
			State       string `json:"state,omitempty"`
			CountryCode string `json:"countryCode"`
		} `json:"billingAddress"`
	} `json:"paymentInstrument"`
}

type createTokenResponse struct {
	TokenPaymentInstrument model.TokenInstrument `json:"tokenPaymentInstrument"`
}

// CreateToken exchanges card details for a token instrument.
func (c *WorldpayClient) CreateToken(ctx context.Context, card CardDetails) (*model.TokenInstrument, error) {
	var reqBody createTokenRequest
	reqBody.Merchant.Entity = c.entity
	reqBody.PaymentInstrument.Type = "card/front"
	reqBody.PaymentInstrument.CardHolderName = card.HolderName
	reqBody.PaymentInstrument.CardNumber = card.Number
	reqBody.PaymentInstrument.CardExpiryDate.Month = card.ExpiryMonth
	reqBody.PaymentInstrument.CardExpiryDate.Year = card.ExpiryYear
	reqBody.PaymentInstrument.BillingAddress.Address1 = card.Billing.Address1
	reqBody.PaymentInstrument.BillingAddress.Address2 = card.Billing.Address2
	reqBody.PaymentInstrument.BillingAddress.Address3 = card.Billing.Address3
	reqBody.PaymentInstrument.BillingAddress.City = card.Billing.City
	reqBody.PaymentInstrument.BillingAddress.PostalCode = card.Billing.PostalCode
	reqBody.PaymentInstrument.BillingAddress.State = card.Billing.State
	reqBody.PaymentInstrument.BillingAddress.CountryCode = card.Billing.CountryCode

	var resp createTokenResponse
	if err := c.do(ctx, config.OpCreateToken, "", reqBody, &resp); err != nil {
		return nil, err
	}
	if resp.TokenPaymentInstrument.Href == "" {
		return nil, &GatewayError{Operation: config.OpCreateToken, Message: "response has no token href"}
	}
	return &resp.TokenPaymentInstrument, nil
}

func (c *WorldpayClient) DeleteToken(ctx context.Context, href string) error {
	if href == "" {
		return errors.New("token href is empty")
	}
	return c.do(ctx, config.OpDeleteToken, href, nil, nil)
}
