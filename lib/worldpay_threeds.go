package lib

import (
	"cardpay/config"
	"cardpay/dto/model"
	"context"
)

// BrowserData is the device data the merchant collects itself for 3DS.
type BrowserData struct {
	AcceptHeader             string `json:"acceptHeader"`
	UserAgentHeader          string `json:"userAgentHeader"`
	BrowserLanguage          string `json:"browserLanguage,omitempty"`
	BrowserJavaEnabled       bool   `json:"browserJavaEnabled"`
	BrowserColorDepth        string `json:"browserColorDepth,omitempty"`
	BrowserScreenHeight      int    `json:"browserScreenHeight,omitempty"`
	BrowserScreenWidth       int    `json:"browserScreenWidth,omitempty"`
	TimeZone                 string `json:"timeZone,omitempty"`
	BrowserJavascriptEnabled bool   `json:"browserJavascriptEnabled"`
	IPAddress                string `json:"ipAddress,omitempty"`
}

type deviceDataInitRequest struct {
	TransactionReference string               `json:"transactionReference"`
	Merchant             merchantRef          `json:"merchant"`
	PaymentInstrument    paymentInstrumentRef `json:"paymentInstrument"`
}

type deviceDataInitResponse struct {
	DeviceDataCollection model.DeviceDataCollection `json:"deviceDataCollection"`
}

// DeviceDataInit returns the parameters the browser needs to run device data collection.
func (c *WorldpayClient) DeviceDataInit(ctx context.Context, reference string, token model.TokenInstrument) (*model.DeviceDataCollection, error) {
	reqBody := deviceDataInitRequest{
		TransactionReference: reference,
		Merchant:             merchantRef{Entity: c.entity},
		PaymentInstrument:    paymentInstrumentRef{Type: "card/tokenized", Href: token.Href},
	}

	var resp deviceDataInitResponse
	if err := c.do(ctx, config.OpDeviceDataInit, "", reqBody, &resp); err != nil {
		return nil, err
	}
	if resp.DeviceDataCollection.URL == "" || resp.DeviceDataCollection.JWT == "" {
		return nil, &GatewayError{Operation: config.OpDeviceDataInit, Message: "response has no device data collection"}
	}
	return &resp.DeviceDataCollection, nil
}

// AuthenticationRequest carries what a 3DS authentication needs besides the merchant.
type AuthenticationRequest struct {
	Reference           string
	Amount              int64
	Currency            string
	Token               model.TokenInstrument
	CollectionReference string
	Browser             BrowserData
	ChallengeReturnURL  string
}

type threeDSAuthenticationRequest struct {
	TransactionReference string `json:"transactionReference"`
	Merchant             struct {
		Entity       string `json:"entity"`
		OverrideName string `json:"overrideName,omitempty"`
	} `json:"merchant"`
	Instruction struct {
		PaymentInstrument paymentInstrumentRef `json:"paymentInstrument"`
		Value             instructionValue     `json:"value"`
	} `json:"instruction"`
	DeviceData struct {
		CollectionReference string `json:"collectionReference,omitempty"`
		BrowserData
	} `json:"deviceData"`
	Challenge struct {
		WindowSize string `json:"windowSize"`
		Preference string `json:"preference"`
		ReturnURL  string `json:"returnUrl"`
	} `json:"challenge"`
}

// Authenticate runs 3DS authentication. Any documented outcome is returned without error,
// the caller decides what it means for the workflow.
func (c *WorldpayClient) Authenticate(ctx context.Context, in AuthenticationRequest) (*model.AuthResult, error) {
	var reqBody threeDSAuthenticationRequest
	reqBody.TransactionReference = in.Reference
	reqBody.Merchant.Entity = c.entity
	reqBody.Merchant.OverrideName = c.overrideName
	reqBody.Instruction.PaymentInstrument = paymentInstrumentRef{Type: "card/tokenized", Href: in.Token.Href}
	reqBody.Instruction.Value = instructionValue{Currency: in.Currency, Amount: in.Amount}
	reqBody.DeviceData.CollectionReference = in.CollectionReference
	reqBody.DeviceData.BrowserData = in.Browser
	reqBody.Challenge.WindowSize = "fullPage"
	reqBody.Challenge.Preference = "noPreference"
	reqBody.Challenge.ReturnURL = in.ChallengeReturnURL

	var result model.AuthResult
	if err := c.do(ctx, config.OpThreeDSAuthenticate, "", reqBody, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

type threeDSVerificationRequest struct {
	TransactionReference string      `json:"transactionReference"`
	Merchant             merchantRef `json:"merchant"`
	Challenge            struct {
		Reference string `json:"reference"`
	} `json:"challenge"`
}

// Verify fetches the final 3DS result after the cardholder completed a challenge.
func (c *WorldpayClient) Verify(ctx context.Context, reference, challengeReference string) (*model.AuthResult, error) {
	reqBody := threeDSVerificationRequest{
		TransactionReference: reference,
		Merchant:             merchantRef{Entity: c.entity},
	}
	reqBody.Challenge.Reference = challengeReference

	var result model.AuthResult
	if err := c.do(ctx, config.OpThreeDSVerify, "", reqBody, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
