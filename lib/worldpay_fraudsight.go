package lib

import (
	"cardpay/config"
	"cardpay/dto/model"
	"context"
)

type AssessmentRequest struct {
	Reference    string
	Amount       int64
	Currency     string
	Token        model.TokenInstrument
	SessionID    string
	IPAddress    string
	ShopperEmail string
}

type fraudsightRequest struct {
	TransactionReference string      `json:"transactionReference"`
	Merchant             merchantRef `json:"merchant"`
	Instruction          struct {
		PaymentInstrument paymentInstrumentRef `json:"paymentInstrument"`
		Value             instructionValue     `json:"value"`
	} `json:"instruction"`
	DeviceData struct {
		CollectionReference string `json:"collectionReference,omitempty"`
		IPAddress           string `json:"ipAddress,omitempty"`
	} `json:"deviceData"`
	RiskData struct {
		Account struct {
			Email string `json:"email,omitempty"`
		} `json:"account"`
	} `json:"riskData"`
}

// FraudsightAssessment scores the payment and returns the risk profile to attach to the charge.
func (c *WorldpayClient) FraudsightAssessment(ctx context.Context, in AssessmentRequest) (*model.RiskAssessment, error) {
	var reqBody fraudsightRequest
	reqBody.TransactionReference = in.Reference
	reqBody.Merchant.Entity = c.entity
	reqBody.Instruction.PaymentInstrument = paymentInstrumentRef{Type: "card/tokenized", Href: in.Token.Href}
	reqBody.Instruction.Value = instructionValue{Currency: in.Currency, Amount: in.Amount}
	reqBody.DeviceData.CollectionReference = in.SessionID
	reqBody.DeviceData.IPAddress = in.IPAddress
	reqBody.RiskData.Account.Email = in.ShopperEmail

	var result model.RiskAssessment
	if err := c.do(ctx, config.OpFraudsight, "", reqBody, &result); err != nil {
		return nil, err
	}
	switch result.Outcome {
	case model.RiskLow, model.RiskHigh, model.RiskReview:
	default:
		return nil, &GatewayError{Operation: config.OpFraudsight, Message: "unexpected risk outcome " + string(result.Outcome)}
	}
	return &result, nil
}
