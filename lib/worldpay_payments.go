package lib

import (
	"cardpay/config"
	"cardpay/dto/model"
	"context"
)

type PaymentRequest struct {
	Reference       string
	Amount          int64
	Currency        string
	Token           model.TokenInstrument
	CVC             string
	ThreeDS         *model.ThreeDSAuthentication
	RiskProfileHref string
}

type subMerchantAddress struct {
	PostalCode  string `json:"postalCode,omitempty"`
	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
}

type paymentFacilitator struct {
	SchemeID                       string `json:"schemeId"`
	IndependentSalesOrganizationID string `json:"independentSalesOrganizationId,omitempty"`
	SubMerchant                    struct {
		Name         string             `json:"name,omitempty"`
		Reference    string             `json:"reference,omitempty"`
		Address      subMerchantAddress `json:"address"`
		PhoneNumber  string             `json:"phoneNumber,omitempty"`
		Email        string             `json:"email,omitempty"`
		TaxReference string             `json:"taxReference,omitempty"`
	} `json:"subMerchant"`
}

type customerInitiatedRequest struct {
	TransactionReference string `json:"transactionReference"`
	Merchant             struct {
		Entity             string              `json:"entity"`
		PaymentFacilitator *paymentFacilitator `json:"paymentFacilitator,omitempty"`
	} `json:"merchant"`
	Instruction struct {
		RequestAutoSettlement struct {
			Enabled bool `json:"enabled"`
		} `json:"requestAutoSettlement"`
		Narrative struct {
			Line1 string `json:"line1"`
		} `json:"narrative"`
		Value             instructionValue     `json:"value"`
		PaymentInstrument paymentInstrumentRef `json:"paymentInstrument"`
	} `json:"instruction"`
	Channel        string `json:"channel"`
	Authentication struct {
		ThreeDS *model.ThreeDSAuthentication `json:"threeDS,omitempty"`
	} `json:"authentication"`
	RiskProfile string `json:"riskProfile,omitempty"`
}

func (c *WorldpayClient) facilitatorBlock() *paymentFacilitator {
	f := c.facilitator
	if f.SchemeID == "" {
		return nil
	}
	pf := &paymentFacilitator{
		SchemeID:                       f.SchemeID,
		IndependentSalesOrganizationID: f.IndependentSalesOrganizationID,
	}
	pf.SubMerchant.Name = f.SubMerchantName
	pf.SubMerchant.Reference = f.SubMerchantReference
	pf.SubMerchant.Address = subMerchantAddress{
		PostalCode:  f.SubMerchantPostalCode,
		Street:      f.SubMerchantStreet,
		City:        f.SubMerchantCity,
		State:       f.SubMerchantState,
		CountryCode: f.SubMerchantCountryCode,
	}
	pf.SubMerchant.PhoneNumber = f.SubMerchantPhoneNumber
	pf.SubMerchant.Email = f.SubMerchantEmail
	pf.SubMerchant.TaxReference = f.SubMerchantTaxReference
	return pf
}

// CustomerInitiatedTransaction authorizes and auto-settles the payment. The raw
// gateway response is returned for display and audit.
func (c *WorldpayClient) CustomerInitiatedTransaction(ctx context.Context, in PaymentRequest) (map[string]interface{}, error) {
	var reqBody customerInitiatedRequest
	reqBody.TransactionReference = in.Reference
	reqBody.Merchant.Entity = c.entity
	reqBody.Merchant.PaymentFacilitator = c.facilitatorBlock()
	reqBody.Instruction.RequestAutoSettlement.Enabled = true
	reqBody.Instruction.Narrative.Line1 = c.narrative
	reqBody.Instruction.Value = instructionValue{Currency: in.Currency, Amount: in.Amount}
	// the payments API wants card/token here, not card/tokenized
	reqBody.Instruction.PaymentInstrument = paymentInstrumentRef{Type: "card/token", Href: in.Token.Href, CVC: in.CVC}
	reqBody.Channel = "ecom"
	reqBody.Authentication.ThreeDS = in.ThreeDS
	reqBody.RiskProfile = in.RiskProfileHref

	result := map[string]interface{}{}
	if err := c.do(ctx, config.OpCustomerInitiated, "", reqBody, &result); err != nil {
		return nil, err
	}
	return result, nil
}
