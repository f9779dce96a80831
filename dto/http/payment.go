package http

// PaymentFormRequest is the card form posted to "/".
type PaymentFormRequest struct {
	CardNumber      string `form:"card_number" validate:"required,numeric,min=12,max=19,luhn_checksum"`
	CardExpiry      string `form:"card_expiry" validate:"required,card_expiry"`
	CardCVC         string `form:"card_cvc" validate:"required,numeric,min=3,max=4"`
	CardHolderName  string `form:"card_holder_name" validate:"required,max=255"`
	CardHolderEmail string `form:"card_holder_email" validate:"required,email,max=128"`
	TmxSessionID    string `form:"tmx_session_id" validate:"omitempty,max=128"`
}

// AuthenticateRequest is posted by the device data collection page once the
// collector reported a session id.
type AuthenticateRequest struct {
	Reference                string `form:"reference" validate:"required,max=64"`
	SessionID                string `form:"sessionId" validate:"omitempty,max=255"`
	BrowserLanguage          string `form:"browserLanguage" validate:"omitempty,max=35"`
	BrowserJavaEnabled       string `form:"browserJavaEnabled"`
	BrowserColorDepth        string `form:"browserColorDepth" validate:"omitempty,oneof=1 4 8 15 16 24 32 48"`
	BrowserScreenHeight      string `form:"browserScreenHeight" validate:"omitempty,numeric"`
	BrowserScreenWidth       string `form:"browserScreenWidth" validate:"omitempty,numeric"`
	BrowserTZ                string `form:"browserTZ" validate:"omitempty,max=8"`
	BrowserJavascriptEnabled string `form:"browserJavascriptEnabled"`
}

// ChallengeCallbackRequest is posted by the issuer after the 3DS challenge.
type ChallengeCallbackRequest struct {
	TransactionID string `form:"TransactionId"`
	MD            string `form:"MD"`
}
