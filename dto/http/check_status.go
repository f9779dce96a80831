package http

import "cardpay/dto/model"

// TransactionStatus is returned by the admin status endpoint.
type TransactionStatus struct {
	model.TransactionSummary
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	DisplayAmount string `json:"display_amount"`
}

// ArchivedTransactionStatus is returned once the registry record expired and
// only the persisted payment logs remain.
type ArchivedTransactionStatus struct {
	Reference     string             `json:"reference"`
	Status        string             `json:"status"`
	StatusMessage string             `json:"status_message"`
	DisplayAmount string             `json:"display_amount"`
	Archived      bool               `json:"archived"`
	Logs          []model.PaymentLog `json:"logs"`
}
