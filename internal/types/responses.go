package types

import "time"

// TransferResult is returned by the transfer orchestrator on a confirmed
// custodial transfer.
type TransferResult struct {
	OrderID     string    `json:"order_id"`
	TxHash      string    `json:"tx_hash"`
	CompletedAt time.Time `json:"completed_at"`
}

// BootstrapResult reports the outcome of the merchant signer bootstrap.
// AlreadySetup means the persisted flag short-circuited the authority call.
type BootstrapResult struct {
	AlreadySetup bool `json:"already_setup"`
}

// Profile is the /users/me payload: the user row plus the merchant id when
// the caller is a merchant.
type Profile struct {
	User       User    `json:"user"`
	MerchantID *string `json:"merchant_id,omitempty"`
}
