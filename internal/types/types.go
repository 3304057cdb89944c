package types

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the canonical order lifecycle vocabulary. Historical rows
// may carry the old labels (merchant_accepted, payment_sent); migration 001
// rewrites them to this set.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "pending"
	OrderStatusAccepted         OrderStatus = "accepted"
	OrderStatusPaymentSubmitted OrderStatus = "payment_submitted"
	OrderStatusPaymentConfirmed OrderStatus = "payment_confirmed"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusExpired          OrderStatus = "expired"
)

// OrderKind distinguishes fiat→USDC from USDC→fiat conversions.
type OrderKind string

const (
	OrderKindOnramp  OrderKind = "onramp"
	OrderKindOfframp OrderKind = "offramp"
)

// Role is the server-side privilege level. It lives in the users table and is
// looked up per request, never taken from a token claim.
type Role string

const (
	RoleUser     Role = "user"
	RoleMerchant Role = "merchant"
	RoleAdmin    Role = "admin"
)

// Order is the central entity. Status is the only mutable field besides the
// payment/transfer metadata and timestamps written by the transitions that
// produce them.
type Order struct {
	gorm.Model        `json:"-"`
	OrderID           string          `gorm:"uniqueIndex" json:"order_id"`
	UserID            string          `gorm:"index" json:"user_id"`
	MerchantID        *string         `gorm:"index" json:"merchant_id"`
	Kind              OrderKind       `json:"kind"`
	FiatAmount        decimal.Decimal `gorm:"type:numeric" json:"fiat_amount"`
	USDCAmount        decimal.Decimal `gorm:"type:numeric" json:"usdc_amount"`
	Status            OrderStatus     `gorm:"index" json:"status"`
	UserWalletAddress string          `json:"user_wallet_address"`
	// MerchantPayoutUPI is the UPI handle the user pays fiat to; chosen at
	// acceptance, defaulting to the merchant's registered handle.
	MerchantPayoutUPI  string     `json:"merchant_payout_upi,omitempty"`
	PaymentReference   string     `json:"payment_reference,omitempty"`
	TxHash             string     `json:"tx_hash,omitempty"`
	AcceptedAt         *time.Time `json:"accepted_at,omitempty"`
	PaymentConfirmedAt *time.Time `json:"payment_confirmed_at,omitempty"`
	TransferredAt      *time.Time `json:"transferred_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// User owns at most one custodial wallet, bound at first sign-in sync and
// immutable afterwards. WalletID is the custody provider's wallet reference
// (needed for server-side signing); WalletAddress is the on-chain address.
type User struct {
	gorm.Model    `json:"-"`
	UserID        string    `gorm:"uniqueIndex" json:"user_id"`
	IdentityID    string    `gorm:"uniqueIndex" json:"identity_id"`
	Email         string    `json:"email"`
	Role          Role      `json:"role"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	WalletID      string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Merchant extends a user with fiat-collection details and the one-shot
// server-signing flag set by the signer bootstrap.
type Merchant struct {
	gorm.Model           `json:"-"`
	MerchantID           string    `gorm:"uniqueIndex" json:"merchant_id"`
	UserID               string    `gorm:"uniqueIndex" json:"user_id"`
	UPIID                string    `json:"upi_id"`
	IsActive             bool      `json:"is_active"`
	ServerSigningEnabled bool      `json:"server_signing_enabled"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
