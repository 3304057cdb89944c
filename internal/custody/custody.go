// Package custody talks to the external wallet platform that holds signing
// authority over user and merchant wallets, and to a chain RPC node for
// balance reads. Both wallets in a trade are custodial, which is why the
// exchange needs no on-chain escrow: the backend signs the USDC transfer out
// of the merchant's wallet directly once it is registered as an authorized
// signer.
package custody

import (
	"context"

	"github.com/shopspring/decimal"
)

// USDCDecimals is the token's base-unit exponent.
const USDCDecimals = 6

// Gateway exposes the two custodial-wallet operations the transfer
// orchestrator needs. Both are remote calls with real latency and failure
// modes; neither is retried at this layer.
type Gateway interface {
	// BalanceOf returns the wallet's USDC balance in whole tokens.
	BalanceOf(ctx context.Context, address string) (decimal.Decimal, error)
	// Transfer signs and broadcasts a USDC transfer out of the custodial
	// wallet identified by walletID, returning the transaction hash. A
	// returned error does not guarantee the transfer did not land; callers
	// own that ambiguity.
	Transfer(ctx context.Context, walletID, toAddress string, amount decimal.Decimal) (string, error)
}

// SigningAuthority registers the backend's authorization key against a
// custodial wallet so Gateway.Transfer can sign on its behalf.
type SigningAuthority interface {
	RegisterSigner(ctx context.Context, walletID string) error
}
