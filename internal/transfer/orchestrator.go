package transfer

import (
	"context"
	"time"

	"github.com/orrange/orrange-api/internal/custody"
	"github.com/orrange/orrange-api/internal/types"
	"github.com/orrange/orrange-api/pkg/apperrors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Orchestrator moves custodial USDC from the merchant's wallet to the user's
// wallet for an order whose fiat payment is confirmed. Every code path ends
// with the order in payment_confirmed or completed; nothing in between
// survives a return. The gateway call itself is single-shot; recovery is the
// caller-driven retry, which is safe because status only advances past
// payment_confirmed together with the tx hash.
type Orchestrator struct {
	db      *Database
	gateway custody.Gateway
}

func NewOrchestrator(gormDB *gorm.DB, gateway custody.Gateway) *Orchestrator {
	return &Orchestrator{
		db:      NewDatabase(gormDB),
		gateway: gateway,
	}
}

// Execute runs the transfer protocol for one order.
func (o *Orchestrator) Execute(ctx context.Context, orderID string) (*types.TransferResult, error) {
	logger := log.With().
		Str("order_id", orderID).
		Str("service", "transfer").
		Logger()

	order, err := o.db.GetOrder(orderID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load order")
	}
	if order == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	if order.Status != types.OrderStatusPaymentConfirmed {
		return nil, apperrors.Newf(apperrors.CodeInvalidState, "order is %s, expected payment_confirmed", order.Status)
	}
	if order.MerchantID == nil {
		return nil, apperrors.New(apperrors.CodeInvalidState, "order has no assigned merchant")
	}

	merchantWallet, userAddress, err := o.resolveWallets(order)
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("merchant_wallet", merchantWallet.address).
		Str("user_wallet", userAddress).
		Str("amount", order.USDCAmount.String()).
		Msg("checking merchant balance")

	balance, err := o.gateway.BalanceOf(ctx, merchantWallet.address)
	if err != nil {
		logger.Error().Err(err).Msg("balance query failed")
		o.revert(orderID, logger)
		return nil, apperrors.Wrap(apperrors.CodeTransferFailed, err, "failed to query merchant balance")
	}
	if balance.LessThan(order.USDCAmount) {
		// Intentionally retryable: the order stays at payment_confirmed so
		// the merchant can top up and call retry.
		logger.Warn().
			Str("balance", balance.String()).
			Str("required", order.USDCAmount.String()).
			Msg("insufficient merchant balance")
		return nil, apperrors.Newf(apperrors.CodeInsufficientBalance,
			"insufficient merchant balance: has %s USDC, needs %s USDC", balance, order.USDCAmount)
	}

	txHash, err := o.gateway.Transfer(ctx, merchantWallet.walletID, userAddress, order.USDCAmount)
	if err != nil {
		logger.Error().Err(err).Msg("custodial transfer failed")
		o.revert(orderID, logger)
		return nil, apperrors.Wrap(apperrors.CodeTransferFailed, err, "transfer failed")
	}

	completedAt := time.Now()
	completed, err := o.db.CompleteTransfer(orderID, txHash, completedAt)
	if err != nil || !completed {
		// The transfer landed but the terminal write did not stick. Park
		// the order for retry and keep the hash in the log for manual
		// reconciliation.
		logger.Error().
			Err(err).
			Str("tx_hash", txHash).
			Msg("transfer succeeded but order update failed")
		o.revert(orderID, logger)
		return nil, apperrors.New(apperrors.CodeTransferFailed, "transfer succeeded but order update failed")
	}

	logger.Info().
		Str("tx_hash", txHash).
		Msg("transfer completed")

	return &types.TransferResult{
		OrderID:     orderID,
		TxHash:      txHash,
		CompletedAt: completedAt,
	}, nil
}

type merchantWallet struct {
	walletID string
	address  string
}

func (o *Orchestrator) resolveWallets(order *types.Order) (*merchantWallet, string, error) {
	merchant, err := o.db.GetMerchantByID(*order.MerchantID)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeInternal, err, "failed to load merchant")
	}
	if merchant == nil {
		return nil, "", apperrors.New(apperrors.CodeNotFound, "merchant not found")
	}

	merchantUser, err := o.db.GetUserByID(merchant.UserID)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.CodeInternal, err, "failed to load merchant user")
	}
	if merchantUser == nil {
		return nil, "", apperrors.New(apperrors.CodeNotFound, "merchant user not found")
	}
	if merchantUser.WalletAddress == "" || merchantUser.WalletID == "" {
		return nil, "", apperrors.New(apperrors.CodeNotConfigured, "merchant wallet not configured for server signing")
	}

	userAddress := order.UserWalletAddress
	if userAddress == "" {
		owner, err := o.db.GetUserByID(order.UserID)
		if err != nil {
			return nil, "", apperrors.Wrap(apperrors.CodeInternal, err, "failed to load order owner")
		}
		if owner == nil || owner.WalletAddress == "" {
			return nil, "", apperrors.New(apperrors.CodeNotFound, "user wallet not found")
		}
		userAddress = owner.WalletAddress
	}

	return &merchantWallet{
		walletID: merchantUser.WalletID,
		address:  merchantUser.WalletAddress,
	}, userAddress, nil
}

// revert parks the order back at payment_confirmed. Issued even when status
// was never advanced so a partial failure lands in a retryable state.
func (o *Orchestrator) revert(orderID string, logger zerolog.Logger) {
	if err := o.db.RevertToPaymentConfirmed(orderID); err != nil {
		logger.Error().Err(err).Msg("failed to revert order to payment_confirmed")
	}
}
