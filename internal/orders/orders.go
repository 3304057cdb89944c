package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/orrange/orrange-api/internal/types"
	"github.com/orrange/orrange-api/internal/users"
	"github.com/orrange/orrange-api/pkg/apperrors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransferExecutor runs the custodial transfer for an order whose payment
// has been confirmed. Implemented by the transfer orchestrator.
type TransferExecutor interface {
	Execute(ctx context.Context, orderID string) (*types.TransferResult, error)
}

// SignerBootstrap lazily enables server signing on a merchant's wallet.
type SignerBootstrap interface {
	EnsureServerSigningEnabled(ctx context.Context, merchantUserID string) (*types.BootstrapResult, error)
}

// Service is the order state machine: the sole writer of order status. Every
// transition re-reads the order for guard evaluation and then enforces the
// transition with a conditional write, so concurrent callers lose races as
// INVALID_STATE or CONFLICT rather than corrupting the progression.
type Service struct {
	db        *Database
	directory *users.Service
	transfers TransferExecutor
	bootstrap SignerBootstrap
}

func NewService(gormDB *gorm.DB, directory *users.Service, transfers TransferExecutor, bootstrap SignerBootstrap) *Service {
	return &Service{
		db:        NewDatabase(gormDB),
		directory: directory,
		transfers: transfers,
		bootstrap: bootstrap,
	}
}

// CreateInput is the order creation payload.
type CreateInput struct {
	Kind          string          `json:"kind" binding:"required,oneof=onramp offramp"`
	FiatAmount    decimal.Decimal `json:"fiat_amount" binding:"required"`
	USDCAmount    decimal.Decimal `json:"usdc_amount" binding:"required"`
	WalletAddress string          `json:"wallet_address"`
}

// Create opens a new order in pending with no merchant assigned.
func (s *Service) Create(identityID string, input CreateInput) (*types.Order, error) {
	user, err := s.directory.ResolveUser(identityID)
	if err != nil {
		return nil, err
	}

	if !input.FiatAmount.IsPositive() || !input.USDCAmount.IsPositive() {
		return nil, apperrors.New(apperrors.CodeValidation, "amounts must be positive")
	}

	walletAddress := strings.TrimSpace(input.WalletAddress)
	if walletAddress == "" {
		walletAddress = user.WalletAddress
	}

	order := &types.Order{
		OrderID:           "ORD_" + uuid.New().String(),
		UserID:            user.UserID,
		Kind:              types.OrderKind(input.Kind),
		FiatAmount:        input.FiatAmount,
		USDCAmount:        input.USDCAmount,
		Status:            types.OrderStatusPending,
		UserWalletAddress: walletAddress,
	}
	if err := s.db.CreateOrder(order); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to create order")
	}

	log.Info().
		Str("order_id", order.OrderID).
		Str("user_id", user.UserID).
		Str("kind", string(order.Kind)).
		Str("fiat_amount", order.FiatAmount.String()).
		Str("usdc_amount", order.USDCAmount.String()).
		Msg("order created")

	return order, nil
}

// Accept claims a pending order for the calling merchant. First-accept wins:
// the claim is a single conditional update, so a concurrent accept from
// another merchant gets CONFLICT. Re-accept by the merchant that already
// holds the order is a no-op success so UI retries stay harmless. The signer
// bootstrap runs before the claim; a merchant whose wallet cannot sign must
// not hold orders it cannot fulfill.
func (s *Service) Accept(ctx context.Context, identityID, orderID, upiOverride string) (*types.Order, error) {
	user, merchant, err := s.directory.ResolveMerchant(identityID)
	if err != nil {
		return nil, err
	}
	if !merchant.IsActive {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "merchant is not active")
	}

	order, err := s.getOrder(orderID)
	if err != nil {
		return nil, err
	}

	if order.MerchantID != nil && *order.MerchantID != merchant.MerchantID {
		return nil, apperrors.New(apperrors.CodeConflict, "order is already assigned to another merchant")
	}
	if order.Status != types.OrderStatusPending {
		if order.MerchantID != nil && *order.MerchantID == merchant.MerchantID && order.Status == types.OrderStatusAccepted {
			return order, nil
		}
		return nil, apperrors.Newf(apperrors.CodeInvalidState, "order is %s, expected pending", order.Status)
	}

	if _, err := s.bootstrap.EnsureServerSigningEnabled(ctx, user.UserID); err != nil {
		return nil, err
	}

	payoutUPI := strings.TrimSpace(upiOverride)
	if payoutUPI == "" {
		payoutUPI = merchant.UPIID
	}

	claimed, err := s.db.ClaimPending(orderID, merchant.MerchantID, payoutUPI, time.Now())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to accept order")
	}
	if !claimed {
		// Lost a race since the guard read; re-read to name the outcome.
		current, err := s.getOrder(orderID)
		if err != nil {
			return nil, err
		}
		if current.MerchantID != nil && *current.MerchantID == merchant.MerchantID && current.Status == types.OrderStatusAccepted {
			return current, nil
		}
		if current.MerchantID != nil && *current.MerchantID != merchant.MerchantID {
			return nil, apperrors.New(apperrors.CodeConflict, "order is already assigned to another merchant")
		}
		return nil, apperrors.Newf(apperrors.CodeInvalidState, "order is %s, expected pending", current.Status)
	}

	log.Info().
		Str("order_id", orderID).
		Str("merchant_id", merchant.MerchantID).
		Str("payout_upi", payoutUPI).
		Msg("order accepted")

	return s.getOrder(orderID)
}

// SubmitPayment records the owner's fiat payment reference and moves the
// order to payment_submitted.
func (s *Service) SubmitPayment(identityID, orderID, paymentReference string) (*types.Order, error) {
	user, err := s.directory.ResolveUser(identityID)
	if err != nil {
		return nil, err
	}

	paymentReference = strings.TrimSpace(paymentReference)
	if paymentReference == "" {
		return nil, apperrors.New(apperrors.CodeValidation, "payment reference is required")
	}

	order, err := s.getOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != user.UserID {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "not your order")
	}
	if order.Status != types.OrderStatusAccepted {
		return nil, apperrors.Newf(apperrors.CodeInvalidState, "order is %s, expected accepted", order.Status)
	}

	advanced, err := s.db.AdvanceStatus(orderID, types.OrderStatusAccepted, types.OrderStatusPaymentSubmitted, map[string]interface{}{
		"payment_reference": paymentReference,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to submit payment")
	}
	if !advanced {
		return nil, apperrors.New(apperrors.CodeInvalidState, "order state changed, payment not recorded")
	}

	log.Info().
		Str("order_id", orderID).
		Str("payment_reference", paymentReference).
		Msg("payment submitted")

	return s.getOrder(orderID)
}

// ConfirmPayment is the merchant's attestation that the fiat arrived. It
// advances the order to payment_confirmed and then runs the custodial
// transfer synchronously; the caller gets either the transfer result or the
// orchestrator's error with the order parked at payment_confirmed for
// RetryTransfer.
func (s *Service) ConfirmPayment(ctx context.Context, identityID, orderID string) (*types.TransferResult, error) {
	_, merchant, err := s.directory.ResolveMerchant(identityID)
	if err != nil {
		return nil, err
	}

	order, err := s.getOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.MerchantID == nil || *order.MerchantID != merchant.MerchantID {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "not your order")
	}
	if order.Status != types.OrderStatusPaymentSubmitted {
		return nil, apperrors.Newf(apperrors.CodeInvalidState, "order is %s, expected payment_submitted", order.Status)
	}

	advanced, err := s.db.AdvanceStatus(orderID, types.OrderStatusPaymentSubmitted, types.OrderStatusPaymentConfirmed, map[string]interface{}{
		"payment_confirmed_at": time.Now(),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to confirm payment")
	}
	if !advanced {
		return nil, apperrors.New(apperrors.CodeInvalidState, "order state changed, payment not confirmed")
	}

	log.Info().
		Str("order_id", orderID).
		Str("merchant_id", merchant.MerchantID).
		Msg("payment confirmed, starting transfer")

	return s.transfers.Execute(ctx, orderID)
}

// RetryTransfer re-runs the custodial transfer for an order stuck in
// payment_confirmed after a failed attempt. Recovery is always this explicit
// call; nothing retries in the background.
func (s *Service) RetryTransfer(ctx context.Context, identityID, orderID string) (*types.TransferResult, error) {
	_, merchant, err := s.directory.ResolveMerchant(identityID)
	if err != nil {
		return nil, err
	}

	order, err := s.getOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.MerchantID == nil || *order.MerchantID != merchant.MerchantID {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "not your order")
	}
	if order.Status != types.OrderStatusPaymentConfirmed {
		return nil, apperrors.Newf(apperrors.CodeInvalidState, "cannot retry transfer, order is %s", order.Status)
	}

	log.Info().
		Str("order_id", orderID).
		Str("merchant_id", merchant.MerchantID).
		Msg("retrying transfer")

	return s.transfers.Execute(ctx, orderID)
}

// Cancel withdraws an order the owner no longer wants, allowed only while it
// is still pending and unclaimed.
func (s *Service) Cancel(identityID, orderID string) (*types.Order, error) {
	user, err := s.directory.ResolveUser(identityID)
	if err != nil {
		return nil, err
	}

	order, err := s.getOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != user.UserID {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "not your order")
	}
	if order.Status != types.OrderStatusPending || order.MerchantID != nil {
		return nil, apperrors.Newf(apperrors.CodeInvalidState, "order is %s, only pending unclaimed orders can be cancelled", order.Status)
	}

	cancelled, err := s.db.CancelPending(orderID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to cancel order")
	}
	if !cancelled {
		return nil, apperrors.New(apperrors.CodeInvalidState, "order state changed, not cancelled")
	}

	log.Info().Str("order_id", orderID).Msg("order cancelled")

	return s.getOrder(orderID)
}

// Get returns a single order, visible to its owner, its assigned merchant,
// and admins.
func (s *Service) Get(identityID, orderID string) (*types.Order, error) {
	user, err := s.directory.ResolveUser(identityID)
	if err != nil {
		return nil, err
	}

	order, err := s.getOrder(orderID)
	if err != nil {
		return nil, err
	}

	if order.UserID == user.UserID || user.Role == types.RoleAdmin {
		return order, nil
	}
	if user.Role == types.RoleMerchant && order.MerchantID != nil {
		_, merchant, merr := s.directory.ResolveMerchant(identityID)
		if merr == nil && *order.MerchantID == merchant.MerchantID {
			return order, nil
		}
	}
	return nil, apperrors.New(apperrors.CodeUnauthorized, "not your order")
}

// ListMine returns the caller's own orders, newest first.
func (s *Service) ListMine(identityID string) ([]types.Order, error) {
	user, err := s.directory.ResolveUser(identityID)
	if err != nil {
		return nil, err
	}
	orders, err := s.db.ListByOwner(user.UserID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to list orders")
	}
	return orders, nil
}

// MerchantQueue is the merchant's dual view: the unclaimed pool plus the
// orders already assigned to them. Two explicit queries, composed here.
type MerchantQueue struct {
	Available []types.Order `json:"available"`
	Assigned  []types.Order `json:"assigned"`
}

// ListForMerchant builds the merchant queue.
func (s *Service) ListForMerchant(identityID string) (*MerchantQueue, error) {
	_, merchant, err := s.directory.ResolveMerchant(identityID)
	if err != nil {
		return nil, err
	}

	available, err := s.db.ListUnassignedPending()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to list pending orders")
	}
	assigned, err := s.db.ListByMerchant(merchant.MerchantID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to list assigned orders")
	}

	return &MerchantQueue{Available: available, Assigned: assigned}, nil
}

func (s *Service) getOrder(orderID string) (*types.Order, error) {
	order, err := s.db.GetOrder(orderID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load order")
	}
	if order == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "order not found")
	}
	return order, nil
}
