package orders

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orrange/orrange-api/internal/types"
	"github.com/orrange/orrange-api/internal/users"
	"github.com/orrange/orrange-api/pkg/apperrors"
)

type stubExecutor struct {
	mu      sync.Mutex
	calls   int
	result  *types.TransferResult
	err     error
}

func (s *stubExecutor) Execute(ctx context.Context, orderID string) (*types.TransferResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &types.TransferResult{OrderID: orderID, TxHash: "0xstub", CompletedAt: time.Now()}, nil
}

type stubBootstrap struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubBootstrap) EnsureServerSigningEnabled(ctx context.Context, merchantUserID string) (*types.BootstrapResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &types.BootstrapResult{}, nil
}

type orderEnv struct {
	db        *gorm.DB
	service   *Service
	executor  *stubExecutor
	bootstrap *stubBootstrap
}

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.User{}, &types.Merchant{}, &types.Order{}))
	return db
}

func newOrderEnv(t *testing.T) *orderEnv {
	t.Helper()

	db := setupOrdersTestDB(t)
	executor := &stubExecutor{}
	bootstrap := &stubBootstrap{}
	directory := users.NewService(db)
	return &orderEnv{
		db:        db,
		service:   NewService(db, directory, executor, bootstrap),
		executor:  executor,
		bootstrap: bootstrap,
	}
}

func (e *orderEnv) seedUser(t *testing.T, identityID string) *types.User {
	t.Helper()

	user := &types.User{
		UserID:        "USR_" + uuid.New().String(),
		IdentityID:    identityID,
		Email:         identityID + "@example.com",
		Role:          types.RoleUser,
		WalletAddress: "0x" + strings.Repeat("1", 40),
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *orderEnv) seedMerchant(t *testing.T, identityID string) (*types.User, *types.Merchant) {
	t.Helper()

	user := &types.User{
		UserID:        "USR_" + uuid.New().String(),
		IdentityID:    identityID,
		Email:         identityID + "@example.com",
		Role:          types.RoleMerchant,
		WalletAddress: "0x" + strings.Repeat("2", 40),
		WalletID:      "WAL_" + identityID,
	}
	require.NoError(t, e.db.Create(user).Error)

	merchant := &types.Merchant{
		MerchantID: "MER_" + uuid.New().String(),
		UserID:     user.UserID,
		UPIID:      identityID + "@upi",
		IsActive:   true,
	}
	require.NoError(t, e.db.Create(merchant).Error)
	return user, merchant
}

func (e *orderEnv) createOrder(t *testing.T, identityID string) *types.Order {
	t.Helper()

	order, err := e.service.Create(identityID, CreateInput{
		Kind:       string(types.OrderKindOnramp),
		FiatAmount: decimal.NewFromInt(900),
		USDCAmount: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	return order
}

func assertCode(t *testing.T, err error, code apperrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, apperrors.CodeOf(err), "unexpected error code: %v", err)
}

func TestOrderLifecycleProgression(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	_, merchant := env.seedMerchant(t, "merchant-1")

	order := env.createOrder(t, "user-1")
	assert.Equal(t, types.OrderStatusPending, order.Status)
	assert.Nil(t, order.MerchantID)
	assert.True(t, order.FiatAmount.Equal(decimal.NewFromInt(900)))
	assert.True(t, order.USDCAmount.Equal(decimal.NewFromInt(10)))

	accepted, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.MerchantID)
	assert.Equal(t, merchant.MerchantID, *accepted.MerchantID)
	assert.Equal(t, merchant.UPIID, accepted.MerchantPayoutUPI)
	assert.NotNil(t, accepted.AcceptedAt)
	assert.Equal(t, 1, env.bootstrap.calls)

	submitted, err := env.service.SubmitPayment("user-1", order.OrderID, "UPI-REF-123")
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusPaymentSubmitted, submitted.Status)
	assert.Equal(t, "UPI-REF-123", submitted.PaymentReference)

	result, err := env.service.ConfirmPayment(context.Background(), "merchant-1", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, result.OrderID)
	assert.Equal(t, 1, env.executor.calls)

	// The stub executor does not write the terminal state, so the order sits
	// at payment_confirmed with its timestamp recorded.
	current, err := env.service.Get("user-1", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusPaymentConfirmed, current.Status)
	assert.NotNil(t, current.PaymentConfirmedAt)
}

func TestAcceptFirstClaimWins(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")
	env.seedMerchant(t, "merchant-2")

	order := env.createOrder(t, "user-1")

	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)

	_, err = env.service.Accept(context.Background(), "merchant-2", order.OrderID, "")
	assertCode(t, err, apperrors.CodeConflict)

	current, err := env.service.Get("user-1", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusAccepted, current.Status)
}

func TestAcceptIdempotentForHoldingMerchant(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")

	order := env.createOrder(t, "user-1")

	first, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)

	again, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, again.OrderID)
	assert.Equal(t, types.OrderStatusAccepted, again.Status)
}

func TestAcceptConcurrentSingleWinner(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")
	env.seedMerchant(t, "merchant-2")

	order := env.createOrder(t, "user-1")

	identities := []string{"merchant-1", "merchant-2"}
	errs := make([]error, len(identities))
	var wg sync.WaitGroup
	for i, identity := range identities {
		wg.Add(1)
		go func(i int, identity string) {
			defer wg.Done()
			_, errs[i] = env.service.Accept(context.Background(), identity, order.OrderID, "")
		}(i, identity)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			code := apperrors.CodeOf(err)
			assert.Contains(t, []apperrors.Code{apperrors.CodeConflict, apperrors.CodeInvalidState}, code)
		}
	}
	assert.Equal(t, 1, winners)

	current, err := env.service.Get("user-1", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusAccepted, current.Status)
	assert.NotNil(t, current.MerchantID)
}

func TestAcceptBootstrapFailureBlocksClaim(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")
	env.bootstrap.err = apperrors.New(apperrors.CodeNotConfigured, "wallet not synced yet")

	order := env.createOrder(t, "user-1")

	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	assertCode(t, err, apperrors.CodeNotConfigured)

	current, err := env.service.Get("user-1", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusPending, current.Status)
	assert.Nil(t, current.MerchantID)
}

func TestAcceptRequiresMerchantRole(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedUser(t, "user-2")

	order := env.createOrder(t, "user-1")

	_, err := env.service.Accept(context.Background(), "user-2", order.OrderID, "")
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestAcceptInactiveMerchantRejected(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	_, merchant := env.seedMerchant(t, "merchant-1")
	require.NoError(t, env.db.Model(&types.Merchant{}).
		Where("merchant_id = ?", merchant.MerchantID).
		Update("is_active", false).Error)

	order := env.createOrder(t, "user-1")

	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestAcceptUPIOverride(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")

	order := env.createOrder(t, "user-1")

	accepted, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "override@upi")
	require.NoError(t, err)
	assert.Equal(t, "override@upi", accepted.MerchantPayoutUPI)
}

func TestSubmitPaymentRequiresAcceptedState(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")

	order := env.createOrder(t, "user-1")

	_, err := env.service.SubmitPayment("user-1", order.OrderID, "UPI-REF-1")
	assertCode(t, err, apperrors.CodeInvalidState)

	current, err := env.service.Get("user-1", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusPending, current.Status)
	assert.Empty(t, current.PaymentReference)
}

func TestSubmitPaymentOwnerOnly(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedUser(t, "user-2")
	env.seedMerchant(t, "merchant-1")

	order := env.createOrder(t, "user-1")
	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)

	_, err = env.service.SubmitPayment("user-2", order.OrderID, "UPI-REF-1")
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestSubmitPaymentRejectsEmptyReference(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")

	order := env.createOrder(t, "user-1")
	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)

	_, err = env.service.SubmitPayment("user-1", order.OrderID, "   ")
	assertCode(t, err, apperrors.CodeValidation)
}

func TestConfirmPaymentAssignedMerchantOnly(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")
	env.seedMerchant(t, "merchant-2")

	order := env.createOrder(t, "user-1")
	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)
	_, err = env.service.SubmitPayment("user-1", order.OrderID, "UPI-REF-1")
	require.NoError(t, err)

	_, err = env.service.ConfirmPayment(context.Background(), "merchant-2", order.OrderID)
	assertCode(t, err, apperrors.CodeUnauthorized)
	assert.Equal(t, 0, env.executor.calls)
}

func TestConfirmPaymentRequiresSubmittedState(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")

	order := env.createOrder(t, "user-1")
	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)

	_, err = env.service.ConfirmPayment(context.Background(), "merchant-1", order.OrderID)
	assertCode(t, err, apperrors.CodeInvalidState)
	assert.Equal(t, 0, env.executor.calls)
}

func TestConfirmPaymentSurfacesTransferError(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")
	env.executor.err = apperrors.New(apperrors.CodeInsufficientBalance, "insufficient merchant balance")

	order := env.createOrder(t, "user-1")
	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)
	_, err = env.service.SubmitPayment("user-1", order.OrderID, "UPI-REF-1")
	require.NoError(t, err)

	_, err = env.service.ConfirmPayment(context.Background(), "merchant-1", order.OrderID)
	assertCode(t, err, apperrors.CodeInsufficientBalance)

	// Confirmation itself stuck; only the transfer failed.
	current, err := env.service.Get("user-1", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusPaymentConfirmed, current.Status)
}

func TestRetryTransferRequiresPaymentConfirmed(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")

	order := env.createOrder(t, "user-1")
	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)

	_, err = env.service.RetryTransfer(context.Background(), "merchant-1", order.OrderID)
	assertCode(t, err, apperrors.CodeInvalidState)
	assert.Equal(t, 0, env.executor.calls)
}

func TestRetryTransferRunsExecutor(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")
	env.executor.err = apperrors.New(apperrors.CodeInsufficientBalance, "insufficient merchant balance")

	order := env.createOrder(t, "user-1")
	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)
	_, err = env.service.SubmitPayment("user-1", order.OrderID, "UPI-REF-1")
	require.NoError(t, err)
	_, err = env.service.ConfirmPayment(context.Background(), "merchant-1", order.OrderID)
	require.Error(t, err)

	env.executor.err = nil
	result, err := env.service.RetryTransfer(context.Background(), "merchant-1", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, result.OrderID)
	assert.Equal(t, 2, env.executor.calls)
}

func TestCancelPendingUnclaimed(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")

	order := env.createOrder(t, "user-1")

	cancelled, err := env.service.Cancel("user-1", order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, types.OrderStatusCancelled, cancelled.Status)
}

func TestCancelRejectedAfterClaim(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")

	order := env.createOrder(t, "user-1")
	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)

	_, err = env.service.Cancel("user-1", order.OrderID)
	assertCode(t, err, apperrors.CodeInvalidState)
}

func TestCancelOwnerOnly(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedUser(t, "user-2")

	order := env.createOrder(t, "user-1")

	_, err := env.service.Cancel("user-2", order.OrderID)
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestCreateRejectsNonPositiveAmounts(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")

	_, err := env.service.Create("user-1", CreateInput{
		Kind:       string(types.OrderKindOnramp),
		FiatAmount: decimal.NewFromInt(-900),
		USDCAmount: decimal.NewFromInt(10),
	})
	assertCode(t, err, apperrors.CodeValidation)

	_, err = env.service.Create("user-1", CreateInput{
		Kind:       string(types.OrderKindOnramp),
		FiatAmount: decimal.NewFromInt(900),
		USDCAmount: decimal.Zero,
	})
	assertCode(t, err, apperrors.CodeValidation)
}

func TestCreateDefaultsWalletFromProfile(t *testing.T) {
	env := newOrderEnv(t)
	user := env.seedUser(t, "user-1")

	order := env.createOrder(t, "user-1")
	assert.Equal(t, user.WalletAddress, order.UserWalletAddress)
}

func TestGetVisibility(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedUser(t, "user-2")
	env.seedMerchant(t, "merchant-1")
	env.seedMerchant(t, "merchant-2")
	admin := env.seedUser(t, "admin-1")
	require.NoError(t, env.db.Model(&types.User{}).
		Where("user_id = ?", admin.UserID).
		Update("role", types.RoleAdmin).Error)

	order := env.createOrder(t, "user-1")
	_, err := env.service.Accept(context.Background(), "merchant-1", order.OrderID, "")
	require.NoError(t, err)

	_, err = env.service.Get("user-1", order.OrderID)
	assert.NoError(t, err)
	_, err = env.service.Get("merchant-1", order.OrderID)
	assert.NoError(t, err)
	_, err = env.service.Get("admin-1", order.OrderID)
	assert.NoError(t, err)

	_, err = env.service.Get("user-2", order.OrderID)
	assertCode(t, err, apperrors.CodeUnauthorized)
	_, err = env.service.Get("merchant-2", order.OrderID)
	assertCode(t, err, apperrors.CodeUnauthorized)
}

func TestGetUnknownOrder(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")

	_, err := env.service.Get("user-1", "ORD_missing")
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestMerchantQueueSplitsAvailableAndAssigned(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedMerchant(t, "merchant-1")
	env.seedMerchant(t, "merchant-2")

	open := env.createOrder(t, "user-1")
	claimed := env.createOrder(t, "user-1")
	other := env.createOrder(t, "user-1")

	_, err := env.service.Accept(context.Background(), "merchant-1", claimed.OrderID, "")
	require.NoError(t, err)
	_, err = env.service.Accept(context.Background(), "merchant-2", other.OrderID, "")
	require.NoError(t, err)

	queue, err := env.service.ListForMerchant("merchant-1")
	require.NoError(t, err)

	require.Len(t, queue.Available, 1)
	assert.Equal(t, open.OrderID, queue.Available[0].OrderID)
	require.Len(t, queue.Assigned, 1)
	assert.Equal(t, claimed.OrderID, queue.Assigned[0].OrderID)
}

func TestListMineReturnsOwnOrdersOnly(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	env.seedUser(t, "user-2")

	mine := env.createOrder(t, "user-1")
	env.createOrder(t, "user-2")

	list, err := env.service.ListMine("user-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.OrderID, list[0].OrderID)
}

func TestClaimPendingConditionalWrite(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	order := env.createOrder(t, "user-1")

	db := NewDatabase(env.db)

	claimed, err := db.ClaimPending(order.OrderID, "MER_a", "a@upi", time.Now())
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = db.ClaimPending(order.OrderID, "MER_b", "b@upi", time.Now())
	require.NoError(t, err)
	assert.False(t, claimed)

	current, err := db.GetOrder(order.OrderID)
	require.NoError(t, err)
	require.NotNil(t, current.MerchantID)
	assert.Equal(t, "MER_a", *current.MerchantID)
}

func TestAdvanceStatusGuardsOnCurrentState(t *testing.T) {
	env := newOrderEnv(t)
	env.seedUser(t, "user-1")
	order := env.createOrder(t, "user-1")

	db := NewDatabase(env.db)

	advanced, err := db.AdvanceStatus(order.OrderID, types.OrderStatusAccepted, types.OrderStatusPaymentSubmitted, nil)
	require.NoError(t, err)
	assert.False(t, advanced, "pending order must not advance from accepted")

	advanced, err = db.AdvanceStatus(order.OrderID, types.OrderStatusPending, types.OrderStatusCancelled, nil)
	require.NoError(t, err)
	assert.True(t, advanced)
}
