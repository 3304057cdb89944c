package transfer

import (
	"context"

	"github.com/orrange/orrange-api/internal/custody"
	"github.com/orrange/orrange-api/internal/types"
	"github.com/orrange/orrange-api/pkg/apperrors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Bootstrap grants the backend signing authority over a merchant's custodial
// wallet, at most once per merchant. The persisted ServerSigningEnabled flag
// is the memo: once true, no further authority calls are made. The flag only
// flips after the authority confirms, so a failed registration stays
// retryable.
type Bootstrap struct {
	db        *Database
	authority custody.SigningAuthority
}

func NewBootstrap(gormDB *gorm.DB, authority custody.SigningAuthority) *Bootstrap {
	return &Bootstrap{
		db:        NewDatabase(gormDB),
		authority: authority,
	}
}

// EnsureServerSigningEnabled runs lazily on the merchant's first acceptance
// flow rather than at onboarding, so merchants whose wallet sync has not
// finished yet fail loudly with NOT_CONFIGURED instead of holding orders
// they cannot fulfill.
func (b *Bootstrap) EnsureServerSigningEnabled(ctx context.Context, merchantUserID string) (*types.BootstrapResult, error) {
	logger := log.With().
		Str("user_id", merchantUserID).
		Str("service", "signer_bootstrap").
		Logger()

	user, err := b.db.GetUserByID(merchantUserID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load user")
	}
	if user == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	if user.Role != types.RoleMerchant {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "user is not a merchant")
	}

	merchant, err := b.db.GetMerchantByUserID(merchantUserID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load merchant record")
	}
	if merchant == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "merchant record not found")
	}

	if merchant.ServerSigningEnabled {
		return &types.BootstrapResult{AlreadySetup: true}, nil
	}

	if user.WalletID == "" {
		return nil, apperrors.New(apperrors.CodeNotConfigured, "wallet not synced yet, retry after wallet sync completes")
	}

	logger.Info().Str("wallet_id", user.WalletID).Msg("registering server signer")

	if err := b.authority.RegisterSigner(ctx, user.WalletID); err != nil {
		logger.Error().Err(err).Msg("signer registration failed")
		return nil, apperrors.Wrap(apperrors.CodeNotConfigured, err, "signer registration failed")
	}

	if err := b.db.SetServerSigningEnabled(merchant.MerchantID); err != nil {
		// The authority call succeeded; the flag write is what memoizes it.
		// Surface the failure so the caller retries, which will hit the
		// authority again but that call is idempotent on the provider side.
		logger.Error().Err(err).Msg("failed to persist signing flag")
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to record signer registration")
	}

	logger.Info().Str("merchant_id", merchant.MerchantID).Msg("server signing enabled")

	return &types.BootstrapResult{AlreadySetup: false}, nil
}
