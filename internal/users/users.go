package users

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/orrange/orrange-api/internal/types"
	"github.com/orrange/orrange-api/pkg/apperrors"
	"github.com/orrange/orrange-api/pkg/middleware"
	"github.com/orrange/orrange-api/pkg/response"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Service is the user/merchant directory. Roles live in the users table and
// every privileged operation re-reads them here; nothing trusts a
// client-supplied role.
type Service struct {
	db *Database
}

func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// SyncInput is the first-sign-in payload. Role may only choose between user
// and merchant at signup; admin is never client-assignable.
type SyncInput struct {
	Email         string `json:"email" binding:"required,email"`
	Role          string `json:"role" binding:"omitempty,oneof=user merchant"`
	WalletAddress string `json:"wallet_address"`
	WalletID      string `json:"wallet_id"`
}

// Sync upserts the caller's user row. The first call creates it; later calls
// only bind wallet fields that are still empty, so the wallet reference is
// resolved once and then immutable.
func (s *Service) Sync(identityID string, input SyncInput) (*types.User, error) {
	existing, err := s.db.GetUserByIdentity(identityID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load user")
	}

	if existing != nil {
		if err := s.db.BindWallet(existing.UserID, input.WalletAddress, input.WalletID); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to bind wallet")
		}
		return s.db.GetUserByID(existing.UserID)
	}

	role := types.RoleUser
	if input.Role == string(types.RoleMerchant) {
		role = types.RoleMerchant
	}

	user := &types.User{
		UserID:        "USR_" + uuid.New().String(),
		IdentityID:    identityID,
		Email:         input.Email,
		Role:          role,
		WalletAddress: input.WalletAddress,
		WalletID:      input.WalletID,
	}
	if err := s.db.CreateUser(user); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to create user")
	}

	if role == types.RoleMerchant {
		merchant := &types.Merchant{
			MerchantID: "MER_" + uuid.New().String(),
			UserID:     user.UserID,
			IsActive:   true,
		}
		if err := s.db.CreateMerchant(merchant); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to create merchant record")
		}
	}

	log.Info().
		Str("user_id", user.UserID).
		Str("role", string(user.Role)).
		Msg("user synced")

	return user, nil
}

// Me returns the caller's profile, including the merchant id for merchants.
func (s *Service) Me(identityID string) (*types.Profile, error) {
	user, err := s.ResolveUser(identityID)
	if err != nil {
		return nil, err
	}

	profile := &types.Profile{User: *user}
	if user.Role == types.RoleMerchant {
		merchant, err := s.db.GetMerchantByUserID(user.UserID)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load merchant record")
		}
		if merchant != nil {
			profile.MerchantID = &merchant.MerchantID
		}
	}
	return profile, nil
}

// PromoteToMerchant is the administrative role change: sets role=merchant and
// creates the merchant row with its payout UPI handle.
func (s *Service) PromoteToMerchant(adminIdentityID, targetUserID, upiID string) (*types.Merchant, error) {
	admin, err := s.ResolveUser(adminIdentityID)
	if err != nil {
		return nil, err
	}
	if admin.Role != types.RoleAdmin {
		return nil, apperrors.New(apperrors.CodeUnauthorized, "admin role required")
	}

	target, err := s.db.GetUserByID(targetUserID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load user")
	}
	if target == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}

	merchant, err := s.db.GetMerchantByUserID(targetUserID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load merchant record")
	}
	if merchant == nil {
		merchant = &types.Merchant{
			MerchantID: "MER_" + uuid.New().String(),
			UserID:     targetUserID,
			UPIID:      upiID,
			IsActive:   true,
		}
		if err := s.db.CreateMerchant(merchant); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to create merchant record")
		}
	}
	if err := s.db.SetRole(targetUserID, types.RoleMerchant); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to update role")
	}

	log.Info().
		Str("user_id", targetUserID).
		Str("merchant_id", merchant.MerchantID).
		Str("promoted_by", admin.UserID).
		Msg("user promoted to merchant")

	return merchant, nil
}

// ResolveUser maps an authenticated identity to its user row.
func (s *Service) ResolveUser(identityID string) (*types.User, error) {
	user, err := s.db.GetUserByIdentity(identityID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load user")
	}
	if user == nil {
		return nil, apperrors.New(apperrors.CodeNotFound, "user not found")
	}
	return user, nil
}

// ResolveMerchant resolves the identity and requires the merchant role plus
// an active merchant record.
func (s *Service) ResolveMerchant(identityID string) (*types.User, *types.Merchant, error) {
	user, err := s.ResolveUser(identityID)
	if err != nil {
		return nil, nil, err
	}
	if user.Role != types.RoleMerchant {
		return nil, nil, apperrors.New(apperrors.CodeUnauthorized, "merchant role required")
	}
	merchant, err := s.db.GetMerchantByUserID(user.UserID)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.CodeInternal, err, "failed to load merchant record")
	}
	if merchant == nil {
		return nil, nil, apperrors.New(apperrors.CodeNotFound, "merchant record not found")
	}
	return user, merchant, nil
}

// GinHandlers contains HTTP handlers for user directory endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SyncHandler handles POST requests syncing the caller's profile and wallet
func (h *GinHandlers) SyncHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID := middleware.IdentityID(c)
		if identityID == "" {
			response.Unauthorized(c, "Missing identity")
			return
		}

		var input SyncInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		user, err := h.service.Sync(identityID, input)
		response.Handle(c, user, err)
	}
}

// MeHandler handles GET requests for the caller's profile
func (h *GinHandlers) MeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID := middleware.IdentityID(c)
		if identityID == "" {
			response.Unauthorized(c, "Missing identity")
			return
		}

		profile, err := h.service.Me(identityID)
		response.Handle(c, profile, err)
	}
}

// PromoteHandler handles POST requests promoting a user to merchant
func (h *GinHandlers) PromoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		identityID := middleware.IdentityID(c)
		if identityID == "" {
			response.Unauthorized(c, "Missing identity")
			return
		}

		var request struct {
			UPIID string `json:"upi_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		merchant, err := h.service.PromoteToMerchant(identityID, c.Param("user_id"), request.UPIID)
		response.Handle(c, merchant, err)
	}
}
