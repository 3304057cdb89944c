package users

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/orrange/orrange-api/internal/types"
	"github.com/orrange/orrange-api/pkg/apperrors"
)

func setupUsersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&types.User{}, &types.Merchant{}))
	return db
}

func seedAdmin(t *testing.T, db *gorm.DB, identityID string) *types.User {
	t.Helper()

	admin := &types.User{
		UserID:     "USR_" + uuid.New().String(),
		IdentityID: identityID,
		Email:      identityID + "@example.com",
		Role:       types.RoleAdmin,
	}
	require.NoError(t, db.Create(admin).Error)
	return admin
}

func TestSyncCreatesUser(t *testing.T) {
	db := setupUsersTestDB(t)
	service := NewService(db)

	user, err := service.Sync("identity-1", SyncInput{
		Email:         "alice@example.com",
		WalletAddress: "0xabc0000000000000000000000000000000000001",
		WalletID:      "wallet-1",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(user.UserID, "USR_"))
	assert.Equal(t, types.RoleUser, user.Role)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", user.WalletAddress)
	assert.Equal(t, "wallet-1", user.WalletID)
}

func TestSyncMerchantSignupCreatesMerchantRecord(t *testing.T) {
	db := setupUsersTestDB(t)
	service := NewService(db)

	user, err := service.Sync("identity-1", SyncInput{
		Email: "shop@example.com",
		Role:  string(types.RoleMerchant),
	})
	require.NoError(t, err)
	assert.Equal(t, types.RoleMerchant, user.Role)

	merchant, err := NewDatabase(db).GetMerchantByUserID(user.UserID)
	require.NoError(t, err)
	require.NotNil(t, merchant)
	assert.True(t, merchant.IsActive)
	assert.False(t, merchant.ServerSigningEnabled)
}

func TestSyncWalletBindingFirstWriteWins(t *testing.T) {
	db := setupUsersTestDB(t)
	service := NewService(db)

	_, err := service.Sync("identity-1", SyncInput{Email: "alice@example.com"})
	require.NoError(t, err)

	// First binding lands.
	user, err := service.Sync("identity-1", SyncInput{
		Email:         "alice@example.com",
		WalletAddress: "0xabc0000000000000000000000000000000000001",
		WalletID:      "wallet-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", user.WalletID)

	// A later sync cannot rebind the wallet.
	user, err = service.Sync("identity-1", SyncInput{
		Email:         "alice@example.com",
		WalletAddress: "0xdef0000000000000000000000000000000000002",
		WalletID:      "wallet-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", user.WalletAddress)
	assert.Equal(t, "wallet-1", user.WalletID)
}

func TestSyncRepeatDoesNotDuplicate(t *testing.T) {
	db := setupUsersTestDB(t)
	service := NewService(db)

	first, err := service.Sync("identity-1", SyncInput{Email: "alice@example.com"})
	require.NoError(t, err)
	second, err := service.Sync("identity-1", SyncInput{Email: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)

	var count int64
	require.NoError(t, db.Model(&types.User{}).Where("identity_id = ?", "identity-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMeIncludesMerchantID(t *testing.T) {
	db := setupUsersTestDB(t)
	service := NewService(db)

	_, err := service.Sync("identity-1", SyncInput{
		Email: "shop@example.com",
		Role:  string(types.RoleMerchant),
	})
	require.NoError(t, err)

	profile, err := service.Me("identity-1")
	require.NoError(t, err)
	require.NotNil(t, profile.MerchantID)
	assert.True(t, strings.HasPrefix(*profile.MerchantID, "MER_"))
}

func TestMeUnsyncedIdentity(t *testing.T) {
	db := setupUsersTestDB(t)
	service := NewService(db)

	_, err := service.Me("identity-unknown")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestPromoteToMerchant(t *testing.T) {
	db := setupUsersTestDB(t)
	service := NewService(db)
	seedAdmin(t, db, "admin-1")

	target, err := service.Sync("identity-1", SyncInput{Email: "bob@example.com"})
	require.NoError(t, err)

	merchant, err := service.PromoteToMerchant("admin-1", target.UserID, "bob@upi")
	require.NoError(t, err)
	assert.Equal(t, "bob@upi", merchant.UPIID)
	assert.True(t, merchant.IsActive)

	promoted, err := service.ResolveUser("identity-1")
	require.NoError(t, err)
	assert.Equal(t, types.RoleMerchant, promoted.Role)
}

func TestPromoteRequiresAdmin(t *testing.T) {
	db := setupUsersTestDB(t)
	service := NewService(db)

	_, err := service.Sync("identity-1", SyncInput{Email: "mallory@example.com"})
	require.NoError(t, err)
	target, err := service.Sync("identity-2", SyncInput{Email: "bob@example.com"})
	require.NoError(t, err)

	_, err = service.PromoteToMerchant("identity-1", target.UserID, "bob@upi")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnauthorized, apperrors.CodeOf(err))
}

func TestPromoteUnknownTarget(t *testing.T) {
	db := setupUsersTestDB(t)
	service := NewService(db)
	seedAdmin(t, db, "admin-1")

	_, err := service.PromoteToMerchant("admin-1", "USR_missing", "x@upi")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeNotFound, apperrors.CodeOf(err))
}

func TestResolveMerchantRequiresRole(t *testing.T) {
	db := setupUsersTestDB(t)
	service := NewService(db)

	_, err := service.Sync("identity-1", SyncInput{Email: "alice@example.com"})
	require.NoError(t, err)

	_, _, err = service.ResolveMerchant("identity-1")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeUnauthorized, apperrors.CodeOf(err))
}
