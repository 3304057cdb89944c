package users

import (
	"errors"

	"github.com/orrange/orrange-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) CreateUser(user *types.User) error {
	return d.db.Create(user).Error
}

func (d *Database) GetUserByIdentity(identityID string) (*types.User, error) {
	var user types.User
	if err := d.db.Where("identity_id = ?", identityID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (d *Database) GetUserByID(userID string) (*types.User, error) {
	var user types.User
	if err := d.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// BindWallet records the custodial wallet for a user that does not have one
// yet. The empty-string guards make the binding first-write-wins.
func (d *Database) BindWallet(userID, walletAddress, walletID string) error {
	updates := map[string]interface{}{}
	if walletAddress != "" {
		updates["wallet_address"] = walletAddress
	}
	if walletID != "" {
		updates["wallet_id"] = walletID
	}
	if len(updates) == 0 {
		return nil
	}
	return d.db.Model(&types.User{}).
		Where("user_id = ? AND (wallet_address = '' OR wallet_id = '')", userID).
		Updates(updates).Error
}

func (d *Database) SetRole(userID string, role types.Role) error {
	return d.db.Model(&types.User{}).
		Where("user_id = ?", userID).
		Update("role", role).Error
}

func (d *Database) CreateMerchant(merchant *types.Merchant) error {
	return d.db.Create(merchant).Error
}

func (d *Database) GetMerchantByUserID(userID string) (*types.Merchant, error) {
	var merchant types.Merchant
	if err := d.db.Where("user_id = ?", userID).First(&merchant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}

func (d *Database) GetMerchantByID(merchantID string) (*types.Merchant, error) {
	var merchant types.Merchant
	if err := d.db.Where("merchant_id = ?", merchantID).First(&merchant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &merchant, nil
}
