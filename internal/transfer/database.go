package transfer

import (
	"errors"
	"time"

	"github.com/orrange/orrange-api/internal/types"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) GetOrder(orderID string) (*types.Order, error) {
	var order types.Order
	if err := d.db.Where("order_id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
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

// SetServerSigningEnabled flips the merchant's one-shot signing flag. It is
// never reset.
func (d *Database) SetServerSigningEnabled(merchantID string) error {
	return d.db.Model(&types.Merchant{}).
		Where("merchant_id = ?", merchantID).
		Update("server_signing_enabled", true).Error
}

// CompleteTransfer writes the terminal state in one conditional update:
// status, tx hash, and timestamps advance together or not at all, so the
// transfer can never be recorded against an order that already moved on.
func (d *Database) CompleteTransfer(orderID, txHash string, completedAt time.Time) (bool, error) {
	res := d.db.Model(&types.Order{}).
		Where("order_id = ? AND status = ?", orderID, types.OrderStatusPaymentConfirmed).
		Updates(map[string]interface{}{
			"status":         types.OrderStatusCompleted,
			"tx_hash":        txHash,
			"transferred_at": completedAt,
			"completed_at":   completedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// RevertToPaymentConfirmed defensively parks the order back at
// payment_confirmed after a failed attempt. It never touches a completed
// order, so a retry racing a late success cannot reopen a terminal state.
func (d *Database) RevertToPaymentConfirmed(orderID string) error {
	return d.db.Model(&types.Order{}).
		Where("order_id = ? AND status NOT IN ?", orderID, []types.OrderStatus{
			types.OrderStatusCompleted,
			types.OrderStatusCancelled,
			types.OrderStatusExpired,
		}).
		Update("status", types.OrderStatusPaymentConfirmed).Error
}
