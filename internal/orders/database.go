package orders

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

func (d *Database) CreateOrder(order *types.Order) error {
	return d.db.Create(order).Error
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

func (d *Database) ListByOwner(userID string) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

func (d *Database) ListByMerchant(merchantID string) ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Where("merchant_id = ?", merchantID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

func (d *Database) ListUnassignedPending() ([]types.Order, error) {
	var orders []types.Order
	err := d.db.Where("status = ? AND merchant_id IS NULL", types.OrderStatusPending).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// ClaimPending atomically assigns a pending, unassigned order to a merchant
// and moves it to accepted. The WHERE clause is the race arbiter: when two
// merchants claim concurrently, exactly one update matches a row.
func (d *Database) ClaimPending(orderID, merchantID, payoutUPI string, acceptedAt time.Time) (bool, error) {
	res := d.db.Model(&types.Order{}).
		Where("order_id = ? AND status = ? AND merchant_id IS NULL", orderID, types.OrderStatusPending).
		Updates(map[string]interface{}{
			"merchant_id":         merchantID,
			"status":              types.OrderStatusAccepted,
			"accepted_at":         acceptedAt,
			"merchant_payout_upi": payoutUPI,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AdvanceStatus moves an order from one status to the next, applying any
// extra field updates in the same statement. Guard evaluation from a prior
// read is advisory only; this conditional write is the enforcement.
func (d *Database) AdvanceStatus(orderID string, from, to types.OrderStatus, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to

	res := d.db.Model(&types.Order{}).
		Where("order_id = ? AND status = ?", orderID, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelPending cancels an order that is still pending and unclaimed.
func (d *Database) CancelPending(orderID string) (bool, error) {
	res := d.db.Model(&types.Order{}).
		Where("order_id = ? AND status = ? AND merchant_id IS NULL", orderID, types.OrderStatusPending).
		Update("status", types.OrderStatusCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
