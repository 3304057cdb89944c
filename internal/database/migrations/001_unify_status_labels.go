package migrations

import (
	"github.com/orrange/orrange-api/internal/types"
	"gorm.io/gorm"
)

// UnifyStatusLabels rewrites the two historical status vocabularies onto the
// canonical one. Older deployments wrote merchant_accepted / payment_sent for
// the same semantic states.
func UnifyStatusLabels(db *gorm.DB) error {
	if err := db.AutoMigrate(&types.Order{}); err != nil {
		return err
	}

	if err := db.Model(&types.Order{}).
		Where("status = ?", "merchant_accepted").
		Update("status", types.OrderStatusAccepted).Error; err != nil {
		return err
	}

	return db.Model(&types.Order{}).
		Where("status = ?", "payment_sent").
		Update("status", types.OrderStatusPaymentSubmitted).Error
}
