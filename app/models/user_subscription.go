package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusUnpaid   = "unpaid"
)

// UserSubscription is the local source-of-truth subscription record, one per
// user. Tier and Status are the authoritative fields; SnapshotJSON caches the
// last-seen raw provider subscription state and is advisory only.
type UserSubscription struct {
	ID                     uint           `gorm:"primaryKey" json:"id"`
	UserID                 uint           `gorm:"uniqueIndex;not null" json:"user_id"`
	Tier                   string         `gorm:"type:varchar(50);not null;default:'free';index" json:"tier"`
	Status                 string         `gorm:"type:varchar(32);default:''" json:"status"`
	PeriodStart            *time.Time     `gorm:"type:timestamp;default:null" json:"period_start,omitempty"`
	PeriodEnd              *time.Time     `gorm:"type:timestamp;default:null" json:"period_end,omitempty"`
	ProviderCustomerID     string         `gorm:"type:varchar(191);default:'';index" json:"provider_customer_id"`
	ProviderSubscriptionID string         `gorm:"type:varchar(191);default:'';index" json:"provider_subscription_id"`
	SnapshotJSON           string         `gorm:"type:text" json:"-"`
	CreatedAt              time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt              gorm.DeletedAt `gorm:"index" json:"-"`
}

// GetOrCreateUserSubscription returns the user's subscription record,
// creating the implicit free-tier record if none exists yet.
func GetOrCreateUserSubscription(db *gorm.DB, userID uint) (*UserSubscription, error) {
	var sub UserSubscription
	if err := db.Where("user_id = ?", userID).First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			sub = UserSubscription{UserID: userID, Tier: "free"}
			if err := db.Create(&sub).Error; err != nil {
				return nil, err
			}
			return &sub, nil
		}
		return nil, err
	}
	return &sub, nil
}
