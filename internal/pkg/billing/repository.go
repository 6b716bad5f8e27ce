package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quillhaven/quillhaven/app/models"
)

// Repository is the persistence boundary of the billing service. Lookup
// methods return (nil, nil) when no row matches; only real database failures
// surface as errors.
type Repository interface {
	GetUserByID(userID uint) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)

	GetRecordByUserID(userID uint) (*models.UserSubscription, error)
	GetRecordBySubscriptionID(subscriptionID string) (*models.UserSubscription, error)
	GetRecordByCustomerID(customerID string) (*models.UserSubscription, error)
	GetOrCreateRecord(userID uint) (*models.UserSubscription, error)
	SaveRecord(record *models.UserSubscription) error

	// CreateWebhookEvent inserts a dedup row keyed by the provider event id.
	// Returns false without error when the event was already recorded.
	CreateWebhookEvent(event *models.BillingWebhookEvent) (bool, error)
	MarkWebhookProcessed(providerEventID string, processingErr error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository wraps a gorm handle in the billing Repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByID(userID uint) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetRecordByUserID(userID uint) (*models.UserSubscription, error) {
	var record models.UserSubscription
	if err := r.db.Where("user_id = ?", userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) GetRecordBySubscriptionID(subscriptionID string) (*models.UserSubscription, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	var record models.UserSubscription
	if err := r.db.Where("provider_subscription_id = ?", subscriptionID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) GetRecordByCustomerID(customerID string) (*models.UserSubscription, error) {
	if customerID == "" {
		return nil, nil
	}
	var record models.UserSubscription
	if err := r.db.Where("provider_customer_id = ?", customerID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) GetOrCreateRecord(userID uint) (*models.UserSubscription, error) {
	return models.GetOrCreateUserSubscription(r.db, userID)
}

func (r *gormRepository) SaveRecord(record *models.UserSubscription) error {
	return r.db.Save(record).Error
}

func (r *gormRepository) CreateWebhookEvent(event *models.BillingWebhookEvent) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) MarkWebhookProcessed(providerEventID string, processingErr error) error {
	updates := map[string]interface{}{
		"processed_at": time.Now(),
	}
	if processingErr != nil {
		updates["processing_error"] = processingErr.Error()
	}
	return r.db.Model(&models.BillingWebhookEvent{}).
		Where("provider_event_id = ?", providerEventID).
		Updates(updates).Error
}
