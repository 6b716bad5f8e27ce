package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// Article represents a piece of gated content. AccessTier is the minimum
// subscription tier required to read the full body.
type Article struct {
	ID         uint64         `gorm:"primaryKey" json:"id"`
	UUID       string         `gorm:"uniqueIndex;type:varchar(36)" json:"uuid"`
	Title      string         `gorm:"type:varchar(255)" json:"title" validate:"required,min=3,max=255"`
	Body       string         `gorm:"type:text" json:"body" validate:"required"`
	AccessTier string         `gorm:"type:varchar(50);not null;default:'basic';index" json:"access_tier" validate:"oneof=free basic pro premium"`
	ImageURL   string         `gorm:"type:varchar(255);default:''" json:"image_url" validate:"max=255"`
	Published  bool           `gorm:"type:tinyint(1);default:0" json:"published"`
	ViewCount  uint64         `gorm:"default:0" json:"view_count"`
	UserID     uint           `gorm:"index" json:"user_id"`
	User       User           `gorm:"foreignKey:UserID" json:"user"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Article model
func (Article) TableName() string {
	return "articles"
}

func (a *Article) Validate() error {
	v := validator.New()

	return v.Struct(a)
}
