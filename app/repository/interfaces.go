package repository

import (
	"github.com/quillhaven/quillhaven/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// ArticleRepository defines the interface for article-related database operations
type ArticleRepository interface {
	Create(article *models.Article) error
	GetByID(id uint64) (*models.Article, error)
	GetByUUID(uuid string) (*models.Article, error)
	Update(article *models.Article) error
	Delete(id uint64) error
	ListPublished(offset, limit int) ([]models.Article, error)
	ListAll(offset, limit int) ([]models.Article, error)
	Count() (int64, error)
	CountPublished() (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Article ArticleRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Article: NewArticleRepository(db),
	}
}
