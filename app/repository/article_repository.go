package repository

import (
	"github.com/quillhaven/quillhaven/app/models"
	"gorm.io/gorm"
)

// articleRepository implements the ArticleRepository interface
type articleRepository struct {
	db *gorm.DB
}

// NewArticleRepository creates a new article repository instance
func NewArticleRepository(db *gorm.DB) ArticleRepository {
	return &articleRepository{db: db}
}

// Create creates a new article in the database
func (r *articleRepository) Create(article *models.Article) error {
	return r.db.Create(article).Error
}

// GetByID retrieves an article by its ID
func (r *articleRepository) GetByID(id uint64) (*models.Article, error) {
	var article models.Article
	err := r.db.First(&article, id).Error
	if err != nil {
		return nil, err
	}
	return &article, nil
}

// GetByUUID retrieves an article by its UUID
func (r *articleRepository) GetByUUID(uuid string) (*models.Article, error) {
	var article models.Article
	err := r.db.Where("uuid = ?", uuid).First(&article).Error
	if err != nil {
		return nil, err
	}
	return &article, nil
}

// Update updates an existing article in the database
func (r *articleRepository) Update(article *models.Article) error {
	return r.db.Save(article).Error
}

// Delete removes an article by its ID
func (r *articleRepository) Delete(id uint64) error {
	return r.db.Delete(&models.Article{}, id).Error
}

// ListPublished retrieves a paginated list of published articles, newest first
func (r *articleRepository) ListPublished(offset, limit int) ([]models.Article, error) {
	var articles []models.Article
	err := r.db.Where("published = ?", true).
		Offset(offset).Limit(limit).Order("created_at DESC").Find(&articles).Error
	return articles, err
}

// ListAll retrieves a paginated list of all articles, newest first
func (r *articleRepository) ListAll(offset, limit int) ([]models.Article, error) {
	var articles []models.Article
	err := r.db.Offset(offset).Limit(limit).Order("created_at DESC").Find(&articles).Error
	return articles, err
}

// Count returns the total number of articles
func (r *articleRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Article{}).Count(&count).Error
	return count, err
}

// CountPublished returns the number of published articles
func (r *articleRepository) CountPublished() (int64, error) {
	var count int64
	err := r.db.Model(&models.Article{}).Where("published = ?", true).Count(&count).Error
	return count, err
}
