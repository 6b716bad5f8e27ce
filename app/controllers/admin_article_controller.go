package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sujit-baniya/flash"

	"github.com/quillhaven/quillhaven/app/models"
	"github.com/quillhaven/quillhaven/app/repository"
	"github.com/quillhaven/quillhaven/internal/pkg/constants"
	"github.com/quillhaven/quillhaven/internal/pkg/usercontext"
)

const adminArticlesPerPage = 25

// HandleAdminArticles renders the article management list.
func HandleAdminArticles(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * adminArticlesPerPage

	repo := repository.GetGlobalFactory().GetArticleRepository()
	articles, err := repo.ListAll(offset, adminArticlesPerPage)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not load articles"}).Redirect("/admin")
	}
	total, _ := repo.Count()

	return c.Render("admin/articles", pageData(c, "Manage Articles", fiber.Map{
		"Articles": articles,
		"Page":     page,
		"Total":    total,
	}), "layouts/main")
}

// HandleAdminArticleNew renders the article creation form.
func HandleAdminArticleNew(c *fiber.Ctx) error {
	return c.Render("admin/article_create", pageData(c, "New Article", nil), "layouts/main")
}

// HandleAdminArticleCreate stores a new article from the creation form.
func HandleAdminArticleCreate(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	published := c.FormValue("published") == "on" || c.FormValue("published") == "true"
	article := &models.Article{
		UUID:       uuid.New().String(),
		Title:      c.FormValue("title"),
		Body:       c.FormValue("body"),
		AccessTier: c.FormValue("access_tier", "basic"),
		ImageURL:   c.FormValue("image_url"),
		Published:  published,
		UserID:     userCtx.UserID,
	}

	if err := article.Validate(); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Please check the article fields"}).Redirect("/admin/articles/new")
	}

	repo := repository.GetGlobalFactory().GetArticleRepository()
	if err := repo.Create(article); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not save the article"}).Redirect("/admin/articles/new")
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Article created"}).Redirect(constants.AdminArticlesRoute)
}

// HandleAdminArticleDelete removes an article.
func HandleAdminArticleDelete(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Invalid article id"}).Redirect(constants.AdminArticlesRoute)
	}

	repo := repository.GetGlobalFactory().GetArticleRepository()
	if err := repo.Delete(id); err != nil {
		return flash.WithError(c, fiber.Map{"type": "error", "message": "Could not delete the article"}).Redirect(constants.AdminArticlesRoute)
	}

	return flash.WithSuccess(c, fiber.Map{"type": "success", "message": "Article deleted"}).Redirect(constants.AdminArticlesRoute)
}

// HandleAdminIndex renders the admin dashboard.
func HandleAdminIndex(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory()
	articleCount, _ := repo.GetArticleRepository().Count()
	publishedCount, _ := repo.GetArticleRepository().CountPublished()
	userCount, _ := repo.GetUserRepository().Count()

	return c.Render("admin/index", pageData(c, "Admin", fiber.Map{
		"ArticleCount":   articleCount,
		"PublishedCount": publishedCount,
		"UserCount":      userCount,
	}), "layouts/main")
}
