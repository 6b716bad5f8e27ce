package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/quillhaven/quillhaven/app/models"
	"github.com/quillhaven/quillhaven/app/repository"
	"github.com/quillhaven/quillhaven/internal/pkg/entitlements"
	"github.com/quillhaven/quillhaven/internal/pkg/metrics/counter"
	"github.com/quillhaven/quillhaven/internal/pkg/usercontext"
)

const articlesPerPage = 20

// teaserLength bounds the preview shown for locked articles.
const teaserLength = 300

func articleTeaser(body string) string {
	if len(body) <= teaserLength {
		return body
	}
	cut := body[:teaserLength]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return cut + "…"
}

// articleView is the gated representation of an article for a given reader.
type articleView struct {
	UUID       string `json:"uuid"`
	Title      string `json:"title"`
	AccessTier string `json:"access_tier"`
	Locked     bool   `json:"locked"`
	Body       string `json:"body,omitempty"`
	Teaser     string `json:"teaser,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func buildArticleView(article *models.Article, readerTier entitlements.Tier) articleView {
	view := articleView{
		UUID:       article.UUID,
		Title:      article.Title,
		AccessTier: article.AccessTier,
		ImageURL:   article.ImageURL,
		CreatedAt:  article.CreatedAt.Format("2006-01-02"),
	}
	if entitlements.HasAccess(readerTier, entitlements.ParseTier(article.AccessTier)) {
		view.Body = article.Body
	} else {
		view.Locked = true
		view.Teaser = articleTeaser(article.Body)
	}
	return view
}

// HandleArticles renders the published article list.
func HandleArticles(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * articlesPerPage

	repo := repository.GetGlobalFactory().GetArticleRepository()
	articles, err := repo.ListPublished(offset, articlesPerPage)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).Render("error", pageData(c, "Error", fiber.Map{
			"Message": "Could not load articles",
		}), "layouts/main")
	}

	userCtx := usercontext.GetUserContext(c)
	readerTier := entitlements.ParseTier(userCtx.Tier)
	views := make([]articleView, 0, len(articles))
	for i := range articles {
		views = append(views, buildArticleView(&articles[i], readerTier))
	}

	return c.Render("articles/index", pageData(c, "Articles", fiber.Map{
		"Articles": views,
		"Page":     page,
	}), "layouts/main")
}

// HandleArticleView renders a single article, gated by the reader's tier.
func HandleArticleView(c *fiber.Ctx) error {
	uuid := c.Params("uuid")

	repo := repository.GetGlobalFactory().GetArticleRepository()
	article, err := repo.GetByUUID(uuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).Render("error", pageData(c, "Not Found", fiber.Map{
				"Message": "This article does not exist",
			}), "layouts/main")
		}
		return c.Status(fiber.StatusInternalServerError).Render("error", pageData(c, "Error", fiber.Map{
			"Message": "Could not load article",
		}), "layouts/main")
	}
	if !article.Published {
		return c.Status(fiber.StatusNotFound).Render("error", pageData(c, "Not Found", fiber.Map{
			"Message": "This article does not exist",
		}), "layouts/main")
	}

	_ = counter.AddArticleView(article.ID)

	userCtx := usercontext.GetUserContext(c)
	view := buildArticleView(article, entitlements.ParseTier(userCtx.Tier))

	return c.Render("articles/show", pageData(c, article.Title, fiber.Map{
		"Article": view,
	}), "layouts/main")
}

// HandleAPIArticles returns the published article list as JSON, bodies gated
// per the caller's tier.
func HandleAPIArticles(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * articlesPerPage

	repo := repository.GetGlobalFactory().GetArticleRepository()
	articles, err := repo.ListPublished(offset, articlesPerPage)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "list_failed"})
	}

	userCtx := usercontext.GetUserContext(c)
	readerTier := entitlements.ParseTier(userCtx.Tier)
	views := make([]articleView, 0, len(articles))
	for i := range articles {
		views = append(views, buildArticleView(&articles[i], readerTier))
	}

	return c.JSON(fiber.Map{"articles": views, "page": page})
}

// HandleAPIArticleView returns one article as JSON, gated per the caller's tier.
func HandleAPIArticleView(c *fiber.Ctx) error {
	repo := repository.GetGlobalFactory().GetArticleRepository()
	article, err := repo.GetByUUID(c.Params("uuid"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup_failed"})
	}
	if !article.Published {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}

	_ = counter.AddArticleView(article.ID)

	userCtx := usercontext.GetUserContext(c)
	return c.JSON(buildArticleView(article, entitlements.ParseTier(userCtx.Tier)))
}
