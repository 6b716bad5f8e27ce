package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/quillhaven/quillhaven/internal/pkg/usercontext"
)

func isLoggedIn(c *fiber.Ctx) bool {
	var fromProtected bool
	if protectedValue := c.Locals(FROM_PROTECTED); protectedValue != nil {
		fromProtected = protectedValue.(bool)
	}

	return fromProtected
}

// ExtractUserEmail gets the email from Locals (set by middleware)
func ExtractUserEmail(c *fiber.Ctx) string {
	if emailValue := c.Locals(USER_EMAIL); emailValue != nil {
		if email, ok := emailValue.(string); ok {
			return email
		}
	}

	return ""
}

// pageData assembles the locals every rendered page needs.
func pageData(c *fiber.Ctx, title string, extra fiber.Map) fiber.Map {
	userCtx := usercontext.GetUserContext(c)
	data := fiber.Map{
		"Title":      title,
		"IsLoggedIn": userCtx.IsLoggedIn,
		"IsAdmin":    userCtx.IsAdmin,
		"UserEmail":  userCtx.Email,
		"UserTier":   userCtx.Tier,
		"Flash":      flash.Get(c),
	}
	data["CSRFToken"] = ""
	if token, ok := c.Locals("csrf").(string); ok {
		data["CSRFToken"] = token
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}
