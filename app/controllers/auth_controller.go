package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/quillhaven/quillhaven/app/models"
	"github.com/quillhaven/quillhaven/internal/pkg/database"
	"github.com/quillhaven/quillhaven/internal/pkg/session"
)

const (
	AUTH_KEY       string = "authenticated"
	USER_ID        string = "user_id"
	USER_EMAIL     string = "user_email"
	USER_IS_ADMIN  string = "isAdmin"
	FROM_PROTECTED string = "fromProtected"
)

func HandleAuthLogin(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		var user models.User
		fm := fiber.Map{
			"type": "error",
		}

		// notice: in production you should not inform the user
		// with detailed messages about login failures
		result := database.GetDB().Where("email = ?", c.FormValue("email")).First(&user)
		if result.Error != nil {
			fm["message"] = "There is a problem with the login process"

			return flash.WithError(c, fm).Redirect("/login")
		}

		if !models.CheckPasswordHash(c.FormValue("password"), user.Password) {
			fm["message"] = "There is a problem with the login process"

			return flash.WithError(c, fm).Redirect("/login")
		}

		sess, err := session.GetSessionStore().Get(c)
		if err != nil {
			fm["message"] = fmt.Sprintf("something went wrong: %s", err)

			return flash.WithError(c, fm).Redirect("/login")
		}

		sess.Set(AUTH_KEY, true)
		sess.Set(USER_ID, user.ID)
		sess.Set(USER_EMAIL, user.Email)
		sess.Set(USER_IS_ADMIN, user.IsAdmin())

		if err := sess.Save(); err != nil {
			fm["message"] = fmt.Sprintf("something went wrong: %s", err)

			return flash.WithError(c, fm).Redirect("/login")
		}

		database.GetDB().Model(&user).Update("last_login_at", time.Now())

		// The tier is resolved fresh on the next request and cached in the
		// session from there.
		_ = session.SetSessionValue(c, "user_tier", "")

		fm = fiber.Map{
			"type":    "success",
			"message": "Welcome back!",
		}

		return flash.WithSuccess(c, fm).Redirect("/")
	}

	return c.Render("auth/login", pageData(c, "Login", nil), "layouts/main")
}

func HandleAuthLogout(c *fiber.Ctx) error {
	fm := fiber.Map{
		"type": "error",
	}

	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		fm["message"] = "logged out (no sess)"

		return flash.WithError(c, fm).Redirect("/login")
	}

	if err := sess.Destroy(); err != nil {
		fm["message"] = fmt.Sprintf("something went wrong: %s", err)

		return flash.WithError(c, fm).Redirect("/login")
	}

	fm = fiber.Map{
		"type":    "success",
		"message": "See you soon!",
	}

	c.Locals(FROM_PROTECTED, false)

	return flash.WithSuccess(c, fm).Redirect("/login")
}

func HandleAuthRegister(c *fiber.Ctx) error {
	if c.Method() == fiber.MethodPost {
		email := c.FormValue("email")
		password := c.FormValue("password")

		if len(password) < 8 {
			fm := fiber.Map{
				"type":    "error",
				"message": "Password must be at least 8 characters",
			}
			return flash.WithError(c, fm).Redirect("/register")
		}

		user, err := models.CreateUser(email, password)
		if err != nil {
			fm := fiber.Map{
				"type":    "error",
				"message": "Please check your input and try again",
			}
			return flash.WithError(c, fm).Redirect("/register")
		}

		db := database.GetDB()
		if err := db.Create(user).Error; err != nil {
			fm := fiber.Map{
				"type":    "error",
				"message": "Registration failed. The email may already be in use.",
			}
			return flash.WithError(c, fm).Redirect("/register")
		}

		// Every account starts on the free tier.
		if _, err := models.GetOrCreateUserSubscription(db, user.ID); err != nil {
			fm := fiber.Map{
				"type":    "error",
				"message": "Registration failed, please try again",
			}
			return flash.WithError(c, fm).Redirect("/register")
		}

		fm := fiber.Map{
			"type":    "success",
			"message": "Account created. You can log in now.",
		}
		return flash.WithSuccess(c, fm).Redirect("/login")
	}

	return c.Render("auth/register", pageData(c, "Register", nil), "layouts/main")
}
