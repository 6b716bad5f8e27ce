package constants

// Static route constants
const (
	PublicRoute        = "/"
	LoginRoute         = "/login"
	AccountRoute       = "/account"
	PricingRoute       = "/pricing"
	ArticlesRoute      = "/articles"
	AdminArticlesRoute = "/admin/articles"
)
