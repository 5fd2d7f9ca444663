// middleware/auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/text/language"
)

// supportedLocales are the locales the platform ships content in; the first
// entry is the fallback.
var supportedLocales = []language.Tag{
	language.English,
	language.Spanish,
	language.BrazilianPortuguese,
	language.French,
	language.German,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// UserContextMiddleware extracts the learner identity and roles set by the
// Gateway, and resolves the request locale from Accept-Language. Secured
// paths (/s/ prefix) require an identity.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		rolesStr := c.Get("X-User-Roles")

		path := c.Path()
		isSecured := strings.HasPrefix(path, "/s/")
		if isSecured && userID == "" {
			log.Printf("❌ [USER_CTX] X-User-ID required but missing on secured route: %s", path)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		var roles []string
		if rolesStr != "" {
			for _, r := range strings.Split(rolesStr, ",") {
				r = strings.TrimSpace(r)
				if r != "" {
					roles = append(roles, r)
				}
			}
		}

		tags, _, err := language.ParseAcceptLanguage(c.Get("Accept-Language"))
		if err != nil || len(tags) == 0 {
			tags = []language.Tag{supportedLocales[0]}
		}
		tag, _, _ := localeMatcher.Match(tags...)

		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)
		c.Locals("locale", tag.String())

		return c.Next()
	}
}
