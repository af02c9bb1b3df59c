package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/wavedeck/studio/pkg/response"
)

const credentialKey = "credential"

// Credential resolves the WaveSpeed API key of a request. A bearer token is
// forwarded as-is; without one the configured default key is used.
type Credential struct {
	defaultKey string
}

func NewCredential(defaultKey string) *Credential {
	return &Credential{defaultKey: defaultKey}
}

// Require stores the credential in locals or rejects the request
func (m *Credential) Require() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := m.defaultKey

		if authHeader := c.Get("Authorization"); authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
				return response.Unauthorized(c, "Invalid authorization header format")
			}
			key = strings.TrimSpace(parts[1])
		}

		if key == "" {
			return response.Unauthorized(c, "Missing API key")
		}

		c.Locals(credentialKey, key)
		return c.Next()
	}
}

// GetCredential extracts the credential from context
func GetCredential(c *fiber.Ctx) string {
	if key, ok := c.Locals(credentialKey).(string); ok {
		return key
	}
	return ""
}
