// middleware/plugin_auth.go
package middleware

import (
	"crypto/subtle"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
)

// PluginAPIKeyMiddleware guards the endpoints game servers and the proxy
// bridge call directly (event ingest, target registration, command queue).
// They authenticate with the shared PLUGIN_API_KEY, sent as X-Api-Key.
// SSE clients cannot set headers, so the key is also accepted as an
// api_key query parameter.
func PluginAPIKeyMiddleware() fiber.Handler {
	expectedKey := os.Getenv("PLUGIN_API_KEY")
	if expectedKey == "" {
		log.Fatal("❌ PLUGIN_API_KEY is not set, service cannot authenticate game plugins")
	}

	return func(c *fiber.Ctx) error {
		key := c.Get("X-Api-Key")
		if key == "" {
			key = c.Query("api_key")
		}
		if key == "" {
			log.Printf("🚫 [PLUGIN_AUTH] Missing API key for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "plugin API key missing",
			})
		}
		if subtle.ConstantTimeCompare([]byte(key), []byte(expectedKey)) != 1 {
			log.Printf("❌ [PLUGIN_AUTH] Invalid API key for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid plugin API key",
			})
		}
		return c.Next()
	}
}
