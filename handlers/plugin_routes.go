// handlers/plugin_routes.go
package handlers

import (
	"log"

	"achievement-engine/middleware"
	"achievement-engine/services"
	"achievement-engine/utils"

	"github.com/gofiber/fiber/v2"
)

// SetupPluginRoutes wires everything the game servers and the proxy bridge
// call directly: event ingestion, target registration, periodic-check
// configs, and the pending command queue. All of it sits behind the shared
// plugin API key.
func SetupPluginRoutes(
	app *fiber.App,
	eventService *services.EventService,
	achievementService *services.AchievementService,
	taxonomyService *services.TaxonomyService,
	rewardService *services.RewardService,
) {
	internal := app.Group("/internal", middleware.PluginAPIKeyMiddleware())

	// Event batches are acknowledged immediately and evaluated in the
	// background; the bridge never waits on rule matching.
	internal.Post("/event-ingest", func(c *fiber.Ctx) error {
		var batch services.EventBatch
		if err := c.BodyParser(&batch); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid event batch"})
		}
		go eventService.ProcessBatch(batch)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "Event accepted for processing."})
	})

	// Entry point for internally-originated triggers fired by the sibling
	// site services (posts, comments, votes, friendships). The caller
	// supplies the current running total as value.
	internal.Post("/website-event", func(c *fiber.Ctx) error {
		var req struct {
			SubType string  `json:"sub_type" validate:"required"`
			UserID  string  `json:"user_id" validate:"required,uuid"`
			Value   float64 `json:"value"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if err := utils.Validate.Struct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := eventService.TriggerWebsiteEvent(req.SubType, req.UserID, req.Value); err != nil {
			log.Printf("[WEBSITE-EVENT] Failed to process %s for user %s: %v", req.SubType, req.UserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process event"})
		}
		return c.JSON(fiber.Map{"message": "Event processed."})
	})

	internal.Post("/register-targets", func(c *fiber.Ctx) error {
		var req struct {
			PluginName string              `json:"pluginName" validate:"required"`
			Targets    map[string][]string `json:"targets" validate:"required"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if err := utils.Validate.Struct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if err := taxonomyService.RegisterTargets(c.Context(), req.PluginName, req.Targets); err != nil {
			log.Printf("[TARGETS] Failed to register targets from %q: %v", req.PluginName, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to register targets"})
		}
		return c.JSON(fiber.Map{"message": "Targets registered successfully."})
	})

	internal.Get("/periodic-checks", achievementService.GetPeriodicChecks)

	internal.Get("/commands", rewardService.ListPendingCommands)
	internal.Post("/commands/clear", rewardService.ClearPendingCommands)
	internal.Get("/commands/stream", rewardService.StreamCommandsSSE)
}
