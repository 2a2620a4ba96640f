// handlers/achievement_routes.go
package handlers

import (
	"achievement-engine/middleware"
	"achievement-engine/services"

	"github.com/gofiber/fiber/v2"
)

// SetupAchievementRoutes wires the user-facing progress listing, the admin
// catalog CRUD, and the achievement group management endpoints. All of these
// arrive through the gateway with forwarded user context.
func SetupAchievementRoutes(
	app *fiber.App,
	achievementService *services.AchievementService,
	groupService *services.GroupService,
	taxonomyService *services.TaxonomyService,
) {
	achievements := app.Group("/achievements", middleware.UserContextMiddleware())

	// any authenticated user
	achievements.Get("/progress", achievementService.GetAchievementsWithProgress)

	// admin panel
	admin := achievements.Group("/admin", middleware.RequireAdmin())
	admin.Post("/", achievementService.CreateAchievement)
	admin.Get("/", achievementService.GetAllAchievements)
	admin.Get("/config-data", taxonomyService.ConfigData)
	admin.Post("/request-sync", achievementService.RequestTargetSync)
	admin.Get("/:id", achievementService.GetAchievement)
	admin.Patch("/:id", achievementService.UpdateAchievement)
	admin.Delete("/:id", achievementService.DeleteAchievement)
	admin.Post("/:id/icon", achievementService.UploadAchievementIcon)

	groups := app.Group("/admin/achievement-groups", middleware.UserContextMiddleware(), middleware.RequireAdmin())
	groups.Get("/server-groups", groupService.GetServerGroups)
	groups.Post("/", groupService.CreateGroup)
	groups.Get("/", groupService.GetAllGroups)
	groups.Patch("/:id", groupService.UpdateGroup)
	groups.Delete("/:id", groupService.DeleteGroup)
}
