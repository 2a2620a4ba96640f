// services/reward_service.go
package services

import (
	"log"
	"strings"

	"achievement-engine/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type RewardService struct {
	DB       *gorm.DB
	Notifier *Notifier
}

func NewRewardService(db *gorm.DB, notifier *Notifier) *RewardService {
	return &RewardService{DB: db, Notifier: notifier}
}

// Dispatch grants the rewards of a freshly completed achievement. The
// completion flag is already persisted, so nothing here may be fatal: coin
// and command failures are logged and left for manual reconciliation.
func (s *RewardService) Dispatch(user *models.User, achievement *models.Achievement) {
	if achievement.RewardCoins > 0 {
		// single UPDATE so concurrent completions for the same user can't
		// lose a credit
		err := s.DB.Model(&models.User{}).
			Where("id = ?", user.ID).
			UpdateColumn("balance", gorm.Expr("balance + ?", achievement.RewardCoins)).Error
		if err != nil {
			log.Printf("[REWARD] Failed to credit %d coins to %s: %v", achievement.RewardCoins, user.Username, err)
		} else {
			log.Printf("💰 COINS AWARDED: %s received %d coins for %q", user.Username, achievement.RewardCoins, achievement.Name)
		}
	}

	if achievement.RewardCommand == nil || *achievement.RewardCommand == "" {
		return
	}
	if user.MinecraftUsername == nil || *user.MinecraftUsername == "" {
		// no linked game identity to run the command against
		return
	}

	command := strings.ReplaceAll(*achievement.RewardCommand, "{username}", *user.MinecraftUsername)
	if err := s.DB.Create(&models.PendingCommand{Command: command}).Error; err != nil {
		log.Printf("[REWARD] Failed to queue command %q: %v", command, err)
		return
	}
	s.Notifier.Broadcast(EventNewCommand)
}

// --- Bridge handlers (plugin API key protected) ---

// ListPendingCommands returns every queued command for the polling bridge.
func (s *RewardService) ListPendingCommands(c *fiber.Ctx) error {
	var commands []models.PendingCommand
	if err := s.DB.Order("id ASC").Find(&commands).Error; err != nil {
		log.Printf("[PLUGIN-FETCH] DB error fetching pending commands: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch commands"})
	}
	log.Printf("[PLUGIN-FETCH] 💾 Found %d pending command(s) for the bridge", len(commands))
	return c.JSON(commands)
}

// ClearPendingCommands deletes commands the bridge has executed.
func (s *RewardService) ClearPendingCommands(c *fiber.Ctx) error {
	var req struct {
		CommandIDs []uint `json:"commandIds"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if len(req.CommandIDs) == 0 {
		return c.JSON(fiber.Map{"message": "Nothing to clear"})
	}
	if err := s.DB.Delete(&models.PendingCommand{}, req.CommandIDs).Error; err != nil {
		log.Printf("[PLUGIN-CLEAR] DB error clearing commands: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to clear commands"})
	}
	log.Printf("[PLUGIN-CLEAR] ✅ Cleared %d command(s)", len(req.CommandIDs))
	return c.JSON(fiber.Map{"message": "Commands cleared"})
}
