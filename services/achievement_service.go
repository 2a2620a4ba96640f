// services/achievement_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"achievement-engine/models"
	"achievement-engine/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

type AchievementService struct {
	DB       *gorm.DB
	Notifier *Notifier
}

func NewAchievementService(db *gorm.DB, notifier *Notifier) *AchievementService {
	return &AchievementService{DB: db, Notifier: notifier}
}

// normalizeConditions folds the UI's separate specific_target field into the
// fully-qualified target the evaluator matches on.
func normalizeConditions(doc models.ConditionsDoc) models.ConditionsDoc {
	for i := range doc.Conditions {
		if doc.Conditions[i].SpecificTarget != "" {
			doc.Conditions[i].Target = doc.Conditions[i].Target + ":" + doc.Conditions[i].SpecificTarget
			doc.Conditions[i].SpecificTarget = ""
		}
	}
	return doc
}

// --- Admin handlers ---

// CreateAchievement creates a new achievement (Admin only)
func (s *AchievementService) CreateAchievement(c *fiber.Ctx) error {
	var req struct {
		Name          string               `json:"name" validate:"required"`
		Description   string               `json:"description" validate:"required"`
		IconURL       *string              `json:"icon_url"`
		CardColor     *string              `json:"card_color" validate:"omitempty,hexcolor"`
		TextColor     *string              `json:"text_color" validate:"omitempty,hexcolor"`
		GroupID       *string              `json:"group_id" validate:"omitempty,uuid"`
		ParentID      *string              `json:"parent_id" validate:"omitempty,uuid"`
		IsEnabled     *bool                `json:"is_enabled"`
		RewardCommand *string              `json:"reward_command"`
		RewardCoins   int64                `json:"reward_coins" validate:"gte=0"`
		Conditions    models.ConditionsDoc `json:"conditions" validate:"required"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.Validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	achievement := &models.Achievement{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Description:   req.Description,
		IconURL:       req.IconURL,
		CardColor:     "#32383E",
		TextColor:     "#F0F4F8",
		IsEnabled:     true,
		RewardCommand: req.RewardCommand,
		RewardCoins:   req.RewardCoins,
		Conditions:    normalizeConditions(req.Conditions),
		GroupID:       req.GroupID,
		ParentID:      req.ParentID,
	}
	if req.CardColor != nil {
		achievement.CardColor = *req.CardColor
	}
	if req.TextColor != nil {
		achievement.TextColor = *req.TextColor
	}
	if req.IsEnabled != nil {
		achievement.IsEnabled = *req.IsEnabled
	}

	if err := s.DB.Create(achievement).Error; err != nil {
		log.Printf("DB Error creating achievement: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create achievement"})
	}
	return c.Status(fiber.StatusCreated).JSON(achievement)
}

// GetAllAchievements lists every achievement for the admin panel.
func (s *AchievementService) GetAllAchievements(c *fiber.Ctx) error {
	var achievements []models.Achievement
	if err := s.DB.Preload("Group").Order("name ASC").Find(&achievements).Error; err != nil {
		log.Printf("DB Error fetching achievements: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch achievements"})
	}
	return c.JSON(achievements)
}

// GetAchievement fetches a single achievement by ID.
func (s *AchievementService) GetAchievement(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid achievement ID"})
	}

	var achievement models.Achievement
	if err := s.DB.Preload("Group").First(&achievement, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Achievement not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(achievement)
}

// UpdateAchievement applies a partial update (Admin only).
func (s *AchievementService) UpdateAchievement(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid achievement ID"})
	}

	var existing models.Achievement
	if err := s.DB.First(&existing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Achievement not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Name          *string               `json:"name"`
		Description   *string               `json:"description"`
		IconURL       *string               `json:"icon_url"`
		CardColor     *string               `json:"card_color" validate:"omitempty,hexcolor"`
		TextColor     *string               `json:"text_color" validate:"omitempty,hexcolor"`
		GroupID       *string               `json:"group_id"`
		ParentID      *string               `json:"parent_id"`
		IsEnabled     *bool                 `json:"is_enabled"`
		RewardCommand *string               `json:"reward_command"`
		RewardCoins   *int64                `json:"reward_coins" validate:"omitempty,gte=0"`
		Conditions    *models.ConditionsDoc `json:"conditions"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.Validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Description != nil {
		existing.Description = *req.Description
	}
	if req.IconURL != nil {
		existing.IconURL = req.IconURL
	}
	if req.CardColor != nil {
		existing.CardColor = *req.CardColor
	}
	if req.TextColor != nil {
		existing.TextColor = *req.TextColor
	}
	if req.GroupID != nil {
		if *req.GroupID == "" {
			existing.GroupID = nil
		} else {
			existing.GroupID = req.GroupID
		}
	}
	if req.ParentID != nil {
		if *req.ParentID == "" {
			existing.ParentID = nil
		} else {
			existing.ParentID = req.ParentID
		}
	}
	if req.IsEnabled != nil {
		existing.IsEnabled = *req.IsEnabled
	}
	if req.RewardCommand != nil {
		existing.RewardCommand = req.RewardCommand
	}
	if req.RewardCoins != nil {
		existing.RewardCoins = *req.RewardCoins
	}
	if req.Conditions != nil {
		// NOTE: condition indexes are the progress keys; the UI keeps them
		// stable across edits once users have recorded progress
		existing.Conditions = normalizeConditions(*req.Conditions)
	}

	if err := s.DB.Save(&existing).Error; err != nil {
		log.Printf("DB Error updating achievement: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update achievement"})
	}
	return c.JSON(existing)
}

// DeleteAchievement removes an achievement (Admin only).
func (s *AchievementService) DeleteAchievement(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid achievement ID"})
	}

	result := s.DB.Delete(&models.Achievement{}, "id = ?", id)
	if result.Error != nil {
		log.Printf("DB Error deleting achievement: %v", result.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete achievement"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Achievement not found"})
	}
	return c.JSON(fiber.Map{"message": "Achievement deleted successfully"})
}

// UploadAchievementIcon stores an icon image in R2 and links it.
func (s *AchievementService) UploadAchievementIcon(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid achievement ID"})
	}

	var achievement models.Achievement
	if err := s.DB.First(&achievement, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Achievement not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	fileHeader, err := c.FormFile("icon")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing icon file"})
	}

	key := fmt.Sprintf("achievement-icons/%s-%s%s", slug.Make(achievement.Name), achievement.ID[:8], filepath.Ext(fileHeader.Filename))
	url, err := utils.UploadFileToR2(fileHeader, key)
	if err != nil {
		log.Printf("R2 upload failed for achievement %s: %v", achievement.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload icon"})
	}

	achievement.IconURL = &url
	if err := s.DB.Save(&achievement).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save icon URL"})
	}
	return c.JSON(fiber.Map{"icon_url": url})
}

// RequestTargetSync asks connected game plugins to re-register their target
// vocabulary.
func (s *AchievementService) RequestTargetSync(c *fiber.Ctx) error {
	log.Printf("[TARGETS] Sending %q to %d connected bridge(s)", EventRequestTargets, s.Notifier.Connected())
	s.Notifier.Broadcast(EventRequestTargets)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "Sync request sent to the plugin."})
}

// --- User handler ---

// GetAchievementsWithProgress returns all enabled achievements with the
// requesting user's live progress, split into grouped and ungrouped lists.
// Users with no recorded progress get an unsaved zero placeholder; a progress
// row is only ever persisted by the evaluator.
func (s *AchievementService) GetAchievementsWithProgress(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var achievements []models.Achievement
	if err := s.DB.Preload("Group").
		Where("is_enabled = ?", true).
		Order("name ASC").
		Find(&achievements).Error; err != nil {
		log.Printf("DB Error fetching achievements for user %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch achievements"})
	}

	var progressRows []models.AchievementProgress
	if err := s.DB.Where("user_id = ?", userID).Find(&progressRows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch progress"})
	}
	progressByAchievement := make(map[string]models.AchievementProgress, len(progressRows))
	for _, p := range progressRows {
		progressByAchievement[p.AchievementID] = p
	}

	type groupBucket struct {
		group        *models.AchievementGroup
		achievements []fiber.Map
	}
	buckets := map[string]*groupBucket{}
	var groupOrder []string
	var single []fiber.Map

	for i := range achievements {
		ach := achievements[i]
		progress, ok := progressByAchievement[ach.ID]
		if !ok {
			progress = models.AchievementProgress{
				UserID:        userID,
				AchievementID: ach.ID,
				ProgressData:  models.ProgressData{},
			}
		}
		entry := fiber.Map{
			"achievement": ach,
			"progress":    progress,
		}

		if ach.Group != nil {
			bucket, exists := buckets[ach.Group.ID]
			if !exists {
				bucket = &groupBucket{group: ach.Group}
				buckets[ach.Group.ID] = bucket
				groupOrder = append(groupOrder, ach.Group.ID)
			}
			bucket.achievements = append(bucket.achievements, entry)
		} else {
			single = append(single, entry)
		}
	}

	sort.SliceStable(groupOrder, func(i, j int) bool {
		return buckets[groupOrder[i]].group.DisplayOrder < buckets[groupOrder[j]].group.DisplayOrder
	})
	grouped := make([]fiber.Map, 0, len(groupOrder))
	for _, groupID := range groupOrder {
		grouped = append(grouped, fiber.Map{
			"groupInfo":    buckets[groupID].group,
			"achievements": buckets[groupID].achievements,
		})
	}

	return c.JSON(fiber.Map{
		"grouped": grouped,
		"single":  single,
	})
}

// --- Plugin handler ---

// GetPeriodicChecks lists enabled achievements carrying a PERIODIC_CHECK
// condition, for producers that cannot push events and poll instead.
func (s *AchievementService) GetPeriodicChecks(c *fiber.Ctx) error {
	log.Printf("[API-REQ] A plugin is fetching periodic check configurations.")
	var enabled []models.Achievement
	if err := s.DB.Where("is_enabled = ?", true).Find(&enabled).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch achievements"})
	}
	periodic := enabled[:0]
	for _, ach := range enabled {
		if ach.Conditions.HasTrigger("PERIODIC_CHECK") {
			periodic = append(periodic, ach)
		}
	}
	return c.JSON(periodic)
}
