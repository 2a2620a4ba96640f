// services/group_service.go
package services

import (
	"errors"
	"log"

	"achievement-engine/models"
	"achievement-engine/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GroupService struct {
	DB *gorm.DB
}

func NewGroupService(db *gorm.DB) *GroupService {
	return &GroupService{DB: db}
}

// CreateGroup creates an achievement group (Admin only).
func (s *GroupService) CreateGroup(c *fiber.Ctx) error {
	var req struct {
		Name         string  `json:"name" validate:"required,max=100"`
		Description  *string `json:"description"`
		IconURL      *string `json:"icon_url"`
		DisplayOrder int     `json:"display_order"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := utils.Validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	group := &models.AchievementGroup{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		IconURL:      req.IconURL,
		DisplayOrder: req.DisplayOrder,
	}
	if err := s.DB.Create(group).Error; err != nil {
		log.Printf("DB Error creating achievement group: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create group"})
	}
	return c.Status(fiber.StatusCreated).JSON(group)
}

// GetAllGroups lists groups ordered for display.
func (s *GroupService) GetAllGroups(c *fiber.Ctx) error {
	var groups []models.AchievementGroup
	if err := s.DB.Order("display_order ASC, name ASC").Find(&groups).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch groups"})
	}
	return c.JSON(groups)
}

// UpdateGroup applies a partial update (Admin only).
func (s *GroupService) UpdateGroup(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid group ID"})
	}

	var existing models.AchievementGroup
	if err := s.DB.First(&existing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Group not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Name         *string `json:"name" validate:"omitempty,max=100"`
		Description  *string `json:"description"`
		IconURL      *string `json:"icon_url"`
		DisplayOrder *int    `json:"display_order"`
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
		existing.Description = req.Description
	}
	if req.IconURL != nil {
		existing.IconURL = req.IconURL
	}
	if req.DisplayOrder != nil {
		existing.DisplayOrder = *req.DisplayOrder
	}

	if err := s.DB.Save(&existing).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update group"})
	}
	return c.JSON(existing)
}

// DeleteGroup removes a group; achievements in it fall back to ungrouped.
func (s *GroupService) DeleteGroup(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := uuid.Parse(id); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid group ID"})
	}

	if err := s.DB.Model(&models.Achievement{}).Where("group_id = ?", id).Update("group_id", nil).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to detach achievements"})
	}

	result := s.DB.Delete(&models.AchievementGroup{}, "id = ?", id)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete group"})
	}
	if result.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Group not found"})
	}
	return c.JSON(fiber.Map{"message": "Group deleted successfully"})
}

// GetServerGroups lists every server-group label seen on ingested events.
func (s *GroupService) GetServerGroups(c *fiber.Ctx) error {
	var groups []models.ServerGroup
	if err := s.DB.Order("name ASC").Find(&groups).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch server groups"})
	}
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return c.JSON(names)
}
