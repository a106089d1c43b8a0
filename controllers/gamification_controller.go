package controller

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/wayBiggger/way-bigger/models"
	"github.com/wayBiggger/way-bigger/utils"
)

// Level thresholds follow a simple quadratic curve: level n requires
// 100 * n^2 total XP.
func levelForXP(totalXP int) int {
	level := 1
	for totalXP >= 100*(level+1)*(level+1) {
		level++
	}
	return level
}

type GamificationController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewGamificationController(db *gorm.DB, logger *log.Logger) *GamificationController {
	return &GamificationController{
		DB:     db,
		Logger: logger,
	}
}

// GetProgress returns the caller's progress row, creating it on first access
func (gc *GamificationController) GetProgress(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	progress, err := gc.loadOrCreateProgress(user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch progress", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"progress":               progress,
		"next_level_xp":          100 * (progress.Level + 1) * (progress.Level + 1),
		"collaboration_unlocked": progress.CollaborationUnlocked(),
	}))
}

// AwardXP records an XP transaction and recomputes the user's level
func (gc *GamificationController) AwardXP(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Amount      int    `json:"amount" validate:"required,min=1,max=1000"`
		Source      string `json:"source" validate:"required,oneof=project_completion collaboration_join streak_bonus badge_reward code_review"`
		Description string `json:"description" validate:"omitempty,max=500"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	progress, err := gc.loadOrCreateProgress(user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch progress", err)
	}

	leveledUp := false
	err = gc.DB.Transaction(func(tx *gorm.DB) error {
		txn := models.XPTransaction{
			UserProgressID: progress.ID,
			Amount:         input.Amount,
			Source:         input.Source,
			Description:    input.Description,
		}
		if err := tx.Create(&txn).Error; err != nil {
			return err
		}

		newTotal := progress.TotalXP + input.Amount
		newLevel := levelForXP(newTotal)
		leveledUp = newLevel > progress.Level

		return tx.Model(progress).Updates(map[string]interface{}{
			"total_xp":         newTotal,
			"level":            newLevel,
			"last_active_date": time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to award XP", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"awarded":    input.Amount,
		"total_xp":   progress.TotalXP + input.Amount,
		"level":      levelForXP(progress.TotalXP + input.Amount),
		"leveled_up": leveledUp,
	}))
}

// CompleteProject bumps the completion counter used by the collaboration gate
func (gc *GamificationController) CompleteProject(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	progress, err := gc.loadOrCreateProgress(user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch progress", err)
	}

	unlockedBefore := progress.CollaborationUnlocked()
	if err := gc.DB.Model(progress).
		Update("projects_completed", gorm.Expr("projects_completed + 1")).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update progress", err)
	}
	progress.ProjectsCompleted++

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"projects_completed":     progress.ProjectsCompleted,
		"collaboration_unlocked": progress.CollaborationUnlocked(),
		"unlocked_now":           !unlockedBefore && progress.CollaborationUnlocked(),
	}))
}

// GetLeaderboard returns the top users by total XP
func (gc *GamificationController) GetLeaderboard(c *fiber.Ctx) error {
	limit := utils.ParseInt(c.Query("limit"), 10)
	if limit > 100 {
		limit = 100
	}

	var entries []struct {
		UserID            string `json:"user_id"`
		Username          string `json:"username"`
		Level             int    `json:"level"`
		TotalXP           int    `json:"total_xp"`
		ProjectsCompleted int    `json:"projects_completed"`
	}
	err := gc.DB.Model(&models.UserProgress{}).
		Select("user_progresses.user_id", "users.username", "user_progresses.level",
			"user_progresses.total_xp", "user_progresses.projects_completed").
		Joins("JOIN users ON users.id = user_progresses.user_id").
		Order("user_progresses.total_xp DESC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch leaderboard", err)
	}

	return c.JSON(utils.SuccessResponse(entries))
}

// ListBadges returns the caller's earned badges
func (gc *GamificationController) ListBadges(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	progress, err := gc.loadOrCreateProgress(user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch progress", err)
	}

	var badges []models.UserBadge
	if err := gc.DB.Preload("Badge").
		Where("user_progress_id = ?", progress.ID).
		Order("earned_date DESC").Find(&badges).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch badges", err)
	}

	return c.JSON(utils.SuccessResponse(badges))
}

func (gc *GamificationController) loadOrCreateProgress(userID string) (*models.UserProgress, error) {
	var progress models.UserProgress
	err := gc.DB.Where("user_id = ?", userID).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		progress = models.UserProgress{
			UserID:         userID,
			Level:          1,
			LastActiveDate: time.Now().UTC(),
		}
		if err := gc.DB.Create(&progress).Error; err != nil {
			return nil, err
		}
		return &progress, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}
