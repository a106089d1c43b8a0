package controller

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/wayBiggger/way-bigger/models"
	"github.com/wayBiggger/way-bigger/utils"
)

type AIController struct {
	DB     *gorm.DB
	Gemini *utils.GeminiClient
	Logger *log.Logger
}

func NewAIController(db *gorm.DB, gemini *utils.GeminiClient, logger *log.Logger) *AIController {
	return &AIController{
		DB:     db,
		Gemini: gemini,
		Logger: logger,
	}
}

// AskTutor answers a learning question, tuned to the user's profile
func (ac *AIController) AskTutor(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Question string `json:"question" validate:"required,max=4000"`
		Context  string `json:"context" validate:"omitempty,max=8000"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if !ac.Gemini.IsConfigured() {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "AI tutor is not configured", nil)
	}

	prompt := fmt.Sprintf(
		"You are a programming tutor for a %s learner studying %s.\n"+
			"Answer concisely and include a short code example when it helps.\n\n"+
			"Question: %s",
		user.ProficiencyLevel, user.SelectedField, input.Question,
	)
	if input.Context != "" {
		prompt += "\n\nRelevant code or context:\n" + input.Context
	}

	answer, err := ac.Gemini.Generate(c.Context(), prompt)
	if err != nil {
		ac.Logger.Printf("tutor generation failed for user %s: %v", user.ID, err)
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "AI tutor is temporarily unavailable", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"answer": answer}))
}

// ReviewCode runs an AI review over a project file's current content
func (ac *AIController) ReviewCode(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		FileID string `json:"file_id" validate:"required"`
		Focus  string `json:"focus" validate:"omitempty,oneof=correctness style performance security"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if !ac.Gemini.IsConfigured() {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "AI code review is not configured", nil)
	}

	var file models.ProjectFile
	if err := ac.DB.First(&file, "id = ?", input.FileID).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "File not found", nil)
	}

	var participant models.ProjectParticipant
	if err := ac.DB.Where("project_id = ? AND user_id = ?", file.ProjectID, user.ID).
		First(&participant).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Not a project participant", nil)
	}

	focus := input.Focus
	if focus == "" {
		focus = "correctness"
	}
	prompt := fmt.Sprintf(
		"Review the following %s file for %s issues. List concrete findings "+
			"with line references, then a one-paragraph summary.\n\nFile %s:\n%s",
		file.Language, focus, file.FilePath, file.Content,
	)

	review, err := ac.Gemini.Generate(c.Context(), prompt)
	if err != nil {
		ac.Logger.Printf("code review failed for file %s: %v", file.ID, err)
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "AI code review is temporarily unavailable", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"file_id": file.ID,
		"version": file.Version,
		"focus":   focus,
		"review":  review,
	}))
}

// SuggestProjectIdeas proposes team project ideas for the user's track
func (ac *AIController) SuggestProjectIdeas(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	if !ac.Gemini.IsConfigured() {
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "AI suggestions are not configured", nil)
	}

	prompt := fmt.Sprintf(
		"Suggest three team project ideas for %s learners at %s level. "+
			"For each: a name, a two-sentence description, and the main skills practiced.",
		user.SelectedField, user.ProficiencyLevel,
	)

	ideas, err := ac.Gemini.Generate(c.Context(), prompt)
	if err != nil {
		ac.Logger.Printf("idea generation failed for user %s: %v", user.ID, err)
		return utils.ErrorResponse(c, fiber.StatusBadGateway, "AI suggestions are temporarily unavailable", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"ideas": ideas}))
}
