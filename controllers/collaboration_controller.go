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

type CollaborationController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewCollaborationController(db *gorm.DB, logger *log.Logger) *CollaborationController {
	return &CollaborationController{
		DB:     db,
		Logger: logger,
	}
}

// CreateProject creates a new team project with the caller as leader
func (cc *CollaborationController) CreateProject(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name            string `json:"name" validate:"required,max=200"`
		Description     string `json:"description" validate:"omitempty,max=2000"`
		DifficultyLevel string `json:"difficulty_level" validate:"required,oneof=beginner intermediate advanced"`
		MaxTeamSize     int    `json:"max_team_size" validate:"omitempty,min=2,max=20"`
		MinTeamSize     int    `json:"min_team_size" validate:"omitempty,min=1,max=20"`
		IsPublic        *bool  `json:"is_public"`
	}

	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	// Team projects are gated behind gamification progress
	if err := cc.requireCollaborationUnlocked(user.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusForbidden, err.Error(), nil)
	}

	project := models.TeamProject{
		Name:            input.Name,
		Description:     input.Description,
		DifficultyLevel: input.DifficultyLevel,
		MaxTeamSize:     5,
		MinTeamSize:     2,
		IsPublic:        true,
		Status:          "active",
		CreatedBy:       user.ID,
	}
	if input.MaxTeamSize > 0 {
		project.MaxTeamSize = input.MaxTeamSize
	}
	if input.MinTeamSize > 0 {
		project.MinTeamSize = input.MinTeamSize
	}
	if input.IsPublic != nil {
		project.IsPublic = *input.IsPublic
	}

	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		participant := models.ProjectParticipant{
			ProjectID:   project.ID,
			UserID:      user.ID,
			Role:        models.RoleLeader,
			Permissions: models.DefaultLeaderPermissions(),
			JoinedAt:    time.Now().UTC(),
			Status:      models.StatusOffline,
		}
		return tx.Create(&participant).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create project", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(project))
}

// ListProjects returns public projects plus the user's own, newest first
func (cc *CollaborationController) ListProjects(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	page := utils.ParseInt(c.Query("page"), 1)
	limit := utils.ParseInt(c.Query("limit"), 20)
	if limit > 100 {
		limit = 100
	}

	query := cc.DB.Model(&models.TeamProject{}).
		Where("is_public = ? OR created_by = ?", true, user.ID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if difficulty := c.Query("difficulty"); difficulty != "" {
		query = query.Where("difficulty_level = ?", difficulty)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to count projects", err)
	}

	var projects []models.TeamProject
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Preload("Participants").
		Find(&projects).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch projects", err)
	}

	return c.JSON(utils.PaginatedResponse{
		Data:  projects,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// GetProject returns a single project with its participants and files
func (cc *CollaborationController) GetProject(c *fiber.Ctx) error {
	var project models.TeamProject
	err := cc.DB.Preload("Participants").Preload("Files").
		First(&project, "id = ?", c.Params("project_id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Project not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch project", err)
	}

	return c.JSON(utils.SuccessResponse(project))
}

// JoinProject adds the caller as a contributor on an active project
func (cc *CollaborationController) JoinProject(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	projectID := c.Params("project_id")

	var input struct {
		Role string `json:"role" validate:"omitempty,oneof=frontend_developer backend_developer ui_ux_designer data_scientist devops_engineer contributor"`
	}
	// The body is optional; a missing one means the default role
	if err := c.BodyParser(&input); err != nil {
		input.Role = ""
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}
	role := models.ProjectRole(input.Role)
	if role == "" {
		role = models.RoleContributor
	}

	if err := cc.requireCollaborationUnlocked(user.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusForbidden, err.Error(), nil)
	}

	var project models.TeamProject
	err := cc.DB.Preload("Participants").First(&project, "id = ?", projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Project not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch project", err)
	}

	if project.Status != "active" {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Project is not active", nil)
	}
	for _, p := range project.Participants {
		if p.UserID == user.ID {
			return utils.ErrorResponse(c, fiber.StatusBadRequest, "User is already a participant", nil)
		}
	}
	if len(project.Participants) >= project.MaxTeamSize {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Project is full", nil)
	}

	participant := models.ProjectParticipant{
		ProjectID:   projectID,
		UserID:      user.ID,
		Role:        role,
		Permissions: models.DefaultMemberPermissions(),
		JoinedAt:    time.Now().UTC(),
		Status:      models.StatusOffline,
	}
	if err := cc.DB.Create(&participant).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to join project", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message":     "Successfully joined project",
		"participant": participant,
	}))
}

// InviteToProject creates an invitation; requires manage_users permission
func (cc *CollaborationController) InviteToProject(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	projectID := c.Params("project_id")

	var input struct {
		InvitedUserID string `json:"invited_user_id" validate:"required"`
		Role          string `json:"role" validate:"omitempty,oneof=frontend_developer backend_developer ui_ux_designer data_scientist devops_engineer contributor"`
		Message       string `json:"message" validate:"omitempty,max=1000"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var inviter models.ProjectParticipant
	err := cc.DB.Where("project_id = ? AND user_id = ?", projectID, user.ID).First(&inviter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !inviter.Permissions.Has(models.PermissionManageUsers)) {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Insufficient permissions", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check permissions", err)
	}

	var existing models.ProjectParticipant
	if err := cc.DB.Where("project_id = ? AND user_id = ?", projectID, input.InvitedUserID).First(&existing).Error; err == nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "User is already a participant", nil)
	}

	role := models.ProjectRole(input.Role)
	if role == "" {
		role = models.RoleContributor
	}
	invitation := models.TeamInvitation{
		ProjectID:     projectID,
		InvitedUserID: input.InvitedUserID,
		InvitedBy:     user.ID,
		Role:          role,
		Message:       input.Message,
		Status:        "pending",
		ExpiresAt:     utils.Pointer(time.Now().UTC().Add(7 * 24 * time.Hour)),
	}
	if err := cc.DB.Create(&invitation).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create invitation", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(invitation))
}

// RespondToInvitation accepts or declines a pending invitation
func (cc *CollaborationController) RespondToInvitation(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	invitationID := c.Params("invitation_id")

	var input struct {
		Response string `json:"response" validate:"required,oneof=accept decline"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var invitation models.TeamInvitation
	err := cc.DB.Where("id = ? AND invited_user_id = ? AND status = ?", invitationID, user.ID, "pending").
		First(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "Invitation not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch invitation", err)
	}

	if invitation.ExpiresAt != nil && time.Now().After(*invitation.ExpiresAt) {
		cc.DB.Model(&invitation).Update("status", "expired")
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invitation has expired", nil)
	}

	now := time.Now().UTC()
	if input.Response == "decline" {
		if err := cc.DB.Model(&invitation).Updates(map[string]interface{}{
			"status": "declined", "responded_at": now,
		}).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to update invitation", err)
		}
		return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Invitation declined"}))
	}

	err = cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&invitation).Updates(map[string]interface{}{
			"status": "accepted", "responded_at": now,
		}).Error; err != nil {
			return err
		}
		participant := models.ProjectParticipant{
			ProjectID:   invitation.ProjectID,
			UserID:      user.ID,
			Role:        invitation.Role,
			Permissions: models.DefaultMemberPermissions(),
			JoinedAt:    now,
			Status:      models.StatusOffline,
		}
		return tx.Create(&participant).Error
	})
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to accept invitation", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "Invitation accepted"}))
}

// ListUserInvitations returns the caller's pending invitations
func (cc *CollaborationController) ListUserInvitations(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var invitations []models.TeamInvitation
	if err := cc.DB.Where("invited_user_id = ? AND status = ?", user.ID, "pending").
		Order("created_at DESC").Find(&invitations).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch invitations", err)
	}

	return c.JSON(utils.SuccessResponse(invitations))
}

// ListProjectFiles returns a project's files without their content
func (cc *CollaborationController) ListProjectFiles(c *fiber.Ctx) error {
	projectID := c.Params("project_id")

	var files []models.ProjectFile
	if err := cc.DB.Select("id", "project_id", "filename", "file_path", "file_type", "language",
		"version", "last_modified_by", "last_modified_at", "is_locked", "locked_by").
		Where("project_id = ?", projectID).
		Order("file_path ASC").Find(&files).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch files", err)
	}

	return c.JSON(utils.SuccessResponse(files))
}

// CreateProjectFile adds a new file to the project
func (cc *CollaborationController) CreateProjectFile(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	projectID := c.Params("project_id")

	var input struct {
		Filename string `json:"filename" validate:"required,max=255"`
		FilePath string `json:"file_path" validate:"required,max=1024"`
		FileType string `json:"file_type" validate:"required,max=20"`
		Language string `json:"language" validate:"omitempty,max=50"`
		Content  string `json:"content"`
	}
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(input); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	if err := cc.requireWritePermission(projectID, user.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusForbidden, err.Error(), nil)
	}

	file := models.ProjectFile{
		ProjectID:      projectID,
		Filename:       input.Filename,
		FilePath:       input.FilePath,
		FileType:       input.FileType,
		Language:       input.Language,
		Content:        input.Content,
		Version:        1,
		LastModifiedBy: user.ID,
		LastModifiedAt: time.Now().UTC(),
	}
	if err := cc.DB.Create(&file).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create file", err)
	}

	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(file))
}

// GetFile returns one file with its full content
func (cc *CollaborationController) GetFile(c *fiber.Ctx) error {
	var file models.ProjectFile
	err := cc.DB.First(&file, "id = ?", c.Params("file_id")).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "File not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch file", err)
	}

	return c.JSON(utils.SuccessResponse(file))
}

// LockFile takes the exclusive edit lock on a file for the caller
func (cc *CollaborationController) LockFile(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	fileID := c.Params("file_id")

	var file models.ProjectFile
	err := cc.DB.First(&file, "id = ?", fileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "File not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch file", err)
	}

	if err := cc.requireWritePermission(file.ProjectID, user.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusForbidden, err.Error(), nil)
	}

	if file.IsLocked && file.LockedBy != nil && *file.LockedBy != user.ID {
		return utils.ErrorResponse(c, fiber.StatusConflict, "File is locked by another user", nil)
	}

	now := time.Now().UTC()
	if err := cc.DB.Model(&file).Updates(map[string]interface{}{
		"is_locked": true,
		"locked_by": user.ID,
		"locked_at": now,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to lock file", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"file_id":   fileID,
		"locked_by": user.ID,
		"locked_at": now,
	}))
}

// UnlockFile releases the caller's lock on a file
func (cc *CollaborationController) UnlockFile(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	fileID := c.Params("file_id")

	var file models.ProjectFile
	err := cc.DB.First(&file, "id = ?", fileID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "File not found", nil)
	}
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch file", err)
	}

	if file.IsLocked && file.LockedBy != nil && *file.LockedBy != user.ID && !user.IsAdmin {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "File is locked by another user", nil)
	}

	if err := cc.DB.Model(&file).Updates(map[string]interface{}{
		"is_locked": false,
		"locked_by": nil,
		"locked_at": nil,
	}).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to unlock file", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{"file_id": fileID, "locked": false}))
}

// GetChatHistory returns the chat transcript of the project's sessions
func (cc *CollaborationController) GetChatHistory(c *fiber.Ctx) error {
	projectID := c.Params("project_id")
	limit := utils.ParseInt(c.Query("limit"), 50)
	if limit > 200 {
		limit = 200
	}

	var messages []models.ChatMessage
	err := cc.DB.
		Joins("JOIN collaboration_sessions ON collaboration_sessions.id = chat_messages.session_id").
		Where("collaboration_sessions.project_id = ?", projectID).
		Order("chat_messages.created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch chat history", err)
	}

	return c.JSON(utils.SuccessResponse(messages))
}

// GetFileHistory returns a file's accepted change log, oldest first
func (cc *CollaborationController) GetFileHistory(c *fiber.Ctx) error {
	fileID := c.Params("file_id")

	var changes []models.FileChange
	if err := cc.DB.Where("file_id = ?", fileID).
		Order("sequence ASC").Find(&changes).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch file history", err)
	}

	return c.JSON(utils.SuccessResponse(changes))
}

func (cc *CollaborationController) requireCollaborationUnlocked(userID string) error {
	var progress models.UserProgress
	err := cc.DB.Where("user_id = ?", userID).First(&progress).Error
	if err != nil || !progress.CollaborationUnlocked() {
		return errors.New("Collaboration requires Level 3 and 5 completed projects")
	}
	return nil
}

func (cc *CollaborationController) requireWritePermission(projectID, userID string) error {
	var participant models.ProjectParticipant
	err := cc.DB.Where("project_id = ? AND user_id = ?", projectID, userID).First(&participant).Error
	if err != nil || !participant.Permissions.Has(models.PermissionWrite) {
		return errors.New("Write permission required")
	}
	return nil
}
