package collab

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/wayBiggger/way-bigger/models"
)

// GormStore persists the collaboration state through the shared database
type GormStore struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewGormStore(db *gorm.DB, logger *log.Logger) *GormStore {
	return &GormStore{DB: db, Logger: logger}
}

func (s *GormStore) ProjectExists(projectID string) (bool, error) {
	var count int64
	if err := s.DB.Model(&models.TeamProject{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) CanRead(projectID, userID string) (bool, error) {
	participant, err := s.participant(projectID, userID)
	if err != nil {
		return false, err
	}
	if participant == nil {
		// Public projects are readable by anyone
		var project models.TeamProject
		if err := s.DB.First(&project, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		return project.IsPublic, nil
	}
	return participant.Permissions.Has(models.PermissionRead), nil
}

func (s *GormStore) CanWrite(projectID, userID string) (bool, error) {
	participant, err := s.participant(projectID, userID)
	if err != nil || participant == nil {
		return false, err
	}
	return participant.Permissions.Has(models.PermissionWrite), nil
}

func (s *GormStore) participant(projectID, userID string) (*models.ProjectParticipant, error) {
	var p models.ProjectParticipant
	err := s.DB.Where("project_id = ? AND user_id = ?", projectID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) FileState(fileID string) (*FileState, error) {
	var file models.ProjectFile
	if err := s.DB.First(&file, "id = ?", fileID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: file %s", ErrNotFound, fileID)
		}
		return nil, err
	}

	state := &FileState{
		FileID:    file.ID,
		ProjectID: file.ProjectID,
		Content:   file.Content,
		Version:   file.Version,
	}
	if file.IsLocked && file.LockedBy != nil {
		state.LockedBy = *file.LockedBy
		if file.LockedAt != nil {
			state.LockedAt = *file.LockedAt
		}
	}

	var head models.FileChange
	err := s.DB.Where("file_id = ?", fileID).Order("sequence DESC").First(&head).Error
	if err == nil {
		state.HeadOperationID = head.OperationID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return state, nil
}

func (s *GormStore) AppendChange(op Operation, newContent string, newVersion int) error {
	now := time.Now().UTC()
	change := models.FileChange{
		FileID:            op.FileID,
		UserID:            op.UserID,
		ChangeType:        string(op.Kind),
		StartPosition:     op.Start,
		EndPosition:       op.End,
		OldContent:        op.OldContent,
		NewContent:        op.NewContent,
		OperationID:       op.ID,
		ParentOperationID: op.ParentID,
		Sequence:          newVersion,
		AppliedAt:         &now,
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&change).Error; err != nil {
			return err
		}
		return tx.Model(&models.ProjectFile{}).Where("id = ?", op.FileID).Updates(map[string]interface{}{
			"content":          newContent,
			"version":          newVersion,
			"last_modified_by": op.UserID,
			"last_modified_at": now,
		}).Error
	})
}

func (s *GormStore) ChangesSince(fileID, sinceOpID string) ([]Operation, bool, error) {
	var changes []models.FileChange
	if err := s.DB.Where("file_id = ?", fileID).Order("sequence ASC").Find(&changes).Error; err != nil {
		return nil, false, err
	}

	start := 0
	if sinceOpID != "" {
		found := false
		for i, c := range changes {
			if c.OperationID == sinceOpID {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, false, nil
		}
	}

	ops := make([]Operation, 0, len(changes)-start)
	for _, c := range changes[start:] {
		ops = append(ops, Operation{
			ID:         c.OperationID,
			ParentID:   c.ParentOperationID,
			FileID:     c.FileID,
			UserID:     c.UserID,
			Kind:       OpKind(c.ChangeType),
			Start:      c.StartPosition,
			End:        c.EndPosition,
			OldContent: c.OldContent,
			NewContent: c.NewContent,
		})
	}
	return ops, true, nil
}

func (s *GormStore) OpenSession(projectID string) error {
	session := models.CollaborationSession{
		ProjectID: projectID,
		IsActive:  true,
		StartedAt: time.Now().UTC(),
	}
	return s.DB.Create(&session).Error
}

func (s *GormStore) CloseSession(projectID string) error {
	now := time.Now().UTC()
	return s.DB.Model(&models.CollaborationSession{}).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Updates(map[string]interface{}{
			"is_active":           false,
			"ended_at":            now,
			"active_participants": datatypes.NewJSONSlice([]string{}),
		}).Error
}

func (s *GormStore) SetSessionUsers(projectID string, userIDs []string) error {
	return s.DB.Model(&models.CollaborationSession{}).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Update("active_participants", datatypes.NewJSONSlice(userIDs)).Error
}

func (s *GormStore) SetVoiceState(projectID string, active bool) error {
	return s.DB.Model(&models.CollaborationSession{}).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Update("voice_channel_active", active).Error
}

func (s *GormStore) SetScreenShare(projectID, userID string, active bool) error {
	updates := map[string]interface{}{
		"screen_share_active": active,
	}
	if active {
		updates["screen_share_user"] = userID
	} else {
		updates["screen_share_user"] = nil
	}
	return s.DB.Model(&models.CollaborationSession{}).
		Where("project_id = ? AND is_active = ?", projectID, true).
		Updates(updates).Error
}

func (s *GormStore) SaveChatMessage(projectID, userID, messageType, content string) error {
	var session models.CollaborationSession
	err := s.DB.Where("project_id = ? AND is_active = ?", projectID, true).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// No live session; keep the message against a fresh one so the
		// transcript survives.
		session = models.CollaborationSession{ProjectID: projectID, IsActive: true, StartedAt: time.Now().UTC()}
		if err := s.DB.Create(&session).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	message := models.ChatMessage{
		SessionID:   session.ID,
		UserID:      userID,
		MessageType: messageType,
		Content:     content,
	}
	return s.DB.Create(&message).Error
}

func (s *GormStore) AwardJoinXP(userID string) error {
	const joinXP = 10

	var progress models.UserProgress
	err := s.DB.Where("user_id = ?", userID).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&progress).Update("total_xp", gorm.Expr("total_xp + ?", joinXP)).Error; err != nil {
			return err
		}
		txn := models.XPTransaction{
			UserProgressID: progress.ID,
			Amount:         joinXP,
			Source:         "collaboration_join",
			Description:    "Joined a team project session",
		}
		return tx.Create(&txn).Error
	})
}
