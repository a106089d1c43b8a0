package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ProjectRole identifies what a participant does on a team project
type ProjectRole string

const (
	RoleLeader      ProjectRole = "leader"
	RoleFrontend    ProjectRole = "frontend_developer"
	RoleBackend     ProjectRole = "backend_developer"
	RoleDesigner    ProjectRole = "ui_ux_designer"
	RoleData        ProjectRole = "data_scientist"
	RoleDevOps      ProjectRole = "devops_engineer"
	RoleContributor ProjectRole = "contributor"
)

// Valid reports whether the role is one of the known project roles
func (r ProjectRole) Valid() bool {
	switch r {
	case RoleLeader, RoleFrontend, RoleBackend, RoleDesigner, RoleData, RoleDevOps, RoleContributor:
		return true
	}
	return false
}

// ParticipantStatus is the live presence state of a participant
type ParticipantStatus string

const (
	StatusOnline  ParticipantStatus = "online"
	StatusAway    ParticipantStatus = "away"
	StatusBusy    ParticipantStatus = "busy"
	StatusOffline ParticipantStatus = "offline"
)

// Permission is a single capability flag on a project
type Permission uint8

const (
	PermissionRead Permission = 1 << iota
	PermissionWrite
	PermissionAdmin
	PermissionManageUsers
	PermissionManageRoles
)

var permissionNames = map[Permission]string{
	PermissionRead:        "read",
	PermissionWrite:       "write",
	PermissionAdmin:       "admin",
	PermissionManageUsers: "manage_users",
	PermissionManageRoles: "manage_roles",
}

// PermissionSet is a bitset of Permission flags, stored as a single integer
// column but serialized to JSON as the list of permission names
type PermissionSet uint8

// Has reports whether every flag in p is present in the set
func (s PermissionSet) Has(p Permission) bool {
	return s&PermissionSet(p) == PermissionSet(p)
}

// With returns a copy of the set with the given flags added
func (s PermissionSet) With(perms ...Permission) PermissionSet {
	for _, p := range perms {
		s |= PermissionSet(p)
	}
	return s
}

// Strings returns the names of the permissions in the set
func (s PermissionSet) Strings() []string {
	out := []string{}
	for _, p := range []Permission{PermissionRead, PermissionWrite, PermissionAdmin, PermissionManageUsers, PermissionManageRoles} {
		if s.Has(p) {
			out = append(out, permissionNames[p])
		}
	}
	return out
}

// ParsePermissions converts a list of permission names into a set. Unknown
// names are rejected so bad input is caught at the boundary.
func ParsePermissions(names []string) (PermissionSet, error) {
	var set PermissionSet
	for _, name := range names {
		found := false
		for p, n := range permissionNames {
			if n == name {
				set |= PermissionSet(p)
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown permission %q", name)
		}
	}
	return set, nil
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Strings())
}

func (s *PermissionSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	parsed, err := ParsePermissions(names)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// DefaultLeaderPermissions is granted to the project creator
func DefaultLeaderPermissions() PermissionSet {
	return PermissionSet(0).With(PermissionRead, PermissionWrite, PermissionAdmin, PermissionManageUsers, PermissionManageRoles)
}

// DefaultMemberPermissions is granted to anyone who joins a project
func DefaultMemberPermissions() PermissionSet {
	return PermissionSet(0).With(PermissionRead, PermissionWrite)
}

// TeamProject represents a shared workspace owned by a team
type TeamProject struct {
	ID          string `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	CreatedBy   string `gorm:"not null;index" json:"created_by"`

	// Project settings
	DifficultyLevel  string `gorm:"not null;default:'intermediate'" json:"difficulty_level"` // beginner, intermediate, advanced
	MaxTeamSize      int    `gorm:"default:5" json:"max_team_size"`
	MinTeamSize      int    `gorm:"default:2" json:"min_team_size"`
	IsPublic         bool   `gorm:"default:true" json:"is_public"`
	RequiresApproval bool   `gorm:"default:false" json:"requires_approval"`

	// Project state
	Status             string `gorm:"not null;default:'active'" json:"status"` // active, completed, paused, cancelled
	ProgressPercentage int    `gorm:"default:0" json:"progress_percentage"`

	// Collaboration settings
	AllowVoiceChat   bool `gorm:"default:true" json:"allow_voice_chat"`
	AllowScreenShare bool `gorm:"default:true" json:"allow_screen_share"`
	AutoSaveInterval int  `gorm:"default:30" json:"auto_save_interval"` // seconds

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Relations
	Participants []ProjectParticipant   `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	Sessions     []CollaborationSession `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"sessions,omitempty"`
	Files        []ProjectFile          `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"files,omitempty"`
}

// ProjectParticipant represents a user's membership in a team project.
// There is at most one row per (project, user) pair; role changes mutate
// the existing row.
type ProjectParticipant struct {
	ID        string `gorm:"primaryKey" json:"id"`
	ProjectID string `gorm:"not null;index;uniqueIndex:idx_project_user" json:"project_id"`
	UserID    string `gorm:"not null;index;uniqueIndex:idx_project_user" json:"user_id"`

	// Role and permissions
	Role        ProjectRole   `gorm:"not null;default:'contributor'" json:"role"`
	Permissions PermissionSet `gorm:"not null;default:0" json:"permissions"`

	// Participation details
	JoinedAt   time.Time         `json:"joined_at"`
	LastActive time.Time         `json:"last_active"`
	Status     ParticipantStatus `gorm:"default:'offline'" json:"status"`

	// Contribution tracking
	LinesContributed int     `gorm:"default:0" json:"lines_contributed"`
	CommitsMade      int     `gorm:"default:0" json:"commits_made"`
	HoursContributed float64 `gorm:"default:0" json:"hours_contributed"`

	// Relations
	Project         TeamProject      `json:"-"`
	CursorPositions []CursorPosition `gorm:"foreignKey:ParticipantID;constraint:OnDelete:CASCADE" json:"-"`
}

// CollaborationSession represents an active real-time editing session on a
// project. One is opened when the first participant connects to the room and
// closed when the last one leaves.
type CollaborationSession struct {
	ID          string `gorm:"primaryKey" json:"id"`
	ProjectID   string `gorm:"not null;index" json:"project_id"`
	SessionName string `json:"session_name,omitempty"`

	// Session state
	IsActive  bool       `gorm:"default:true" json:"is_active"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`

	// Live state, maintained by the collaboration manager
	ActiveParticipants datatypes.JSONSlice[string] `json:"active_participants"`
	ActiveFiles        datatypes.JSONSlice[string] `json:"active_files"`

	// Communication state
	VoiceChannelActive bool    `gorm:"default:false" json:"voice_channel_active"`
	ScreenShareActive  bool    `gorm:"default:false" json:"screen_share_active"`
	ScreenShareUser    *string `json:"screen_share_user,omitempty"`

	// Relations
	Project  TeamProject   `json:"-"`
	Messages []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
}

// ProjectFile is a named, versioned text artifact within a project. Version
// increases monotonically with every accepted change.
type ProjectFile struct {
	ID        string `gorm:"primaryKey" json:"id"`
	ProjectID string `gorm:"not null;index" json:"project_id"`

	// File details
	Filename string `gorm:"not null" json:"filename"`
	FilePath string `gorm:"not null" json:"file_path"`
	FileType string `gorm:"not null" json:"file_type"` // file extension
	Language string `json:"language,omitempty"`

	// Content and versioning
	Content        string    `json:"content"`
	Version        int       `gorm:"default:1" json:"version"`
	LastModifiedBy string    `json:"last_modified_by,omitempty"`
	LastModifiedAt time.Time `json:"last_modified_at"`

	// Exclusive edit lock
	IsLocked bool       `gorm:"default:false" json:"is_locked"`
	LockedBy *string    `json:"locked_by,omitempty"`
	LockedAt *time.Time `json:"locked_at,omitempty"`

	// Relations
	Project TeamProject  `json:"-"`
	Changes []FileChange `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE" json:"-"`
}

// FileChange is an immutable record of a single accepted edit. The log per
// file is append-only; rows are never updated after insertion.
type FileChange struct {
	ID     string `gorm:"primaryKey" json:"id"`
	FileID string `gorm:"not null;index" json:"file_id"`
	UserID string `gorm:"not null" json:"user_id"`

	// Change details, [start, end) character range
	ChangeType    string `gorm:"not null" json:"change_type"` // insert, delete, replace
	StartPosition int    `gorm:"not null" json:"start_position"`
	EndPosition   int    `gorm:"not null" json:"end_position"`
	OldContent    string `json:"old_content"`
	NewContent    string `json:"new_content"`

	// Operational transform chain
	OperationID       string `gorm:"not null;uniqueIndex" json:"operation_id"`
	ParentOperationID string `json:"parent_operation_id"`

	// Sequence number within the file's log, assigned at acceptance
	Sequence int `gorm:"not null;index" json:"sequence"`

	CreatedAt time.Time  `json:"created_at"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`

	// Relations
	File ProjectFile `json:"-"`
}

// CursorPosition is the ephemeral pointer of a participant within a file,
// overwritten on every move. Not part of the durable edit history.
type CursorPosition struct {
	ID            string `gorm:"primaryKey" json:"id"`
	ParticipantID string `gorm:"not null;index" json:"participant_id"`
	FileID        string `gorm:"not null;index" json:"file_id"`

	Line           int  `gorm:"not null" json:"line"`
	Column         int  `gorm:"not null" json:"column"`
	SelectionStart *int `json:"selection_start,omitempty"`
	SelectionEnd   *int `json:"selection_end,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Participant ProjectParticipant `json:"-"`
}

// ChatMessage is an append-only message within a collaboration session
type ChatMessage struct {
	ID        string `gorm:"primaryKey" json:"id"`
	SessionID string `gorm:"not null;index" json:"session_id"`
	UserID    string `gorm:"not null" json:"user_id"`

	MessageType string            `gorm:"not null;default:'text'" json:"message_type"` // text, system, file_shared
	Content     string            `gorm:"not null" json:"content"`
	Metadata    datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	EditedAt    *time.Time        `json:"edited_at,omitempty"`

	// Relations
	Session CollaborationSession `json:"-"`
}

// TeamInvitation represents a pending invite to join a project
type TeamInvitation struct {
	ID            string `gorm:"primaryKey" json:"id"`
	ProjectID     string `gorm:"not null;index" json:"project_id"`
	InvitedUserID string `gorm:"not null;index" json:"invited_user_id"`
	InvitedBy     string `gorm:"not null" json:"invited_by"`

	Role    ProjectRole `gorm:"not null;default:'contributor'" json:"role"`
	Message string      `json:"message,omitempty"`

	Status    string     `gorm:"not null;default:'pending'" json:"status"` // pending, accepted, declined, expired
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// CollaborationStats aggregates a user's activity on a project
type CollaborationStats struct {
	gorm.Model
	UserID    string `gorm:"not null;index" json:"user_id"`
	ProjectID string `gorm:"not null;index" json:"project_id"`

	// Session statistics
	TotalSessions int        `gorm:"default:0" json:"total_sessions"`
	TotalHours    float64    `gorm:"default:0" json:"total_hours"`
	LastSessionAt *time.Time `json:"last_session_at,omitempty"`

	// Contribution statistics
	LinesWritten  int `gorm:"default:0" json:"lines_written"`
	LinesDeleted  int `gorm:"default:0" json:"lines_deleted"`
	FilesCreated  int `gorm:"default:0" json:"files_created"`
	FilesModified int `gorm:"default:0" json:"files_modified"`

	// Communication statistics
	MessagesSent       int     `gorm:"default:0" json:"messages_sent"`
	VoiceMinutes       float64 `gorm:"default:0" json:"voice_minutes"`
	ScreenShareMinutes float64 `gorm:"default:0" json:"screen_share_minutes"`
}
