package models

import (
	"time"

	"gorm.io/datatypes"
)

// UserProgress tracks a user's level, XP and streaks. One row per user.
type UserProgress struct {
	ID     string `gorm:"primaryKey" json:"id"`
	UserID string `gorm:"uniqueIndex;not null" json:"user_id"`

	Level         int `gorm:"not null;default:1" json:"level"`
	TotalXP       int `gorm:"not null;default:0" json:"total_xp"`
	CurrentStreak int `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak int `gorm:"not null;default:0" json:"longest_streak"`

	ProjectsCompleted int `gorm:"not null;default:0" json:"projects_completed"`

	SkillPoints      datatypes.JSONMap           `json:"skill_points,omitempty"`      // {"python": 100, "go": 50}
	UnlockedFeatures datatypes.JSONSlice[string] `json:"unlocked_features,omitempty"` // ["collaboration", "mentoring"]

	LastActiveDate time.Time `json:"last_active_date"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Relations
	XPTransactions []XPTransaction `gorm:"foreignKey:UserProgressID" json:"xp_transactions,omitempty"`
	Badges         []UserBadge     `gorm:"foreignKey:UserProgressID" json:"badges,omitempty"`
}

// CollaborationUnlocked reports whether the user has met the gate for team
// projects: level 3 and five completed solo projects.
func (p *UserProgress) CollaborationUnlocked() bool {
	return p.Level >= 3 && p.ProjectsCompleted >= 5
}

// XPTransaction is one XP award with its reason, append-only
type XPTransaction struct {
	ID             string `gorm:"primaryKey" json:"id"`
	UserProgressID string `gorm:"not null;index" json:"user_progress_id"`

	Amount      int    `gorm:"not null" json:"amount"`
	Source      string `gorm:"not null" json:"source"` // project_completion, collaboration_join, streak_bonus
	Description string `json:"description,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Badge is an earnable achievement definition
type Badge struct {
	ID          string `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:100;not null" json:"name"`
	Description string `gorm:"not null" json:"description"`
	Icon        string `gorm:"size:50;not null" json:"icon"`
	Category    string `gorm:"size:20;not null" json:"category"` // completion, skill, social, special
	Rarity      string `gorm:"size:20;default:'common'" json:"rarity"`
	XPReward    int    `gorm:"default:0" json:"xp_reward"`

	Requirements datatypes.JSONMap `json:"requirements,omitempty"` // {"projects_completed": 5}
	IsActive     bool              `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time         `json:"created_at"`
}

// UserBadge links a badge to the user who earned it
type UserBadge struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	UserProgressID string    `gorm:"not null;index" json:"user_progress_id"`
	BadgeID        string    `gorm:"not null;index" json:"badge_id"`
	EarnedDate     time.Time `json:"earned_date"`

	// Relations
	Badge Badge `json:"badge,omitempty"`
}
