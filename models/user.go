package models

import (
	"time"
)

// User represents a learner account in the system
type User struct {
	ID string `gorm:"primaryKey" json:"id"`

	// Authentication fields
	Email         string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash  string `gorm:"not null" json:"-"`
	EmailVerified bool   `gorm:"default:false" json:"email_verified"`

	// Profile information
	Username  string  `gorm:"uniqueIndex;not null" json:"username"`
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Bio       *string `json:"bio,omitempty"`
	Timezone  string  `gorm:"default:'UTC'" json:"timezone"`

	// Learning profile
	SelectedField    string `gorm:"default:''" json:"selected_field"` // web-dev, data-science, mobile
	ProficiencyLevel string `gorm:"default:'beginner'" json:"proficiency_level"`

	// Account status
	IsActive     bool `gorm:"default:true" json:"is_active"`
	IsAdmin      bool `gorm:"default:false" json:"is_admin"`
	TokenVersion int  `gorm:"default:0" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Progress *UserProgress `gorm:"foreignKey:UserID" json:"progress,omitempty"`
}
