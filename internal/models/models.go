package models

import (
	"time"

	"gorm.io/gorm"
)

// Organization is the tenant root. Every query in the system is scoped to
// one organization; the workflow engine additionally uses its timezone to
// anchor calendar-day arithmetic.
type Organization struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Timezone  string         `gorm:"default:'America/New_York'" json:"timezone"` // IANA name, e.g. America/New_York
	Plan      string         `gorm:"default:'trial'" json:"plan"`                // trial, standard, enterprise
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type User struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrganizationID uint           `gorm:"index" json:"organization_id"`
	Email          string         `gorm:"index;not null" json:"email"`
	Name           string         `json:"name"`
	Role           string         `gorm:"default:'user'" json:"role"` // user, manager, admin
	Status         string         `gorm:"default:'active'" json:"status"`
	LastLogin      *time.Time     `json:"last_login"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

type Contact struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	OrganizationID uint           `gorm:"index" json:"organization_id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Phone          string         `json:"phone"`
	Email          string         `json:"email"`
	Source         string         `json:"source"` // web, referral, import
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// Account is a customer account with a renewal date. Accounts nearing
// renewal are the candidate set for the workflow rules engine.
type Account struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	OrganizationID  uint           `gorm:"index" json:"organization_id"`
	AccountName     string         `gorm:"not null" json:"account_name"`
	ContactID       uint           `gorm:"index" json:"contact_id"`
	NextRenewalDate *time.Time     `gorm:"index" json:"next_renewal_date"` // date-valued, stored at midnight UTC
	CreatedBy       uint           `json:"created_by"`                     // owning user
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`

	Contact Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

// Interaction is an activity record against a contact/account. The workflow
// engine materializes tasks as interactions of type "task"; everything else
// (calls, notes, emails) is written by the rest of the CRM.
type Interaction struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	OrganizationID   uint       `gorm:"index" json:"organization_id"`
	ContactID        uint       `gorm:"index" json:"contact_id"`
	AccountID        uint       `gorm:"index" json:"account_id"`
	InteractionType  string     `gorm:"index;not null" json:"interaction_type"` // task, call, note, email
	Subject          string     `json:"subject"`
	Description      string     `gorm:"type:text" json:"description"`
	Priority         string     `json:"priority"`                       // low, medium, high
	Status           string     `gorm:"index;default:'pending'" json:"status"` // pending, in_progress, completed, cancelled
	ScheduledAt      *time.Time `json:"scheduled_at"`
	UserID           uint       `gorm:"not null" json:"user_id"` // assignee, storage requires non-null
	ActivityMetadata string     `gorm:"type:text" json:"activity_metadata"` // JSON: {rule_id, trigger_type, entity_type}
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
