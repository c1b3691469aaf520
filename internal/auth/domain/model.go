// Package domain contains core types for the auth service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User represents a system user account.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	Username     string       `gorm:"type:text;not null;uniqueIndex" json:"username"`
	Email        string       `gorm:"column:email;type:text" json:"email"`
	PasswordHash string       `gorm:"column:password_hash;type:text;not null" json:"-"`
	Role         Role         `gorm:"column:role;type:text;not null;default:'user'" json:"role"`
	LicenseKey   *string      `gorm:"column:license_key;type:text" json:"-"`
	CreatedAt    time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// SessionState tracks how far a login has progressed through the license gate.
type SessionState string

const (
	SessionStatePending       SessionState = "pending_license"
	SessionStateAuthenticated SessionState = "authenticated"
)

// Session represents a persisted login session.
type Session struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	UserID           snowflake.ID `gorm:"column:user_id;not null;index"`
	SessionTokenHash string       `gorm:"column:session_token_hash;type:text;not null;uniqueIndex"`
	State            SessionState `gorm:"column:state;type:text;not null"`
	UserAgent        string       `gorm:"column:user_agent;type:text"`
	IPAddress        string       `gorm:"column:ip_address;type:text"`
	ExpiresAt        time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt        *time.Time   `gorm:"column:revoked_at"`
	LastSeenAt       time.Time    `gorm:"column:last_seen_at;not null"`
	LicenseCheckedAt *time.Time   `gorm:"column:license_checked_at"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

func (s Session) Authenticated() bool {
	return s.State == SessionStateAuthenticated
}
