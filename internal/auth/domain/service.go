package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	CountUsers(ctx context.Context) (int64, error)
	VerifyCredentials(ctx context.Context, username, password string) (*User, error)
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	ListAdmins(ctx context.Context) ([]User, error)
	ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error

	GetLicenseKey(ctx context.Context, userID snowflake.ID) (string, error)
	SetLicenseKey(ctx context.Context, userID snowflake.ID, key string) error
	FindAnyLicenseKey(ctx context.Context) (string, error)

	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
	GetSession(ctx context.Context, id snowflake.ID) (*Session, error)
	TouchSession(ctx context.Context, sessionID snowflake.ID, at time.Time) error
	MarkAuthenticated(ctx context.Context, sessionID snowflake.ID, checkedAt time.Time) error
	MarkLicenseChecked(ctx context.Context, sessionID snowflake.ID, checkedAt time.Time) error
	RevokeSession(ctx context.Context, sessionID snowflake.ID) error
}

type CreateUserRequest struct {
	Username string
	Email    string
	Password string
	Role     Role
}

type LoginRequest struct {
	Username  string
	Password  string
	UserAgent string
	IPAddress string
}

// LoginResult describes a freshly created session, which always starts in
// SessionStatePending.
type LoginResult struct {
	User      *User
	Session   *Session
	RawToken  string
	ExpiresAt time.Time
}
