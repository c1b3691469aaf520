// Package sessionstate keeps per-session license state out of the main
// database. Entries live in Redis when it is configured and in process
// memory otherwise.
package sessionstate

import (
	"context"
	"time"

	licensedomain "github.com/smallbiznis/fintrack/internal/license/domain"
)

type Store interface {
	// Load returns nil without error when the session has no state.
	Load(ctx context.Context, sessionID string) (*licensedomain.SessionState, error)
	Save(ctx context.Context, sessionID string, state licensedomain.SessionState, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}
