// Package access runs the per-session gate: credentials first, then the
// installation license, then periodic re-validation while the session lives.
package access

import (
	"errors"
	"time"

	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	licensedomain "github.com/smallbiznis/fintrack/internal/license/domain"
)

type State string

const (
	StateNoSession      State = "no_session"
	StatePendingLicense State = "pending_license"
	StateAuthenticated  State = "authenticated"
	StateExpired        State = "expired"
	StateLoggedOut      State = "logged_out"
)

var (
	ErrNotPending      = errors.New("session is not waiting for a license")
	ErrPendingLicense  = errors.New("session is waiting for a license")
	ErrSessionIdle     = errors.New("session expired after inactivity")
	ErrLicenseRejected = errors.New("license is no longer valid")
	ErrEmptyLicenseKey = errors.New("license key is required")
	ErrNoGlobalLicense = errors.New("no license key is configured for this installation")
)

// Actor is the request-scoped view of an authenticated or pending session.
type Actor struct {
	User    *authdomain.User
	Session *authdomain.Session
	License *licensedomain.SessionContext
}

func (a *Actor) State() State {
	if a == nil || a.Session == nil {
		return StateNoSession
	}
	if a.Session.Authenticated() {
		return StateAuthenticated
	}
	return StatePendingLicense
}

// LoginOutcome is returned by Login and SubmitLicenseKey. A pending outcome
// still carries a usable session token; Reason explains why the license step
// did not pass.
type LoginOutcome struct {
	User      *authdomain.User
	Session   *authdomain.Session
	RawToken  string
	ExpiresAt time.Time
	State     State
	Reason    string
	Processed int
}
