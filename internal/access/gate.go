package access

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/fintrack/internal/apperror"
	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	"github.com/smallbiznis/fintrack/internal/clock"
	"github.com/smallbiznis/fintrack/internal/config"
	licensedomain "github.com/smallbiznis/fintrack/internal/license/domain"
	"github.com/smallbiznis/fintrack/internal/observability/metrics"
	recurringdomain "github.com/smallbiznis/fintrack/internal/recurring/domain"
	"github.com/smallbiznis/fintrack/internal/sessionstate"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultIdleTimeout    = 30 * time.Minute
	defaultRecheckPeriod  = 30 * time.Minute
	defaultStateRetention = 24 * time.Hour
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Auth      authdomain.Service
	License   licensedomain.Service
	Recurring recurringdomain.Service `optional:"true"`
	Store     sessionstate.Store
	Clock     clock.Clock
	Config    config.Config
	Metrics   *metrics.Metrics `optional:"true"`
}

type Gate struct {
	log       *zap.Logger
	auth      authdomain.Service
	license   licensedomain.Service
	recurring recurringdomain.Service
	store     sessionstate.Store
	clock     clock.Clock
	metrics   *metrics.Metrics

	idleTimeout    time.Duration
	recheckPeriod  time.Duration
	processOnLogin bool
}

func New(p Params) *Gate {
	idle := p.Config.Session.IdleTimeout
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	recheck := p.Config.Session.LicenseRecheckInterval
	if recheck <= 0 {
		recheck = defaultRecheckPeriod
	}
	return &Gate{
		log:            p.Log.Named("access.gate"),
		auth:           p.Auth,
		license:        p.License,
		recurring:      p.Recurring,
		store:          p.Store,
		clock:          p.Clock,
		metrics:        p.Metrics,
		idleTimeout:    idle,
		recheckPeriod:  recheck,
		processOnLogin: p.Config.Recurring.ProcessOnLogin,
	}
}

// Login verifies credentials and opens a pending session, then tries to
// promote it with the installation license key.
func (g *Gate) Login(ctx context.Context, req authdomain.LoginRequest) (*LoginOutcome, error) {
	result, err := g.auth.Login(ctx, req)
	if err != nil {
		return nil, err
	}
	g.transition(StateNoSession, StatePendingLicense)

	outcome := &LoginOutcome{
		User:      result.User,
		Session:   result.Session,
		RawToken:  result.RawToken,
		ExpiresAt: result.ExpiresAt,
		State:     StatePendingLicense,
	}

	key := ""
	if g.license.Enabled() {
		key, err = g.license.CurrentGlobalLicenseKey(ctx)
		if errors.Is(err, licensedomain.ErrNoLicenseKey) {
			outcome.Reason = ErrNoGlobalLicense.Error()
			g.log.Info("access.login.pending", zap.String("reason", "no_license_key"))
			return outcome, nil
		}
		if err != nil {
			return nil, err
		}
	}

	validation := g.license.Validate(ctx, key, true)
	if !validation.Valid {
		outcome.Reason = validation.Error
		g.log.Info("access.login.pending",
			zap.String("reason", "license_invalid"),
			zap.String("session_id", result.Session.ID.String()),
		)
		return outcome, nil
	}

	if err := g.activate(ctx, outcome, key, validation); err != nil {
		return nil, err
	}
	return outcome, nil
}

// SubmitLicenseKey lets an administrator supply a key for a pending session.
// Non-administrators are rejected before any remote call is made.
func (g *Gate) SubmitLicenseKey(ctx context.Context, rawToken, key string) (*LoginOutcome, error) {
	const op = "access.submit_license"

	session, err := g.auth.Authenticate(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	if session.Authenticated() {
		return nil, apperror.New(apperror.KindInvalidInput, op, ErrNotPending)
	}
	user, err := g.auth.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if !user.Role.CanManageLicense() {
		g.log.Warn("access.license.submit_denied", zap.String("user_id", user.ID.String()))
		return nil, apperror.New(apperror.KindPermissionDenied, op, licensedomain.ErrPermissionDenied)
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperror.New(apperror.KindInvalidInput, op, ErrEmptyLicenseKey)
	}

	outcome := &LoginOutcome{
		User:      user,
		Session:   session,
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
		State:     StatePendingLicense,
	}

	validation := g.license.Validate(ctx, key, true)
	if !validation.Valid {
		outcome.Reason = validation.Error
		return outcome, apperror.New(apperror.KindValidationFailure, op, fmt.Errorf("%w: %s", licensedomain.ErrLicenseInvalid, validation.Error))
	}

	if err := g.auth.SetLicenseKey(ctx, user.ID, key); err != nil {
		return nil, err
	}
	if err := g.activate(ctx, outcome, key, validation); err != nil {
		return nil, err
	}
	g.log.Info("access.license.submitted", zap.String("user_id", user.ID.String()))
	return outcome, nil
}

func (g *Gate) activate(ctx context.Context, outcome *LoginOutcome, key string, validation licensedomain.ValidationResult) error {
	session := outcome.Session
	now := g.clock.Now()

	sc := licensedomain.NewSessionContext(session.ID.String(), nil)
	g.license.StoreInSession(sc, key, validation)
	if err := g.persist(ctx, sc, session); err != nil {
		return err
	}
	if err := g.auth.MarkAuthenticated(ctx, session.ID, now); err != nil {
		return err
	}

	session.State = authdomain.SessionStateAuthenticated
	session.LicenseCheckedAt = &now
	session.LastSeenAt = now
	outcome.State = StateAuthenticated
	outcome.Reason = ""
	g.transition(StatePendingLicense, StateAuthenticated)

	g.log.Info("access.login.authenticated",
		zap.String("user_id", session.UserID.String()),
		zap.String("session_id", session.ID.String()),
	)

	if g.processOnLogin && g.recurring != nil {
		processed, err := g.recurring.ProcessDue(ctx, now)
		if err != nil {
			// login still succeeds; the batch was rolled back
			g.log.Warn("access.login.recurring_failed", zap.Error(err))
			g.metrics.IncError("access.login", err)
		}
		outcome.Processed = processed
	}
	return nil
}

// Check resolves the session behind rawToken and enforces idle timeout and
// the periodic license re-validation. Expired sessions are torn down.
func (g *Gate) Check(ctx context.Context, rawToken string) (*Actor, error) {
	const op = "access.check"

	session, err := g.auth.Authenticate(ctx, rawToken)
	if err != nil {
		return nil, err
	}
	user, err := g.auth.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	state, err := g.store.Load(ctx, session.ID.String())
	if err != nil {
		return nil, err
	}
	actor := &Actor{
		User:    user,
		Session: session,
		License: licensedomain.NewSessionContext(session.ID.String(), state),
	}

	now := g.clock.Now()
	if now.Sub(session.LastSeenAt) > g.idleTimeout {
		g.expire(ctx, actor, "idle")
		return nil, apperror.New(apperror.KindValidationFailure, op, ErrSessionIdle)
	}

	if !session.Authenticated() {
		if err := g.auth.TouchSession(ctx, session.ID, now); err != nil {
			return nil, err
		}
		session.LastSeenAt = now
		return actor, nil
	}

	if g.recheckDue(session, now) {
		if reason, ok := g.recheck(ctx, actor); !ok {
			g.expire(ctx, actor, "license")
			return nil, apperror.New(apperror.KindValidationFailure, op, fmt.Errorf("%w: %s", ErrLicenseRejected, reason))
		}
		if err := g.auth.MarkLicenseChecked(ctx, session.ID, now); err != nil {
			return nil, err
		}
		session.LicenseCheckedAt = &now
	}

	if err := g.auth.TouchSession(ctx, session.ID, now); err != nil {
		return nil, err
	}
	session.LastSeenAt = now

	if err := g.Persist(ctx, actor); err != nil {
		return nil, err
	}
	return actor, nil
}

func (g *Gate) recheckDue(session *authdomain.Session, now time.Time) bool {
	if session.LicenseCheckedAt == nil {
		return true
	}
	return now.Sub(*session.LicenseCheckedAt) > g.recheckPeriod
}

// recheck forces an online validation of the key stored on the session.
func (g *Gate) recheck(ctx context.Context, actor *Actor) (string, bool) {
	key := ""
	if state, ok := actor.License.State(); ok {
		key = state.LicenseKey
	}
	if key == "" && g.license.Enabled() {
		found, err := g.license.CurrentGlobalLicenseKey(ctx)
		if err != nil {
			return ErrNoGlobalLicense.Error(), false
		}
		key = found
	}

	validation := g.license.Validate(ctx, key, true)
	if !validation.Valid {
		g.log.Warn("access.recheck.failed",
			zap.String("session_id", actor.Session.ID.String()),
			zap.String("reason", validation.Error),
		)
		return validation.Error, false
	}
	g.license.StoreInSession(actor.License, key, validation)
	return "", true
}

// Revalidate forces the periodic license check now. A rejected license
// expires the session exactly as Check would.
func (g *Gate) Revalidate(ctx context.Context, actor *Actor) error {
	const op = "access.revalidate"

	if reason, ok := g.recheck(ctx, actor); !ok {
		g.expire(ctx, actor, "license")
		return apperror.New(apperror.KindValidationFailure, op, fmt.Errorf("%w: %s", ErrLicenseRejected, reason))
	}
	now := g.clock.Now()
	if err := g.auth.MarkLicenseChecked(ctx, actor.Session.ID, now); err != nil {
		return err
	}
	actor.Session.LicenseCheckedAt = &now
	return g.Persist(ctx, actor)
}

// Deactivate releases the license from this installation and ends the
// session that asked for it.
func (g *Gate) Deactivate(ctx context.Context, actor *Actor) (*licensedomain.DeactivationResult, error) {
	result, err := g.license.Deactivate(ctx, actor.License, "")
	if err != nil {
		return result, err
	}
	if err := g.Logout(ctx, actor); err != nil {
		return result, err
	}
	return result, nil
}

// Persist writes the session's license state back if a call changed it.
func (g *Gate) Persist(ctx context.Context, actor *Actor) error {
	if actor == nil || !actor.License.Changed() {
		return nil
	}
	return g.persist(ctx, actor.License, actor.Session)
}

func (g *Gate) persist(ctx context.Context, sc *licensedomain.SessionContext, session *authdomain.Session) error {
	state, ok := sc.State()
	if !ok {
		return g.store.Delete(ctx, session.ID.String())
	}
	ttl := session.ExpiresAt.Sub(g.clock.Now())
	if ttl <= 0 {
		ttl = defaultStateRetention
	}
	return g.store.Save(ctx, session.ID.String(), state, ttl)
}

// Logout revokes the session and drops its license state.
func (g *Gate) Logout(ctx context.Context, actor *Actor) error {
	if actor == nil || actor.Session == nil {
		return nil
	}
	from := actor.State()
	if err := g.teardown(ctx, actor); err != nil {
		return err
	}
	g.transition(from, StateLoggedOut)
	g.log.Info("access.logout", zap.String("session_id", actor.Session.ID.String()))
	return nil
}

func (g *Gate) expire(ctx context.Context, actor *Actor, reason string) {
	from := actor.State()
	if err := g.teardown(ctx, actor); err != nil {
		g.log.Warn("access.expire.teardown_failed", zap.Error(err))
	}
	g.transition(from, StateExpired)
	g.log.Info("access.session.expired",
		zap.String("session_id", actor.Session.ID.String()),
		zap.String("reason", reason),
	)
}

func (g *Gate) teardown(ctx context.Context, actor *Actor) error {
	actor.License.Clear()
	if err := g.store.Delete(ctx, actor.Session.ID.String()); err != nil {
		return err
	}
	return g.auth.RevokeSession(ctx, actor.Session.ID)
}

func (g *Gate) transition(from, to State) {
	g.metrics.IncSessionTransition(string(from), string(to))
}
