package access

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fintrack/internal/apperror"
	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	authrepo "github.com/smallbiznis/fintrack/internal/auth/repository"
	authservice "github.com/smallbiznis/fintrack/internal/auth/service"
	"github.com/smallbiznis/fintrack/internal/clock"
	"github.com/smallbiznis/fintrack/internal/config"
	licenseclient "github.com/smallbiznis/fintrack/internal/license/client"
	licensedomain "github.com/smallbiznis/fintrack/internal/license/domain"
	"github.com/smallbiznis/fintrack/internal/license/hardware"
	licenserepo "github.com/smallbiznis/fintrack/internal/license/repository"
	licenseservice "github.com/smallbiznis/fintrack/internal/license/service"
	recurringdomain "github.com/smallbiznis/fintrack/internal/recurring/domain"
	"github.com/smallbiznis/fintrack/internal/sessionstate"
	"github.com/smallbiznis/fintrack/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const goodKey = "GOOD-KEY-0000-0001"

type licenseServer struct {
	srv   *httptest.Server
	calls atomic.Int32
	valid atomic.Bool
}

func newLicenseServer(t *testing.T) *licenseServer {
	t.Helper()
	ls := &licenseServer{}
	ls.valid.Store(true)
	ls.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ls.calls.Add(1)
		var req licensedomain.ValidateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := licensedomain.RemoteResponse{Valid: ls.valid.Load() && req.LicenseKey == goodKey, Features: []string{"reports"}}
		if !resp.Valid {
			resp.Message = "Invalid license key"
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(ls.srv.Close)
	return ls
}

type countingRecurring struct {
	recurringdomain.Service
	calls atomic.Int32
}

func (c *countingRecurring) ProcessDue(context.Context, time.Time) (int, error) {
	c.calls.Add(1)
	return 2, nil
}

type noHardware struct{}

func (noHardware) Attributes(context.Context) hardware.Attributes { return hardware.Attributes{Hostname: "test"} }
func (noHardware) PrimaryIPv4(context.Context) string { return "" }

type fixture struct {
	gate      *Gate
	auth      authdomain.Service
	store     sessionstate.Store
	clock     *clock.FakeClock
	server    *licenseServer
	recurring *countingRecurring
}

func newFixture(t *testing.T, licensing bool) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&authdomain.User{}, &authdomain.Session{}, &licensedomain.Record{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	server := newLicenseServer(t)

	cfg := config.Config{
		AppVersion: "1.0.0",
		License: config.LicenseConfig{
			Enabled:            licensing,
			APIURL:             server.srv.URL,
			CacheDuration:      time.Hour,
			OfflineGracePeriod: 7 * 24 * time.Hour,
		},
		Session: config.SessionConfig{
			TTL:                    24 * time.Hour,
			IdleTimeout:            30 * time.Minute,
			LicenseRecheckInterval: 10 * time.Minute,
		},
		Recurring: config.RecurringConfig{ProcessOnLogin: true},
	}

	users, sessions := authrepo.New(conn)
	auth := authservice.New(authservice.Params{
		Log:         zap.NewNop(),
		Repo:        users,
		SessionRepo: sessions,
		GenID:       node,
		Clock:       fake,
		Config:      cfg,
	})
	license := licenseservice.New(licenseservice.Params{
		Log:      zap.NewNop(),
		Config:   cfg,
		Repo:     licenserepo.Provide(conn),
		Client:   licenseclient.NewWithHTTPClient(server.srv.URL, server.srv.Client()),
		Keys:     auth,
		Clock:    fake,
		Hardware: noHardware{},
	})
	store := sessionstate.NewMemoryStore(fake)
	recurring := &countingRecurring{}

	gate := New(Params{
		Log:       zap.NewNop(),
		Auth:      auth,
		License:   license,
		Recurring: recurring,
		Store:     store,
		Clock:     fake,
		Config:    cfg,
	})
	return &fixture{gate: gate, auth: auth, store: store, clock: fake, server: server, recurring: recurring}
}

func (f *fixture) user(t *testing.T, name string, role authdomain.Role) *authdomain.User {
	t.Helper()
	u, err := f.auth.CreateUser(context.Background(), authdomain.CreateUserRequest{
		Username: name,
		Password: "password-" + name,
		Role:     role,
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) login(t *testing.T, name string) *LoginOutcome {
	t.Helper()
	outcome, err := f.gate.Login(context.Background(), authdomain.LoginRequest{Username: name, Password: "password-" + name})
	require.NoError(t, err)
	return outcome
}

func TestLoginWithoutKeyStaysPending(t *testing.T) {
	f := newFixture(t, true)
	f.user(t, "admin", authdomain.RoleAdmin)

	outcome := f.login(t, "admin")

	assert.Equal(t, StatePendingLicense, outcome.State)
	assert.Equal(t, ErrNoGlobalLicense.Error(), outcome.Reason)
	assert.EqualValues(t, 0, f.server.calls.Load())
	assert.EqualValues(t, 0, f.recurring.calls.Load())

	actor, err := f.gate.Check(context.Background(), outcome.RawToken)
	require.NoError(t, err)
	assert.Equal(t, StatePendingLicense, actor.State())
}

func TestAdminSubmitsKeyAndAuthenticates(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.user(t, "admin", authdomain.RoleAdmin)
	outcome := f.login(t, "admin")

	_, err := f.gate.SubmitLicenseKey(ctx, outcome.RawToken, "BAD-KEY")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindValidationFailure))

	submitted, err := f.gate.SubmitLicenseKey(ctx, outcome.RawToken, goodKey)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, submitted.State)
	assert.Equal(t, 2, submitted.Processed)
	assert.EqualValues(t, 1, f.recurring.calls.Load())

	key, err := f.auth.GetLicenseKey(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, goodKey, key)

	state, err := f.store.Load(ctx, submitted.Session.ID.String())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Valid)
	assert.Equal(t, goodKey, state.LicenseKey)

	actor, err := f.gate.Check(ctx, outcome.RawToken)
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, actor.State())
}

func TestNonAdminCannotSubmitKey(t *testing.T) {
	f := newFixture(t, true)
	f.user(t, "bob", authdomain.RoleUser)
	outcome := f.login(t, "bob")

	_, err := f.gate.SubmitLicenseKey(context.Background(), outcome.RawToken, goodKey)

	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindPermissionDenied))
	assert.EqualValues(t, 0, f.server.calls.Load())
}

func TestLoginWithStoredKeyAuthenticates(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.user(t, "admin", authdomain.RoleAdmin)
	f.user(t, "viewer", authdomain.RoleViewer)
	require.NoError(t, f.auth.SetLicenseKey(ctx, admin.ID, goodKey))

	outcome := f.login(t, "viewer")

	assert.Equal(t, StateAuthenticated, outcome.State)
	assert.Empty(t, outcome.Reason)
	assert.EqualValues(t, 1, f.server.calls.Load())
	assert.EqualValues(t, 1, f.recurring.calls.Load())
}

func TestLoginWithRejectedKeyStaysPending(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.user(t, "admin", authdomain.RoleAdmin)
	require.NoError(t, f.auth.SetLicenseKey(ctx, admin.ID, "REVOKED-KEY"))

	outcome := f.login(t, "admin")

	assert.Equal(t, StatePendingLicense, outcome.State)
	assert.Equal(t, "Invalid license key", outcome.Reason)
}

func TestLoginWithLicensingDisabled(t *testing.T) {
	f := newFixture(t, false)
	f.user(t, "bob", authdomain.RoleUser)

	outcome := f.login(t, "bob")

	assert.Equal(t, StateAuthenticated, outcome.State)
	assert.EqualValues(t, 0, f.server.calls.Load())
}

func TestPeriodicRecheckExpiresRevokedLicense(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.user(t, "admin", authdomain.RoleAdmin)
	require.NoError(t, f.auth.SetLicenseKey(ctx, admin.ID, goodKey))
	outcome := f.login(t, "admin")
	require.Equal(t, StateAuthenticated, outcome.State)

	f.clock.Advance(5 * time.Minute)
	_, err := f.gate.Check(ctx, outcome.RawToken)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.server.calls.Load())

	f.server.valid.Store(false)
	f.clock.Advance(11 * time.Minute)
	_, err = f.gate.Check(ctx, outcome.RawToken)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLicenseRejected)
	assert.EqualValues(t, 2, f.server.calls.Load())

	_, err = f.gate.Check(ctx, outcome.RawToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionRevoked)
	state, err := f.store.Load(ctx, outcome.Session.ID.String())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestPeriodicRecheckRefreshesTimestamp(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.user(t, "admin", authdomain.RoleAdmin)
	require.NoError(t, f.auth.SetLicenseKey(ctx, admin.ID, goodKey))
	outcome := f.login(t, "admin")

	f.clock.Advance(11 * time.Minute)
	actor, err := f.gate.Check(ctx, outcome.RawToken)

	require.NoError(t, err)
	require.NotNil(t, actor.Session.LicenseCheckedAt)
	assert.True(t, actor.Session.LicenseCheckedAt.Equal(f.clock.Now()))
	assert.EqualValues(t, 2, f.server.calls.Load())
}

func TestIdleTimeoutExpiresSession(t *testing.T) {
	f := newFixture(t, false)
	f.user(t, "bob", authdomain.RoleUser)
	outcome := f.login(t, "bob")

	f.clock.Advance(31 * time.Minute)
	_, err := f.gate.Check(context.Background(), outcome.RawToken)

	assert.ErrorIs(t, err, ErrSessionIdle)
}

func TestLogoutClearsState(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.user(t, "bob", authdomain.RoleUser)
	outcome := f.login(t, "bob")

	actor, err := f.gate.Check(ctx, outcome.RawToken)
	require.NoError(t, err)
	require.NoError(t, f.gate.Logout(ctx, actor))

	_, err = f.gate.Check(ctx, outcome.RawToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionRevoked)
	state, err := f.store.Load(ctx, outcome.Session.ID.String())
	require.NoError(t, err)
	assert.Nil(t, state)
	_, ok := actor.License.State()
	assert.False(t, ok)
}

func TestRevalidateExpiresOnRejection(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.user(t, "admin", authdomain.RoleAdmin)
	require.NoError(t, f.auth.SetLicenseKey(ctx, admin.ID, goodKey))
	outcome := f.login(t, "admin")

	actor, err := f.gate.Check(ctx, outcome.RawToken)
	require.NoError(t, err)
	require.NoError(t, f.gate.Revalidate(ctx, actor))
	assert.EqualValues(t, 2, f.server.calls.Load())

	f.server.valid.Store(false)
	err = f.gate.Revalidate(ctx, actor)
	assert.ErrorIs(t, err, ErrLicenseRejected)

	_, err = f.gate.Check(ctx, outcome.RawToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionRevoked)
}

func TestDeactivateEndsSession(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	admin := f.user(t, "admin", authdomain.RoleAdmin)
	require.NoError(t, f.auth.SetLicenseKey(ctx, admin.ID, goodKey))
	outcome := f.login(t, "admin")

	actor, err := f.gate.Check(ctx, outcome.RawToken)
	require.NoError(t, err)
	result, err := f.gate.Deactivate(ctx, actor)

	require.NoError(t, err)
	assert.True(t, result.RemoteNotified)
	_, err = f.gate.Check(ctx, outcome.RawToken)
	assert.ErrorIs(t, err, authdomain.ErrSessionRevoked)
}
