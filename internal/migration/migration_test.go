package migration

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/fintrack/internal/auth/domain"
	authrepo "github.com/smallbiznis/fintrack/internal/auth/repository"
	authservice "github.com/smallbiznis/fintrack/internal/auth/service"
	"github.com/smallbiznis/fintrack/internal/clock"
	"github.com/smallbiznis/fintrack/internal/config"
	"github.com/smallbiznis/fintrack/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func migratedDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	require.NoError(t, RunMigrations(sqlDB, db.TypeSQLite))
	return conn
}

func newAuth(t *testing.T, conn *gorm.DB) authdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	users, sessions := authrepo.New(conn)
	return authservice.New(authservice.Params{
		Log:         zap.NewNop(),
		Repo:        users,
		SessionRepo: sessions,
		GenID:       node,
		Clock:       clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		Config:      config.Config{},
	})
}

func TestRunMigrationsCreatesSchema(t *testing.T) {
	conn := migratedDB(t)

	for _, table := range []string{"users", "sessions", "license_cache", "categories", "transactions", "recurring_transactions"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
	assert.True(t, conn.Migrator().HasColumn("transactions", "recurring_transaction_id"))

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	version, dirty, err := Version(sqlDB, db.TypeSQLite)
	require.NoError(t, err)
	assert.EqualValues(t, 1, version)
	assert.False(t, dirty)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	conn := migratedDB(t)
	sqlDB, err := conn.DB()
	require.NoError(t, err)

	assert.NoError(t, RunMigrations(sqlDB, db.TypeSQLite))
}

func TestRunMigrationsRejectsUnknownDialect(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)

	assert.Error(t, RunMigrations(sqlDB, "oracle"))
	assert.Error(t, RunMigrations(nil, db.TypeSQLite))
}

func TestEnsureBootstrapAdmin(t *testing.T) {
	conn := migratedDB(t)
	auth := newAuth(t, conn)
	ctx := context.Background()
	cfg := config.BootstrapConfig{AdminUsername: "owner", AdminPassword: "owner-password"}

	require.NoError(t, EnsureBootstrapAdmin(ctx, auth, cfg, zap.NewNop()))
	require.NoError(t, EnsureBootstrapAdmin(ctx, auth, cfg, zap.NewNop()))

	admins, err := auth.ListAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "owner", admins[0].Username)

	user, err := auth.VerifyCredentials(ctx, "owner", "owner-password")
	require.NoError(t, err)
	assert.Equal(t, authdomain.RoleAdmin, user.Role)
}

func TestEnsureBootstrapAdminSkipsWithoutUsername(t *testing.T) {
	conn := migratedDB(t)
	auth := newAuth(t, conn)
	ctx := context.Background()

	require.NoError(t, EnsureBootstrapAdmin(ctx, auth, config.BootstrapConfig{}, zap.NewNop()))
	count, err := auth.CountUsers(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	err = EnsureBootstrapAdmin(ctx, auth, config.BootstrapConfig{AdminUsername: "owner"}, zap.NewNop())
	assert.Error(t, err)
}
