package db

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/fintrack/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestIsTransientErr(t *testing.T) {
	assert.True(t, IsTransientErr(&pgconn.PgError{Code: "40001"}))
	assert.True(t, IsTransientErr(&pgconn.PgError{Code: "40P01"}))
	assert.True(t, IsTransientErr(&pgconn.PgError{Code: "55P03"}))
	assert.False(t, IsTransientErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsTransientErr(errors.New("database is locked")))
	assert.False(t, IsTransientErr(errors.New("no such table: users")))
	assert.False(t, IsTransientErr(nil))
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.True(t, IsDuplicateKeyErr(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: users.username")))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "fintrack.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN(""))
	assert.Equal(t, "data.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", sqliteDSN("data.db?cache=shared"))
}

func TestMySQLDSNAllowsMultiStatements(t *testing.T) {
	dsn := mysqlDSN(config.Config{
		DBUser:     "fin",
		DBPassword: "secret",
		DBHost:     "db",
		DBPort:     "3306",
		DBName:     "fintrack",
	})
	assert.Equal(t, "fin:secret@tcp(db:3306)/fintrack?charset=utf8mb4&parseTime=True&loc=UTC&multiStatements=true", dsn)

	d, err := Dialect(config.Config{DBType: TypeMySQL, DBHost: "db", DBPort: "3306"})
	require.NoError(t, err)
	assert.Equal(t, TypeMySQL, d.Name())
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(config.Config{DBType: "oracle"})
	require.Error(t, err)

	d, err := Dialect(config.Config{DBType: TypePostgres, DBHost: "localhost"})
	require.NoError(t, err)
	assert.Equal(t, TypePostgres, d.Name())
}

func TestNewTestIsolated(t *testing.T) {
	type row struct {
		ID   int64
		Name string
	}

	first, err := NewTest()
	require.NoError(t, err)
	require.NoError(t, first.AutoMigrate(&row{}))
	require.NoError(t, first.Create(&row{ID: 1, Name: "one"}).Error)

	second, err := NewTest()
	require.NoError(t, err)
	assert.False(t, second.Migrator().HasTable(&row{}))
	assert.False(t, SupportsRowLocks(second))
}
