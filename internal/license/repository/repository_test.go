package repository

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/fintrack/internal/license/domain"
	"github.com/smallbiznis/fintrack/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Record{}))
	return Provide(conn)
}

func TestUpsertKeepsSingleRowPerKey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	first := &domain.Record{
		LicenseKey:      "KEY-1",
		HardwareID:      "hw",
		LastValidatedAt: now,
		IsValid:         true,
		Features:        datatypes.NewJSONSlice([]string{"reports"}),
		CreatedAt:       now,
	}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &domain.Record{
		LicenseKey:        "KEY-1",
		HardwareID:        "hw",
		ValidationPayload: datatypes.JSON(`{"valid":true}`),
		LastValidatedAt:   now.Add(time.Minute),
		IsValid:           true,
		Features:          datatypes.NewJSONSlice([]string{"reports", "multi_user"}),
		CreatedAt:         now.Add(time.Minute),
	}
	require.NoError(t, repo.Upsert(ctx, second))

	got, err := repo.GetByKey(ctx, "KEY-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"reports", "multi_user"}, []string(got.Features))
	assert.True(t, got.LastValidatedAt.Equal(now.Add(time.Minute)))
}

func TestDeleteByKeyAndAll(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, key := range []string{"A", "B"} {
		require.NoError(t, repo.Upsert(ctx, &domain.Record{LicenseKey: key, HardwareID: "hw", LastValidatedAt: now, IsValid: true, CreatedAt: now}))
	}

	require.NoError(t, repo.DeleteByKey(ctx, "A"))
	_, err := repo.GetByKey(ctx, "A")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.DeleteAll(ctx))
	_, err = repo.GetByKey(ctx, "B")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpsertRejectsEmptyKey(t *testing.T) {
	repo := newTestRepo(t)
	assert.ErrorIs(t, repo.Upsert(context.Background(), &domain.Record{}), domain.ErrNoLicenseKey)
}
