package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fintrack/internal/apperror"
	"github.com/smallbiznis/fintrack/internal/clock"
	"github.com/smallbiznis/fintrack/internal/config"
	ledgerdomain "github.com/smallbiznis/fintrack/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/fintrack/internal/ledger/repository"
	ledgerservice "github.com/smallbiznis/fintrack/internal/ledger/service"
	"github.com/smallbiznis/fintrack/internal/recurring/domain"
	"github.com/smallbiznis/fintrack/internal/recurring/repository"
	"github.com/smallbiznis/fintrack/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc      *Service
	conn     *gorm.DB
	clock    *clock.FakeClock
	category *ledgerdomain.Category
}

func newFixture(t *testing.T, repo domain.Repository) *fixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerdomain.Category{}, &ledgerdomain.Transaction{}, &domain.Template{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))

	ledger := ledgerservice.New(ledgerservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  ledgerrepo.Provide(),
		Clock: fake,
	})
	category, err := ledger.CreateCategory(context.Background(), ledgerdomain.CreateCategoryRequest{
		Name: "Rent",
		Type: ledgerdomain.CategoryTypeExpense,
	})
	require.NoError(t, err)

	if repo == nil {
		repo = repository.Provide()
	}
	svc := New(Params{
		DB:         conn,
		Log:        zap.NewNop(),
		GenID:      node,
		Repo:       repo,
		LedgerRepo: ledgerrepo.Provide(),
		Ledger:     ledger,
		Clock:      fake,
		Config:     config.Config{Recurring: config.RecurringConfig{LockTTL: time.Second}},
	})

	return &fixture{svc: svc, conn: conn, clock: fake, category: category}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (f *fixture) create(t *testing.T, frequency string, start time.Time, note string) *domain.Template {
	t.Helper()
	tmpl, err := f.svc.Create(context.Background(), domain.CreateTemplateRequest{
		UserID:     1,
		CategoryID: f.category.ID,
		Amount:     150000,
		Note:       note,
		Frequency:  frequency,
		StartDate:  start,
	})
	require.NoError(t, err)
	return tmpl
}

func (f *fixture) transactions(t *testing.T) []ledgerdomain.Transaction {
	t.Helper()
	var txs []ledgerdomain.Transaction
	require.NoError(t, f.conn.Order("date asc").Find(&txs).Error)
	return txs
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *domain.Template {
	t.Helper()
	tmpl, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	return tmpl
}

func TestCreateNormalizesSignAndDueDate(t *testing.T) {
	f := newFixture(t, nil)

	tmpl := f.create(t, "Monthly", time.Date(2024, 1, 15, 13, 45, 0, 0, time.UTC), "Rent")

	assert.EqualValues(t, -150000, tmpl.Amount)
	assert.Equal(t, domain.FrequencyMonthly, tmpl.Frequency)
	assert.Equal(t, day(2024, 1, 15), tmpl.StartDate)
	assert.Equal(t, tmpl.StartDate, tmpl.NextDueDate)
	assert.True(t, tmpl.IsActive)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	base := domain.CreateTemplateRequest{CategoryID: f.category.ID, Amount: 100, Frequency: "daily", StartDate: day(2024, 1, 1)}

	req := base
	req.Frequency = "fortnightly"
	_, err := f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidFrequency)

	req = base
	req.Amount = 0
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	req = base
	req.CategoryID = 999
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidCategory)

	req = base
	end := day(2023, 12, 1)
	req.EndDate = &end
	_, err = f.svc.Create(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidEndDate)
}

func TestProcessDueAdvancesOneStepPerCall(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tmpl := f.create(t, "daily", day(2024, 1, 10), "Coffee")

	processed, err := f.svc.ProcessDue(ctx, day(2024, 1, 13))

	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	txs := f.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, day(2024, 1, 10), txs[0].Date.UTC())
	assert.Equal(t, "Coffee (auto)", txs[0].Note)
	assert.EqualValues(t, -150000, txs[0].Amount)
	require.NotNil(t, txs[0].RecurringTransactionID)
	assert.Equal(t, tmpl.ID, *txs[0].RecurringTransactionID)
	assert.Equal(t, day(2024, 1, 11), f.reload(t, tmpl.ID).NextDueDate.UTC())

	processed, err = f.svc.ProcessDue(ctx, day(2024, 1, 13))
	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	assert.Equal(t, day(2024, 1, 12), f.reload(t, tmpl.ID).NextDueDate.UTC())
}

func TestProcessDueMonthlyRollover(t *testing.T) {
	f := newFixture(t, nil)
	tmpl := f.create(t, "monthly", day(2024, 1, 31), "")

	processed, err := f.svc.ProcessDue(context.Background(), day(2024, 1, 31))

	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	// time.AddDate normalizes 2024-02-31 to 2024-03-02
	assert.Equal(t, day(2024, 3, 2), f.reload(t, tmpl.ID).NextDueDate.UTC())
	txs := f.transactions(t)
	require.Len(t, txs, 1)
	assert.Equal(t, "Recurring transaction (auto)", txs[0].Note)
}

func TestProcessDueSkipsFutureAndInactive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.create(t, "weekly", day(2024, 2, 1), "future")
	paused := f.create(t, "weekly", day(2024, 1, 1), "paused")
	_, err := f.svc.ToggleActive(ctx, paused.ID)
	require.NoError(t, err)

	processed, err := f.svc.ProcessDue(ctx, day(2024, 1, 15))

	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Empty(t, f.transactions(t))
	assert.Equal(t, day(2024, 1, 1), f.reload(t, paused.ID).NextDueDate.UTC())
}

type failingAdvanceRepo struct {
	domain.Repository
}

func (failingAdvanceRepo) UpdateNextDueDate(context.Context, *gorm.DB, snowflake.ID, time.Time, time.Time) error {
	return errors.New("injected update failure")
}

func TestProcessDueRollsBackOnFailure(t *testing.T) {
	f := newFixture(t, failingAdvanceRepo{Repository: repository.Provide()})
	tmpl := f.create(t, "daily", day(2024, 1, 1), "Gym")

	processed, err := f.svc.ProcessDue(context.Background(), day(2024, 1, 5))

	assert.Zero(t, processed)
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.KindMaterializationFailure))
	assert.Empty(t, f.transactions(t))
	assert.Equal(t, day(2024, 1, 1), f.reload(t, tmpl.ID).NextDueDate.UTC())
}

func TestProcessDueDeactivatesPastEndDate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	end := day(2024, 1, 2)
	next := day(2024, 1, 3)
	tmpl, err := f.svc.Create(ctx, domain.CreateTemplateRequest{
		CategoryID:  f.category.ID,
		Amount:      500,
		Frequency:   "daily",
		StartDate:   day(2024, 1, 1),
		EndDate:     &end,
		NextDueDate: &next,
	})
	require.NoError(t, err)

	processed, err := f.svc.ProcessDue(ctx, day(2024, 1, 5))

	require.NoError(t, err)
	assert.Zero(t, processed)
	assert.Empty(t, f.transactions(t))
	assert.False(t, f.reload(t, tmpl.ID).IsActive)
}

func TestProcessDueRetiresAfterLastOccurrence(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	end := day(2024, 1, 1)
	tmpl, err := f.svc.Create(ctx, domain.CreateTemplateRequest{
		CategoryID: f.category.ID,
		Amount:     500,
		Frequency:  "daily",
		StartDate:  day(2024, 1, 1),
		EndDate:    &end,
	})
	require.NoError(t, err)

	processed, err := f.svc.ProcessDue(ctx, day(2024, 1, 1))

	require.NoError(t, err)
	assert.Equal(t, 1, processed)
	reloaded := f.reload(t, tmpl.ID)
	assert.False(t, reloaded.IsActive)
	assert.Equal(t, day(2024, 1, 2), reloaded.NextDueDate.UTC())
}

func TestToggleActiveKeepsNextDueDate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tmpl := f.create(t, "weekly", day(2024, 1, 8), "")

	toggled, err := f.svc.ToggleActive(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	toggled, err = f.svc.ToggleActive(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)
	assert.Equal(t, day(2024, 1, 8), f.reload(t, tmpl.ID).NextDueDate.UTC())
}

func TestDeleteDetachesTransactions(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tmpl := f.create(t, "daily", day(2024, 1, 1), "Bus")

	for i := 0; i < 2; i++ {
		_, err := f.svc.ProcessDue(ctx, day(2024, 1, 5))
		require.NoError(t, err)
	}
	require.Len(t, f.transactions(t), 2)

	require.NoError(t, f.svc.Delete(ctx, tmpl.ID))

	txs := f.transactions(t)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		assert.Nil(t, tx.RecurringTransactionID)
		assert.EqualValues(t, -150000, tx.Amount)
		assert.Equal(t, "Bus (auto)", tx.Note)
	}
	assert.Equal(t, day(2024, 1, 1), txs[0].Date.UTC())

	_, err := f.svc.Get(ctx, tmpl.ID)
	assert.True(t, apperror.Is(err, apperror.KindNotFound))
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)

	err = f.svc.Delete(ctx, tmpl.ID)
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
}

func TestListDueHorizon(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	soon := f.create(t, "monthly", day(2024, 1, 5), "soon")
	f.create(t, "monthly", day(2024, 1, 20), "later")
	overdue := f.create(t, "monthly", day(2023, 12, 28), "overdue")

	due, err := f.svc.ListDue(ctx, day(2024, 1, 1), 7)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, overdue.ID, due[0].ID)
	assert.Equal(t, soon.ID, due[1].ID)

	_, err = f.svc.ListDue(ctx, day(2024, 1, 1), -1)
	assert.ErrorIs(t, err, domain.ErrInvalidHorizon)
}

func TestUpdateFollowsCategorySign(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tmpl := f.create(t, "monthly", day(2024, 1, 1), "Rent")

	amount := int64(90000)
	note := "Rent flat 2"
	updated, err := f.svc.Update(ctx, tmpl.ID, domain.UpdateTemplateRequest{Amount: &amount, Note: &note})

	require.NoError(t, err)
	assert.EqualValues(t, -90000, updated.Amount)
	assert.Equal(t, "Rent flat 2", f.reload(t, tmpl.ID).Note)
}

func TestFrequencyAdvance(t *testing.T) {
	from := day(2024, 2, 29)

	assert.Equal(t, day(2024, 3, 1), domain.FrequencyDaily.Advance(from))
	assert.Equal(t, day(2024, 3, 7), domain.FrequencyWeekly.Advance(from))
	assert.Equal(t, day(2024, 3, 29), domain.FrequencyMonthly.Advance(from))
	assert.Equal(t, day(2025, 3, 1), domain.FrequencyYearly.Advance(from))
}
