package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/fintrack/internal/apperror"
	"github.com/smallbiznis/fintrack/internal/clock"
	"github.com/smallbiznis/fintrack/internal/config"
	ledgerdomain "github.com/smallbiznis/fintrack/internal/ledger/domain"
	"github.com/smallbiznis/fintrack/internal/observability/metrics"
	"github.com/smallbiznis/fintrack/internal/observability/tracing"
	"github.com/smallbiznis/fintrack/internal/ratelimit"
	"github.com/smallbiznis/fintrack/internal/recurring/domain"
	"github.com/smallbiznis/fintrack/pkg/db"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	processLockKey  = "recurring:process_due"
	maxBatchRetries = 3
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	LedgerRepo ledgerdomain.Repository
	Ledger     ledgerdomain.Service
	Clock      clock.Clock
	Config     config.Config
	Locker     *ratelimit.Locker `optional:"true"`
	Metrics    *metrics.Metrics  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	ledgerRepo ledgerdomain.Repository
	ledger     ledgerdomain.Service
	clock      clock.Clock
	cfg        config.RecurringConfig
	locker     *ratelimit.Locker
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	rowLocks   bool
}

func New(p Params) *Service {
	cfg := p.Config.Recurring
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("recurring.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		ledgerRepo: p.LedgerRepo,
		ledger:     p.Ledger,
		clock:      p.Clock,
		cfg:        cfg,
		locker:     p.Locker,
		metrics:    p.Metrics,
		tracer:     otel.Tracer("fintrack/recurring"),
		rowLocks:   db.SupportsRowLocks(p.DB),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateTemplateRequest) (*domain.Template, error) {
	frequency, err := domain.ParseFrequency(req.Frequency)
	if err != nil {
		return nil, err
	}
	if req.Amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	if req.StartDate.IsZero() {
		return nil, domain.ErrInvalidStartDate
	}
	category, err := s.category(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}

	start := ledgerdomain.Day(req.StartDate)
	next := start
	if req.NextDueDate != nil {
		next = ledgerdomain.Day(*req.NextDueDate)
	}
	end := dayPtr(req.EndDate)
	if err := validateWindow(start, next, end); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	t := &domain.Template{
		ID:          s.genID.Generate(),
		UserID:      req.UserID,
		CategoryID:  category.ID,
		Amount:      category.Type.SignedAmount(req.Amount),
		Note:        strings.TrimSpace(req.Note),
		Frequency:   frequency,
		StartDate:   start,
		EndDate:     end,
		NextDueDate: next,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, s.db, t); err != nil {
		return nil, err
	}

	s.log.Info("recurring.template.created",
		zap.String("template_id", t.ID.String()),
		zap.String("frequency", string(t.Frequency)),
	)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Template, error) {
	return s.find(ctx, id)
}

func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.Template, error) {
	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

func (s *Service) Update(ctx context.Context, id snowflake.ID, req domain.UpdateTemplateRequest) (*domain.Template, error) {
	t, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Frequency != nil {
		frequency, err := domain.ParseFrequency(*req.Frequency)
		if err != nil {
			return nil, err
		}
		t.Frequency = frequency
	}
	if req.CategoryID != nil {
		t.CategoryID = *req.CategoryID
	}
	if req.Amount != nil {
		if *req.Amount == 0 {
			return nil, domain.ErrInvalidAmount
		}
		t.Amount = *req.Amount
	}
	if req.Note != nil {
		t.Note = strings.TrimSpace(*req.Note)
	}
	if req.ClearEnd {
		t.EndDate = nil
	} else if req.EndDate != nil {
		t.EndDate = dayPtr(req.EndDate)
	}
	if req.NextDueDate != nil {
		t.NextDueDate = ledgerdomain.Day(*req.NextDueDate)
	}

	// the sign always follows the category, also when only the category moved
	category, err := s.category(ctx, t.CategoryID)
	if err != nil {
		return nil, err
	}
	t.Amount = category.Type.SignedAmount(t.Amount)

	if err := validateWindow(ledgerdomain.Day(t.StartDate), ledgerdomain.Day(t.NextDueDate), t.EndDate); err != nil {
		return nil, err
	}

	t.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) ListDue(ctx context.Context, asOf time.Time, horizonDays int) ([]domain.Template, error) {
	if horizonDays < 0 {
		return nil, domain.ErrInvalidHorizon
	}
	through := ledgerdomain.Day(asOf).AddDate(0, 0, horizonDays)
	items, err := s.repo.ListActiveDue(ctx, s.db, through, false)
	if err != nil {
		return nil, err
	}
	return flatten(items), nil
}

type batchResult struct {
	processed   int
	deactivated int
}

func (s *Service) ProcessDue(ctx context.Context, today time.Time) (int, error) {
	const op = "recurring.process_due"

	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	today = ledgerdomain.Day(today)
	started := time.Now()

	var result batchResult
	err := s.locker.WithLock(ctx, processLockKey, s.cfg.LockTTL, func(ctx context.Context) error {
		var err error
		result, err = backoff.Retry(ctx, func() (batchResult, error) {
			res, err := s.processBatch(ctx, today)
			if err != nil && !apperror.Retryable(err) {
				return res, backoff.Permanent(err)
			}
			return res, err
		},
			backoff.WithBackOff(newBatchBackOff()),
			backoff.WithMaxTries(maxBatchRetries),
		)
		return err
	})
	elapsed := time.Since(started)

	if errors.Is(err, ratelimit.ErrLockHeld) {
		s.log.Info("recurring.process_due.skipped", zap.String("reason", "lock_held"))
		s.metrics.ObserveRecurringBatch(metrics.RecurringBatchSkipped, 0, 0, elapsed)
		return 0, nil
	}
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, "rolled back")
		s.log.Error("recurring.process_due.rolled_back",
			zap.Time("today", today),
			zap.Error(err),
		)
		s.metrics.ObserveRecurringBatch(metrics.RecurringBatchRolledBack, 0, 0, elapsed)
		s.metrics.IncError("recurring", err)
		return 0, apperror.New(apperror.KindMaterializationFailure, op, err)
	}

	span.SetAttributes(tracing.SafeAttributes(
		attribute.Int("recurring.processed", result.processed),
		attribute.Int("recurring.deactivated", result.deactivated),
	)...)
	s.metrics.ObserveRecurringBatch(metrics.RecurringBatchCommitted, result.processed, result.deactivated, elapsed)
	if result.processed > 0 || result.deactivated > 0 {
		s.log.Info("recurring.process_due.committed",
			zap.Int("processed", result.processed),
			zap.Int("deactivated", result.deactivated),
			zap.Duration("elapsed", elapsed),
		)
	}
	return result.processed, nil
}

// processBatch runs one attempt. Each template advances a single period from
// its own next_due_date, so a template several periods behind needs several
// calls to catch up.
func (s *Service) processBatch(ctx context.Context, today time.Time) (batchResult, error) {
	var result batchResult
	now := s.clock.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		due, err := s.repo.ListActiveDue(ctx, tx, today, s.rowLocks)
		if err != nil {
			return err
		}

		for _, t := range due {
			occurrence := ledgerdomain.Day(t.NextDueDate)
			if t.EndsBefore(occurrence) {
				if err := s.repo.SetActive(ctx, tx, t.ID, false, now); err != nil {
					return err
				}
				result.deactivated++
				continue
			}

			templateID := t.ID
			entry := &ledgerdomain.Transaction{
				ID:                     s.genID.Generate(),
				CategoryID:             t.CategoryID,
				Amount:                 t.Amount,
				Note:                   t.MaterializedNote(),
				Date:                   occurrence,
				RecurringTransactionID: &templateID,
				CreatedAt:              now,
			}
			if err := s.ledgerRepo.Insert(ctx, tx, entry); err != nil {
				return err
			}

			next := t.Frequency.Advance(occurrence)
			if err := s.repo.UpdateNextDueDate(ctx, tx, t.ID, next, now); err != nil {
				return err
			}
			result.processed++

			if t.EndsBefore(next) {
				if err := s.repo.SetActive(ctx, tx, t.ID, false, now); err != nil {
					return err
				}
				result.deactivated++
			}
		}
		return nil
	})
	if err != nil {
		return batchResult{}, err
	}
	return result, nil
}

func (s *Service) ToggleActive(ctx context.Context, id snowflake.ID) (*domain.Template, error) {
	t, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.repo.SetActive(ctx, s.db, id, !t.IsActive, now); err != nil {
		return nil, err
	}
	t.IsActive = !t.IsActive
	t.UpdatedAt = now

	s.log.Info("recurring.template.toggled",
		zap.String("template_id", id.String()),
		zap.Bool("active", t.IsActive),
	)
	return t, nil
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	var detached int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.repo.FindByID(ctx, tx, id); err != nil {
			return err
		}
		var err error
		detached, err = s.ledgerRepo.DetachRecurring(ctx, tx, id)
		if err != nil {
			return err
		}
		return s.repo.Delete(ctx, tx, id)
	})
	if err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			return apperror.New(apperror.KindNotFound, "recurring.delete", err)
		}
		return err
	}

	s.log.Info("recurring.template.deleted",
		zap.String("template_id", id.String()),
		zap.Int64("detached", detached),
	)
	return nil
}

// RunForever processes due templates every interval until ctx is done.
func (s *Service) RunForever(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.ProcessDue(ctx, s.clock.Now()); err != nil {
			s.log.Warn("recurring.ticker.run_failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) find(ctx context.Context, id snowflake.ID) (*domain.Template, error) {
	t, err := s.repo.FindByID(ctx, s.db, id)
	if errors.Is(err, domain.ErrTemplateNotFound) {
		return nil, apperror.New(apperror.KindNotFound, "recurring.find", err)
	}
	return t, err
}

func (s *Service) category(ctx context.Context, id snowflake.ID) (*ledgerdomain.Category, error) {
	if id == 0 {
		return nil, domain.ErrInvalidCategory
	}
	category, err := s.ledger.FindCategory(ctx, id)
	if errors.Is(err, ledgerdomain.ErrCategoryNotFound) {
		return nil, domain.ErrInvalidCategory
	}
	return category, err
}

func newBatchBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}

func validateWindow(start, next time.Time, end *time.Time) error {
	if next.Before(start) {
		return domain.ErrInvalidDueDate
	}
	if end != nil && end.Before(start) {
		return domain.ErrInvalidEndDate
	}
	return nil
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := ledgerdomain.Day(*t)
	return &d
}

func flatten(items []*domain.Template) []domain.Template {
	out := make([]domain.Template, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}
	return out
}
