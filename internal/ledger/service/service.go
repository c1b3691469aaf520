package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/fintrack/internal/clock"
	"github.com/smallbiznis/fintrack/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/fintrack/internal/ledger/repository"
	"github.com/smallbiznis/fintrack/pkg/db/option"
	"github.com/smallbiznis/fintrack/pkg/db/pagination"
	"github.com/smallbiznis/fintrack/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock

	categories repository.Repository[domain.Category]
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		categories: repository.ProvideStore[domain.Category](p.DB),
	}
}

func (s *Service) Insert(ctx context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error) {
	if req.CategoryID == 0 {
		return nil, domain.ErrInvalidCategory
	}
	if req.Amount == 0 {
		return nil, domain.ErrInvalidAmount
	}
	if req.Date.IsZero() {
		return nil, domain.ErrInvalidDate
	}

	category, err := s.FindCategory(ctx, req.CategoryID)
	if err != nil {
		return nil, err
	}

	tx := &domain.Transaction{
		ID:         s.genID.Generate(),
		CategoryID: category.ID,
		Amount:     category.Type.SignedAmount(req.Amount),
		Note:       strings.TrimSpace(req.Note),
		Date:       domain.Day(req.Date),
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Service) DetachRecurring(ctx context.Context, templateID snowflake.ID) (int64, error) {
	return s.repo.DetachRecurring(ctx, s.db, templateID)
}

func (s *Service) List(ctx context.Context, filter domain.ListTransactionFilter, page pagination.Pagination) (*domain.ListTransactionResult, error) {
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, domain.ErrInvalidRange
	}

	items, err := s.repo.List(ctx, s.db, filter, page)
	if err != nil {
		return nil, err
	}

	size := option.PageSize(page)
	info := pagination.BuildCursorPageInfo(items, size, ledgerrepo.EncodeToken)
	if len(items) > size {
		items = items[:size]
	}

	out := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return &domain.ListTransactionResult{
		Transactions:  out,
		NextPageToken: info.NextPageToken,
		HasMore:       info.HasMore,
	}, nil
}

func (s *Service) FindByID(ctx context.Context, id snowflake.ID) (*domain.Transaction, error) {
	return s.repo.FindByID(ctx, s.db, id)
}

func (s *Service) Delete(ctx context.Context, id snowflake.ID) error {
	if err := s.repo.Delete(ctx, s.db, id); err != nil {
		return err
	}
	s.log.Info("ledger.transaction.deleted", zap.String("transaction_id", id.String()))
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	items, err := s.categories.Find(ctx, nil,
		option.WithSortBy(option.QuerySortBy{Field: "name", Allow: map[string]bool{"name": true}}),
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CreateCategoryRequest) (*domain.Category, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	categoryType := domain.CategoryType(strings.ToLower(strings.TrimSpace(string(req.Type))))
	if !categoryType.Valid() {
		return nil, domain.ErrInvalidCategoryType
	}

	taken, err := s.categories.Count(ctx, &domain.Category{Type: categoryType},
		option.ApplyOperator(option.Condition{Field: "LOWER(name)", Operator: option.EQ, Value: strings.ToLower(name)}),
	)
	if err != nil {
		return nil, err
	}
	if taken > 0 {
		return nil, domain.ErrCategoryExists
	}

	category := &domain.Category{
		ID:        s.genID.Generate(),
		Name:      name,
		Type:      categoryType,
		Icon:      strings.TrimSpace(req.Icon),
		Color:     strings.TrimSpace(req.Color),
		CreatedAt: s.clock.Now(),
	}
	if err := s.categories.Create(ctx, category); err != nil {
		return nil, err
	}
	return category, nil
}

func (s *Service) FindCategory(ctx context.Context, id snowflake.ID) (*domain.Category, error) {
	if id == 0 {
		return nil, domain.ErrInvalidCategory
	}
	category, err := s.categories.FindOne(ctx, &domain.Category{ID: id})
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, domain.ErrCategoryNotFound
	}
	return category, nil
}

// Summary totals transactions dated in [from, to).
func (s *Service) Summary(ctx context.Context, from, to time.Time) (*domain.Summary, error) {
	from, to = domain.Day(from), domain.Day(to)
	if !from.Before(to) {
		return nil, domain.ErrInvalidRange
	}

	totals, err := s.repo.SumByCategoryType(ctx, s.db, from, to)
	if err != nil {
		return nil, err
	}

	summary := &domain.Summary{
		From:    from,
		To:      to,
		Income:  abs(totals[domain.CategoryTypeIncome]),
		Expense: abs(totals[domain.CategoryTypeExpense]),
		DebtIn:  abs(totals[domain.CategoryTypeDebtIn]),
		DebtOut: abs(totals[domain.CategoryTypeDebtOut]),
	}
	for _, total := range totals {
		summary.Net += total
	}
	return summary, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
