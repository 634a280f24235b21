package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/repository"
)

// ReadTimeout bounds every repository read made on behalf of a request.
const ReadTimeout = 7 * time.Second

// PublishTimeout bounds the created event publish that follows a write.
const PublishTimeout = 4 * time.Second

// EventPublisher announces persisted transactions to other processes.
type EventPublisher interface {
	PublishTransactionCreated(ctx context.Context, tx core.Transaction) error
}

// FinanceStore is the slice of the repository the finance service needs.
type FinanceStore interface {
	repository.TransactionStore
	repository.BudgetStore
}

// FinanceService orchestrates transaction and budget writes, event
// publishing and the dashboard projections.
type FinanceService struct {
	store  FinanceStore
	events EventPublisher
	cache  cache.Cache[any]
	group  singleflight.Group
	logger *applog.Logger
	now    func() time.Time

	publishTimeout time.Duration

	mu   sync.Mutex
	gens map[int64]uint64
}

type FinanceOption func(*FinanceService)

// WithEvents publishes a TransactionCreated event after every insert.
func WithEvents(p EventPublisher) FinanceOption {
	return func(s *FinanceService) { s.events = p }
}

// WithDashboardCache memoizes dashboard projections per user.
func WithDashboardCache(c cache.Cache[any]) FinanceOption {
	return func(s *FinanceService) { s.cache = c }
}

func WithFinanceLogger(l *applog.Logger) FinanceOption {
	return func(s *FinanceService) { s.logger = l }
}

func WithClock(now func() time.Time) FinanceOption {
	return func(s *FinanceService) { s.now = now }
}

func NewFinanceService(store FinanceStore, opts ...FinanceOption) *FinanceService {
	s := &FinanceService{
		store:  store,
		logger: applog.New(applog.DefaultConfig()),
		now:    time.Now,
		gens:   make(map[int64]uint64),

		publishTimeout: PublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(applog.ComponentFinance)
	return s
}

// CreateTransaction validates in, saves the transaction and publishes the
// created event. Publish failures are logged only.
func (s *FinanceService) CreateTransaction(ctx context.Context, userID int64, in core.TransactionInput) (core.Transaction, error) {
	tx, err := core.NewTransaction(userID, in)
	if err != nil {
		return core.Transaction{}, err
	}

	saved, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.invalidate(userID)

	if s.events != nil {
		pubCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
		defer cancel()
		if err := s.events.PublishTransactionCreated(pubCtx, saved); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish transaction created event",
				applog.FieldTransactionID, saved.ID,
				applog.FieldError, err)
		}
	}

	return saved, nil
}

// ParseTransactionFilter validates the raw type and category query values.
func ParseTransactionFilter(rawType, rawCategory string) (core.TransactionFilter, error) {
	f := core.TransactionFilter{
		Type:     core.TransactionType(strings.TrimSpace(rawType)),
		Category: core.Category(strings.TrimSpace(rawCategory)),
	}
	fe := core.FieldErrors{}
	if f.Type != "" && !f.Type.IsValid() {
		fe.Add("type", "Invalid enum value. Expected 'income' | 'expense'")
	}
	if f.Category != "" && !f.Category.IsValid() {
		fe.Add("category", "Unknown category")
	}
	return f, fe.Err()
}

// ListTransactions returns the user's transactions in insertion order,
// narrowed by filter.
func (s *FinanceService) ListTransactions(ctx context.Context, userID int64, filter core.TransactionFilter) ([]core.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()

	txs, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return filter.Apply(txs), nil
}

func (s *FinanceService) CreateBudget(ctx context.Context, userID int64, in core.BudgetInput) (core.Budget, error) {
	b, err := core.NewBudget(userID, in)
	if err != nil {
		return core.Budget{}, err
	}

	saved, err := s.store.CreateBudget(ctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}
	s.invalidate(userID)
	return saved, nil
}

func (s *FinanceService) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	ctx, cancel := context.WithTimeout(ctx, ReadTimeout)
	defer cancel()

	budgets, err := s.store.ListBudgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return budgets, nil
}

func (s *FinanceService) Summary(ctx context.Context, userID int64) (core.Summary, error) {
	v, err := s.cached(ctx, userID, "summary", func(ctx context.Context) (any, error) {
		txs, err := s.store.ListTransactions(ctx, userID)
		if err != nil {
			return nil, err
		}
		return core.Summarize(txs), nil
	})
	if err != nil {
		return core.Summary{}, fmt.Errorf("dashboard summary: %w", err)
	}
	return v.(core.Summary), nil
}

func (s *FinanceService) ExpenseBreakdown(ctx context.Context, userID int64) ([]core.CategoryAmount, error) {
	v, err := s.cached(ctx, userID, "breakdown", func(ctx context.Context) (any, error) {
		txs, err := s.store.ListTransactions(ctx, userID)
		if err != nil {
			return nil, err
		}
		return core.ExpenseBreakdown(txs), nil
	})
	if err != nil {
		return nil, fmt.Errorf("expense breakdown: %w", err)
	}
	return v.([]core.CategoryAmount), nil
}

// IncomeVsExpense returns the six-month series ending at the current month.
// The cache key carries the month so a rollover never serves a stale window.
func (s *FinanceService) IncomeVsExpense(ctx context.Context, userID int64) ([]core.MonthlyTotals, error) {
	now := s.now().UTC()
	v, err := s.cached(ctx, userID, "income-expense:"+now.Format("2006-01"), func(ctx context.Context) (any, error) {
		txs, err := s.store.ListTransactions(ctx, userID)
		if err != nil {
			return nil, err
		}
		return core.IncomeVsExpense(txs, now), nil
	})
	if err != nil {
		return nil, fmt.Errorf("income vs expense: %w", err)
	}
	return v.([]core.MonthlyTotals), nil
}

func (s *FinanceService) BudgetProgress(ctx context.Context, userID int64) ([]core.BudgetStatus, error) {
	v, err := s.cached(ctx, userID, "budget-progress", func(ctx context.Context) (any, error) {
		budgets, err := s.store.ListBudgets(ctx, userID)
		if err != nil {
			return nil, err
		}
		txs, err := s.store.ListTransactions(ctx, userID)
		if err != nil {
			return nil, err
		}
		return core.BudgetProgress(budgets, txs), nil
	})
	if err != nil {
		return nil, fmt.Errorf("budget progress: %w", err)
	}
	return v.([]core.BudgetStatus), nil
}

func userKeyPrefix(userID int64) string {
	return "u:" + strconv.FormatInt(userID, 10) + ":"
}

// cached serves view from the cache, collapsing concurrent misses into one
// computation. Cached values are shared and must not be mutated by callers.
func (s *FinanceService) cached(ctx context.Context, userID int64, view string, compute func(context.Context) (any, error)) (any, error) {
	key := userKeyPrefix(userID) + view
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// The fill outlives the first caller; waiters share its result.
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ReadTimeout)
		defer cancel()

		gen := s.generation(userID)
		v, err := compute(fillCtx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.storeIfCurrent(userID, gen, key, v)
		}
		return v, nil
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *FinanceService) generation(userID int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[userID]
}

// storeIfCurrent caches v unless a write for userID landed after gen was
// read. The compare and the Set hold s.mu, which invalidate takes to bump
// the generation, so a stale value is either refused here or deleted there.
func (s *FinanceService) storeIfCurrent(userID int64, gen uint64, key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[userID] == gen {
		s.cache.Set(key, v)
	}
}

func (s *FinanceService) invalidate(userID int64) {
	s.mu.Lock()
	s.gens[userID]++
	s.mu.Unlock()

	prefix := userKeyPrefix(userID)
	// Forget in-flight fills too, so a read racing this write recomputes.
	s.group.Forget(prefix + "summary")
	s.group.Forget(prefix + "breakdown")
	s.group.Forget(prefix + "budget-progress")
	s.group.Forget(prefix + "income-expense:" + s.now().UTC().Format("2006-01"))
	if s.cache == nil {
		return
	}
	n := s.cache.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
	if n > 0 {
		s.logger.Debug("Dashboard cache invalidated", applog.FieldUserID, userID, "entries", n)
	}
}
