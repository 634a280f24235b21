// Package repository declares the persistence ports shared by every
// storage backend.
package repository

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/core"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Ports for outbound adapters.
type (
	UserStore interface {
		// CreateUser returns ErrDuplicate when the username is taken.
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id int64) (core.User, error)
		GetUserByUsername(ctx context.Context, username string) (core.User, error)
		UpdateUserProfile(ctx context.Context, id int64, fullName string) (core.User, error)
		UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		// ListTransactions returns the user's rows in insertion order.
		ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error)
	}

	BudgetStore interface {
		CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		// ListBudgets returns the user's budgets in insertion order.
		ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error)
	}

	SessionStore interface {
		CreateSession(ctx context.Context, s core.Session) error
		GetSession(ctx context.Context, token string) (core.Session, error)
		RenewSession(ctx context.Context, token string, expiresAt, lastActivity time.Time) error
		DeleteSession(ctx context.Context, token string) error
		// DeleteExpiredSessions removes sessions expired at now and returns
		// how many were removed.
		DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
	}

	// Repository is everything a storage backend provides.
	Repository interface {
		UserStore
		TransactionStore
		BudgetStore
		SessionStore
		Ping(ctx context.Context) error
		Close() error
	}
)
