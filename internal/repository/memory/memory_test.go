package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/core"
	"fintrack/internal/repository"
	"fintrack/internal/repository/repotest"
)

func TestStore(t *testing.T) {
	repotest.Run(t, func(*testing.T) repository.Repository { return New() })
}

func TestStoreRejectsUnknownOwner(t *testing.T) {
	s := New()
	_, err := s.CreateTransaction(context.Background(), core.Transaction{UserID: 42})
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = s.CreateBudget(context.Background(), core.Budget{UserID: 42})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStoreConcurrentWrites(t *testing.T) {
	s := New()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, core.User{Username: "x", PasswordHash: "h", FullName: "X"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateTransaction(ctx, core.Transaction{UserID: u.ID, Description: "x", Amount: decimal.NewFromInt(1),
				Type: core.Expense, Category: core.Others, Date: time.Now()})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	list, err := s.ListTransactions(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 50)

	seen := map[int64]bool{}
	for _, tx := range list {
		assert.False(t, seen[tx.ID], "duplicate id %d", tx.ID)
		seen[tx.ID] = true
	}
}
