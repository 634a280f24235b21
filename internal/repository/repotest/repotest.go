// Package repotest is a behavioural test suite run against every
// repository backend.
package repotest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"fintrack/internal/core"
	"fintrack/internal/repository"
)

// Run executes the suite with a fresh, empty repository per test.
func Run(t *testing.T, newRepo func(t *testing.T) repository.Repository) {
	suite.Run(t, &Suite{newRepo: newRepo})
}

type Suite struct {
	suite.Suite
	newRepo func(t *testing.T) repository.Repository
	repo    repository.Repository
	ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.newRepo(s.T())
}

func (s *Suite) TearDownTest() {
	s.Require().NoError(s.repo.Close())
}

func (s *Suite) createUser(username string) core.User {
	u, err := s.repo.CreateUser(s.ctx, core.User{Username: username, PasswordHash: "hash", FullName: "Full " + username})
	s.Require().NoError(err)
	return u
}

func (s *Suite) TestPing() {
	s.NoError(s.repo.Ping(s.ctx))
}

func (s *Suite) TestCreateAndGetUser() {
	u := s.createUser("alice")
	s.NotZero(u.ID)

	got, err := s.repo.GetUser(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal(u, got)

	byName, err := s.repo.GetUserByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(u.ID, byName.ID)
	s.Equal("hash", byName.PasswordHash)
}

func (s *Suite) TestDuplicateUsername() {
	s.createUser("bob")

	_, err := s.repo.CreateUser(s.ctx, core.User{Username: "BOB", PasswordHash: "x", FullName: "Other"})
	s.ErrorIs(err, repository.ErrDuplicate)
}

func (s *Suite) TestMissingUser() {
	_, err := s.repo.GetUser(s.ctx, 999)
	s.ErrorIs(err, repository.ErrNotFound)

	_, err = s.repo.GetUserByUsername(s.ctx, "nobody")
	s.ErrorIs(err, repository.ErrNotFound)

	_, err = s.repo.UpdateUserProfile(s.ctx, 999, "x")
	s.ErrorIs(err, repository.ErrNotFound)

	s.ErrorIs(s.repo.UpdateUserPassword(s.ctx, 999, "x"), repository.ErrNotFound)
}

func (s *Suite) TestUpdateUser() {
	u := s.createUser("carol")

	updated, err := s.repo.UpdateUserProfile(s.ctx, u.ID, "Carol King")
	s.Require().NoError(err)
	s.Equal("Carol King", updated.FullName)
	s.Equal(u.Username, updated.Username)

	s.Require().NoError(s.repo.UpdateUserPassword(s.ctx, u.ID, "newhash"))
	got, err := s.repo.GetUser(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Equal("newhash", got.PasswordHash)
	s.Equal("Carol King", got.FullName)
}

func (s *Suite) TestTransactionRoundTrip() {
	u := s.createUser("dave")
	in := core.Transaction{
		UserID:      u.ID,
		Description: "Weekly shop",
		Amount:      decimal.RequireFromString("42.10"),
		Category:    core.Groceries,
		Type:        core.Expense,
		Date:        time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC),
	}

	created, err := s.repo.CreateTransaction(s.ctx, in)
	s.Require().NoError(err)
	s.NotZero(created.ID)

	list, err := s.repo.ListTransactions(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.assertTransaction(created, list[0])

	got, err := s.repo.GetTransaction(s.ctx, created.ID)
	s.Require().NoError(err)
	s.assertTransaction(created, got)

	_, err = s.repo.GetTransaction(s.ctx, created.ID+1000)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *Suite) TestTransactionsAreScopedAndOrdered() {
	a := s.createUser("erin")
	b := s.createUser("frank")

	for i, cat := range []core.Category{core.Utilities, core.Groceries, core.Housing} {
		_, err := s.repo.CreateTransaction(s.ctx, core.Transaction{
			UserID:      a.ID,
			Description: string(cat),
			Amount:      decimal.NewFromInt(int64(10 * (i + 1))),
			Category:    cat,
			Type:        core.Expense,
			// newest first, so ordering cannot come from the date
			Date: time.Date(2024, 3, 20-i, 0, 0, 0, 0, time.UTC),
		})
		s.Require().NoError(err)
	}
	_, err := s.repo.CreateTransaction(s.ctx, core.Transaction{
		UserID: b.ID, Description: "Salary", Amount: decimal.NewFromInt(1000),
		Category: core.IncomeCategory, Type: core.Income, Date: time.Now().UTC(),
	})
	s.Require().NoError(err)

	list, err := s.repo.ListTransactions(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 3)
	s.Equal(core.Utilities, list[0].Category)
	s.Equal(core.Groceries, list[1].Category)
	s.Equal(core.Housing, list[2].Category)

	empty, err := s.repo.ListTransactions(s.ctx, 12345)
	s.Require().NoError(err)
	s.NotNil(empty)
	s.Empty(empty)
}

func (s *Suite) TestRejectsInvalidRows() {
	u := s.createUser("heidi")

	_, err := s.repo.CreateTransaction(s.ctx, core.Transaction{
		UserID: u.ID, Description: "refund", Amount: decimal.NewFromInt(-5),
		Category: core.Others, Type: core.Expense, Date: time.Now().UTC(),
	})
	s.ErrorIs(err, core.ErrInvalidAmount)

	_, err = s.repo.CreateTransaction(s.ctx, core.Transaction{
		UserID: u.ID, Description: "far future", Amount: decimal.NewFromInt(1),
		Category: core.Others, Type: core.Expense, Date: time.Date(33658, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	s.ErrorIs(err, core.ErrDateOutOfRange)

	_, err = s.repo.CreateBudget(s.ctx, core.Budget{UserID: u.ID, Category: core.Groceries, Amount: decimal.NewFromInt(10), Period: "weekly"})
	s.ErrorIs(err, core.ErrInvalidPeriod)

	list, err := s.repo.ListTransactions(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Empty(list)
}

func (s *Suite) TestBudgets() {
	u := s.createUser("grace")

	first, err := s.repo.CreateBudget(s.ctx, core.Budget{UserID: u.ID, Category: core.Groceries, Amount: decimal.RequireFromString("150.00"), Period: core.Monthly})
	s.Require().NoError(err)
	_, err = s.repo.CreateBudget(s.ctx, core.Budget{UserID: u.ID, Category: core.Housing, Amount: decimal.NewFromInt(12000), Period: core.Yearly})
	s.Require().NoError(err)

	list, err := s.repo.ListBudgets(s.ctx, u.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal(first.ID, list[0].ID)
	s.Equal(core.Groceries, list[0].Category)
	s.True(decimal.NewFromInt(150).Equal(list[0].Amount))
	s.Equal(core.Yearly, list[1].Period)
}

func (s *Suite) TestSessions() {
	u := s.createUser("heidi")
	now := time.Now().UTC().Truncate(time.Second)

	live := core.Session{Token: "live", UserID: u.ID, Lifetime: 24 * time.Hour, ExpiresAt: now.Add(time.Hour), LastActivity: now}
	dead := core.Session{Token: "dead", UserID: u.ID, Lifetime: 24 * time.Hour, ExpiresAt: now.Add(-time.Hour), LastActivity: now.Add(-25 * time.Hour)}
	s.Require().NoError(s.repo.CreateSession(s.ctx, live))
	s.Require().NoError(s.repo.CreateSession(s.ctx, dead))

	got, err := s.repo.GetSession(s.ctx, "live")
	s.Require().NoError(err)
	s.Equal(u.ID, got.UserID)
	s.Equal(24*time.Hour, got.Lifetime)
	s.True(live.ExpiresAt.Equal(got.ExpiresAt))

	renewed := now.Add(48 * time.Hour)
	s.Require().NoError(s.repo.RenewSession(s.ctx, "live", renewed, now))
	got, err = s.repo.GetSession(s.ctx, "live")
	s.Require().NoError(err)
	s.True(renewed.Equal(got.ExpiresAt))

	n, err := s.repo.DeleteExpiredSessions(s.ctx, now)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	_, err = s.repo.GetSession(s.ctx, "dead")
	s.ErrorIs(err, repository.ErrNotFound)

	s.Require().NoError(s.repo.DeleteSession(s.ctx, "live"))
	_, err = s.repo.GetSession(s.ctx, "live")
	s.ErrorIs(err, repository.ErrNotFound)

	s.ErrorIs(s.repo.RenewSession(s.ctx, "live", renewed, now), repository.ErrNotFound)
}

func (s *Suite) assertTransaction(want, got core.Transaction) {
	s.Equal(want.ID, got.ID)
	s.Equal(want.UserID, got.UserID)
	s.Equal(want.Description, got.Description)
	s.True(want.Amount.Equal(got.Amount), "amount %s != %s", want.Amount, got.Amount)
	s.Equal(want.Category, got.Category)
	s.Equal(want.Type, got.Type)
	s.True(want.Date.Equal(got.Date), "date %s != %s", want.Date, got.Date)
}
