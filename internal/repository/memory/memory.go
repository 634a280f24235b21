// Package memory is an in-process repository backend. Data lives only as
// long as the process.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/repository"
)

var _ repository.Repository = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	nextUserID, nextTxID, nextBudgetID int64

	users        map[int64]core.User
	usernames    map[string]int64
	transactions []core.Transaction
	budgets      []core.Budget
	sessions     map[string]core.Session
}

func New() *Store {
	return &Store{
		users:     make(map[int64]core.User),
		usernames: make(map[string]int64),
		sessions:  make(map[string]core.Session),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(u.Username)
	if _, taken := s.usernames[key]; taken {
		return core.User{}, repository.ErrDuplicate
	}
	s.nextUserID++
	u.ID = s.nextUserID
	s.users[u.ID] = u
	s.usernames[key] = u.ID
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return core.User{}, repository.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[strings.ToLower(username)]
	if !ok {
		return core.User{}, repository.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) UpdateUserProfile(_ context.Context, id int64, fullName string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return core.User{}, repository.ErrNotFound
	}
	u.FullName = fullName
	s.users[id] = u
	return u, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	s.users[id] = u
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[t.UserID]; !ok {
		return core.Transaction{}, repository.ErrNotFound
	}
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.nextTxID++
	t.ID = s.nextTxID
	s.transactions = append(s.transactions, t)
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.transactions {
		if t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, repository.ErrNotFound
}

func (s *Store) ListTransactions(_ context.Context, userID int64) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Transaction, 0)
	for _, t := range s.transactions {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[b.UserID]; !ok {
		return core.Budget{}, repository.ErrNotFound
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	s.nextBudgetID++
	b.ID = s.nextBudgetID
	s.budgets = append(s.budgets, b)
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, userID int64) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.Budget, 0)
	for _, b := range s.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) CreateSession(_ context.Context, sess core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sess.Token]; ok {
		return repository.ErrDuplicate
	}
	s.sessions[sess.Token] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok {
		return core.Session{}, repository.ErrNotFound
	}
	return sess, nil
}

func (s *Store) RenewSession(_ context.Context, token string, expiresAt, lastActivity time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return repository.ErrNotFound
	}
	sess.ExpiresAt = expiresAt
	sess.LastActivity = lastActivity
	s.sessions[token] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for token, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, token)
			n++
		}
	}
	return n, nil
}
