// Package postgres is the PostgreSQL repository backend, built on a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/repository"
)

var _ repository.Repository = (*Repository)(nil)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

type Repository struct {
	pool *pgxpool.Pool
}

// New migrates the database at databaseURL and opens a pool against it.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, full_name) VALUES ($1, $2, $3) RETURNING id`,
		u.Username, u.PasswordHash, u.FullName).Scan(&u.ID)
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", translate(err))
	}

	slog.InfoContext(ctx, "User saved to Postgres", "id", u.ID, "username", u.Username)
	return u, nil
}

func (r *Repository) GetUser(ctx context.Context, id int64) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, full_name FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName)
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, translate(err))
	}
	return u, nil
}

func (r *Repository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, full_name FROM users WHERE lower(username) = lower($1)`, username).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName)
	if err != nil {
		return core.User{}, fmt.Errorf("get user by username: %w", translate(err))
	}
	return u, nil
}

func (r *Repository) UpdateUserProfile(ctx context.Context, id int64, fullName string) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		`UPDATE users SET full_name = $1 WHERE id = $2
		 RETURNING id, username, password_hash, full_name`, fullName, id).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName)
	if err != nil {
		return core.User{}, fmt.Errorf("update user profile: %w", translate(err))
	}
	return u, nil
}

func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update user password: %w", repository.ErrNotFound)
	}
	return nil
}

func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO transactions (user_id, description, amount, category, type, date)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6) RETURNING id`,
		t.UserID, t.Description, t.Amount.StringFixed(2), string(t.Category), string(t.Type), t.Date.UTC()).
		Scan(&t.ID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", translate(err))
	}

	slog.InfoContext(ctx, "Transaction saved to Postgres",
		"id", t.ID,
		"user_id", t.UserID,
		"type", t.Type,
		"category", t.Category,
		"amount", t.Amount.String())
	return t, nil
}

const transactionColumns = `id, user_id, description, amount::text, category, type, date`

func (r *Repository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, translate(err))
	}
	return t, nil
}

func (r *Repository) ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (r *Repository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO budgets (user_id, category, amount, period) VALUES ($1, $2, $3::numeric, $4) RETURNING id`,
		b.UserID, string(b.Category), b.Amount.StringFixed(2), string(b.Period)).Scan(&b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", translate(err))
	}

	slog.InfoContext(ctx, "Budget saved to Postgres", "id", b.ID, "user_id", b.UserID, "category", b.Category)
	return b, nil
}

func (r *Repository) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, category, amount::text, period FROM budgets WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := make([]core.Budget, 0)
	for rows.Next() {
		var (
			b                        core.Budget
			category, amount, period string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &category, &amount, &period); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		if b.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse budget amount %q: %w", amount, err)
		}
		b.Category = core.Category(category)
		b.Period = core.Period(period)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	return out, nil
}

func (r *Repository) CreateSession(ctx context.Context, s core.Session) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (token, user_id, lifetime_seconds, expires_at, last_activity) VALUES ($1, $2, $3, $4, $5)`,
		s.Token, s.UserID, int64(s.Lifetime/time.Second), s.ExpiresAt.UTC(), s.LastActivity.UTC())
	if err != nil {
		return fmt.Errorf("create session: %w", translate(err))
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, token string) (core.Session, error) {
	var (
		s        core.Session
		lifetime int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT token, user_id, lifetime_seconds, expires_at, last_activity FROM sessions WHERE token = $1`, token).
		Scan(&s.Token, &s.UserID, &lifetime, &s.ExpiresAt, &s.LastActivity)
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", translate(err))
	}
	s.Lifetime = time.Duration(lifetime) * time.Second
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.LastActivity = s.LastActivity.UTC()
	return s, nil
}

func (r *Repository) RenewSession(ctx context.Context, token string, expiresAt, lastActivity time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions SET expires_at = $1, last_activity = $2 WHERE token = $3`,
		expiresAt.UTC(), lastActivity.UTC(), token)
	if err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("renew session: %w", repository.ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *Repository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanTransaction(row pgx.Row) (core.Transaction, error) {
	var (
		t                     core.Transaction
		amount, category, typ string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Description, &amount, &category, &typ, &t.Date); err != nil {
		return core.Transaction{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	t.Amount = d
	t.Category = core.Category(category)
	t.Type = core.TransactionType(typ)
	t.Date = t.Date.UTC()
	return t, nil
}

// translate maps pgx errors onto repository sentinels.
func translate(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%w: %s", repository.ErrDuplicate, pgErr.Message)
		case foreignKeyViolation:
			return fmt.Errorf("%w: %s", repository.ErrNotFound, pgErr.Message)
		}
	}
	return err
}
