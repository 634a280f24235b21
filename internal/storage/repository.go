package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"fintrack/internal/core"
	"fintrack/internal/repository"
)

var _ repository.Repository = (*SQLiteRepository)(nil)

const dsnPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (core.User, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, full_name) VALUES (?, ?, ?)`,
		u.Username, u.PasswordHash, u.FullName)
	if err != nil {
		return core.User{}, fmt.Errorf("create user: %w", translate(err))
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.InfoContext(ctx, "User saved to SQLite", "id", u.ID, "username", u.Username)
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, full_name FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, full_name FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if err != nil {
		return core.User{}, fmt.Errorf("get user by username: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) UpdateUserProfile(ctx context.Context, id int64, fullName string) (core.User, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET full_name = ? WHERE id = ?`, fullName, id)
	if err != nil {
		return core.User{}, fmt.Errorf("update user profile: %w", err)
	}
	if err := requireRow(res); err != nil {
		return core.User{}, fmt.Errorf("update user profile: %w", err)
	}
	return r.GetUser(ctx, id)
}

func (r *SQLiteRepository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, description, amount, category, type, date)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.UserID, t.Description, t.Amount.StringFixed(2), string(t.Category), string(t.Type), formatTime(t.Date))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", translate(err))
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"user_id", t.UserID,
		"type", t.Type,
		"category", t.Category,
		"amount", t.Amount.String())
	return t, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, description, amount, category, type, date FROM transactions WHERE id = ?`, id)
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID int64) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, description, amount, category, type, date
		 FROM transactions WHERE user_id = ? ORDER BY id`, userID)
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

func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (user_id, category, amount, period) VALUES (?, ?, ?, ?)`,
		b.UserID, string(b.Category), b.Amount.StringFixed(2), string(b.Period))
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", translate(err))
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget saved to SQLite", "id", b.ID, "user_id", b.UserID, "category", b.Category)
	return b, nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, category, amount, period FROM budgets WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := make([]core.Budget, 0)
	for rows.Next() {
		var (
			b        core.Budget
			category string
			period   string
		)
		if err := rows.Scan(&b.ID, &b.UserID, &category, &b.Amount, &period); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
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

func (r *SQLiteRepository) CreateSession(ctx context.Context, s core.Session) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (token, user_id, lifetime_seconds, expires_at, last_activity) VALUES (?, ?, ?, ?, ?)`,
		s.Token, s.UserID, int64(s.Lifetime/time.Second), s.ExpiresAt.UnixNano(), s.LastActivity.UnixNano())
	if err != nil {
		return fmt.Errorf("create session: %w", translate(err))
	}
	return nil
}

func (r *SQLiteRepository) GetSession(ctx context.Context, token string) (core.Session, error) {
	var (
		s                         core.Session
		lifetime, expires, active int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, lifetime_seconds, expires_at, last_activity FROM sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.UserID, &lifetime, &expires, &active)
	if err != nil {
		return core.Session{}, fmt.Errorf("get session: %w", translate(err))
	}
	s.Lifetime = time.Duration(lifetime) * time.Second
	s.ExpiresAt = time.Unix(0, expires).UTC()
	s.LastActivity = time.Unix(0, active).UTC()
	return s, nil
}

func (r *SQLiteRepository) RenewSession(ctx context.Context, token string, expiresAt, lastActivity time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET expires_at = ?, last_activity = ? WHERE token = ?`,
		expiresAt.UnixNano(), lastActivity.UnixNano(), token)
	if err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	if err := requireRow(res); err != nil {
		return fmt.Errorf("renew session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, token string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (core.User, error) {
	var u core.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FullName); err != nil {
		return core.User{}, translate(err)
	}
	return u, nil
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		t                   core.Transaction
		amount              decimal.Decimal
		category, typ, date string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Description, &amount, &category, &typ, &date); err != nil {
		return core.Transaction{}, translate(err)
	}
	parsed, err := time.Parse(time.RFC3339Nano, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	t.Amount = amount
	t.Category = core.Category(category)
	t.Type = core.TransactionType(typ)
	t.Date = parsed.UTC()
	return t, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// translate maps driver errors onto repository sentinels.
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %v", repository.ErrDuplicate, err)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%w: %v", repository.ErrNotFound, err)
		}
	}
	return err
}
