package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"welfare-server-go/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT     NOT NULL UNIQUE,
	password_hash TEXT     NOT NULL,
	role          TEXT     NOT NULL DEFAULT 'admin',
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS households (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT     NOT NULL,
	address        TEXT     NOT NULL DEFAULT '',
	education      TEXT     NOT NULL,
	num_children   INTEGER  NOT NULL DEFAULT 0,
	monthly_income REAL     NOT NULL DEFAULT 0,
	occupation     TEXT     NOT NULL,
	classification TEXT     NOT NULL,
	image_path     TEXT     NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_households_name ON households(name);
CREATE INDEX IF NOT EXISTS idx_households_created ON households(created_at);
`

const householdColumns = `id, name, address, education, num_children, monthly_income,
	occupation, classification, image_path, created_at, updated_at`

// SQLite implements Storage on a single database file
type SQLite struct {
	Db  *sql.DB
	now func() time.Time
}

var _ Storage = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database at path and applies
// the schema
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one writer at a time keeps SQLite out of "database is locked"
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLite{Db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *SQLite) Close() error {
	return s.Db.Close()
}

// --- Household Operations ---

func (s *SQLite) CreateHousehold(ctx context.Context, h models.Household) (models.Household, error) {
	now := s.now()
	res, err := s.Db.ExecContext(ctx, `
		INSERT INTO households
			(name, address, education, num_children, monthly_income, occupation,
			 classification, image_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.Name, h.Address, h.Education, h.NumChildren, h.MonthlyIncome, h.Occupation,
		string(h.Classification), h.ImagePath, now, now,
	)
	if err != nil {
		return models.Household{}, fmt.Errorf("insert household: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.Household{}, fmt.Errorf("insert household: last insert id: %w", err)
	}

	h.ID = id
	h.CreatedAt = now
	h.UpdatedAt = now
	return h, nil
}

func (s *SQLite) GetHousehold(ctx context.Context, id int64) (models.Household, error) {
	row := s.Db.QueryRowContext(ctx,
		"SELECT "+householdColumns+" FROM households WHERE id = ? LIMIT 1", id)

	h, err := scanHousehold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Household{}, fmt.Errorf("household %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Household{}, fmt.Errorf("get household %d: %w", id, err)
	}
	return h, nil
}

func (s *SQLite) ListHouseholds(ctx context.Context, f models.Filter) ([]models.Household, error) {
	where, args := filterClause(f)
	rows, err := s.Db.QueryContext(ctx,
		"SELECT "+householdColumns+" FROM households"+where+" ORDER BY created_at DESC, id DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()

	households := make([]models.Household, 0)
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("list households: scan: %w", err)
		}
		households = append(households, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list households: rows: %w", err)
	}
	return households, nil
}

func (s *SQLite) UpdateHousehold(ctx context.Context, id int64, h models.Household) (models.Household, error) {
	res, err := s.Db.ExecContext(ctx, `
		UPDATE households
		SET name = ?, address = ?, education = ?, num_children = ?, monthly_income = ?,
		    occupation = ?, classification = ?, updated_at = ?
		WHERE id = ?`,
		h.Name, h.Address, h.Education, h.NumChildren, h.MonthlyIncome,
		h.Occupation, string(h.Classification), s.now(), id,
	)
	if err != nil {
		return models.Household{}, fmt.Errorf("update household %d: %w", id, err)
	}
	if err := requireAffected(res, id); err != nil {
		return models.Household{}, err
	}
	return s.GetHousehold(ctx, id)
}

func (s *SQLite) SetHouseholdImage(ctx context.Context, id int64, imagePath string) error {
	res, err := s.Db.ExecContext(ctx,
		"UPDATE households SET image_path = ?, updated_at = ? WHERE id = ?", imagePath, s.now(), id)
	if err != nil {
		return fmt.Errorf("set image of household %d: %w", id, err)
	}
	return requireAffected(res, id)
}

func (s *SQLite) DeleteHousehold(ctx context.Context, id int64) (models.Household, error) {
	h, err := s.GetHousehold(ctx, id)
	if err != nil {
		return models.Household{}, err
	}
	if _, err := s.Db.ExecContext(ctx, "DELETE FROM households WHERE id = ?", id); err != nil {
		return models.Household{}, fmt.Errorf("delete household %d: %w", id, err)
	}
	return h, nil
}

func (s *SQLite) DeleteHouseholdsByName(ctx context.Context, name string) ([]models.Household, error) {
	tx, err := s.Db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("delete by name: begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT "+householdColumns+" FROM households WHERE name = ?", name)
	if err != nil {
		return nil, fmt.Errorf("delete by name: select: %w", err)
	}
	removed := make([]models.Household, 0)
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("delete by name: scan: %w", err)
		}
		removed = append(removed, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delete by name: rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM households WHERE name = ?", name); err != nil {
		return nil, fmt.Errorf("delete by name: exec: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("delete by name: commit: %w", err)
	}
	return removed, nil
}

func (s *SQLite) CountHouseholds(ctx context.Context) (int, error) {
	var n int
	if err := s.Db.QueryRowContext(ctx, "SELECT COUNT(*) FROM households").Scan(&n); err != nil {
		return 0, fmt.Errorf("count households: %w", err)
	}
	return n, nil
}

func (s *SQLite) Summarize(ctx context.Context, f models.Filter) (models.Summary, error) {
	where, args := filterClause(f)
	rows, err := s.Db.QueryContext(ctx,
		"SELECT classification, COUNT(*) FROM households"+where+" GROUP BY classification", args...)
	if err != nil {
		return models.Summary{}, fmt.Errorf("summarize: %w", err)
	}
	defer rows.Close()

	var sum models.Summary
	for rows.Next() {
		var (
			class string
			n     int
		)
		if err := rows.Scan(&class, &n); err != nil {
			return models.Summary{}, fmt.Errorf("summarize: scan: %w", err)
		}
		sum.Total += n
		switch models.Classification(class) {
		case models.Miskin:
			sum.Miskin = n
		case models.Menengah:
			sum.Menengah = n
		case models.Kaya:
			sum.Kaya = n
		}
	}
	if err := rows.Err(); err != nil {
		return models.Summary{}, fmt.Errorf("summarize: rows: %w", err)
	}
	return sum, nil
}

// --- User Operations ---

func (s *SQLite) CreateUser(ctx context.Context, u models.User) (models.User, error) {
	now := s.now()
	res, err := s.Db.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role, created_at) VALUES (?, ?, ?, ?)",
		u.Username, u.PasswordHash, string(u.Role), now)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return models.User{}, fmt.Errorf("user %q: %w", u.Username, ErrDuplicateUsername)
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return models.User{}, fmt.Errorf("insert user: last insert id: %w", err)
	}
	u.ID = id
	u.CreatedAt = now
	return u, nil
}

func (s *SQLite) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var (
		u    models.User
		role string
	)
	err := s.Db.QueryRowContext(ctx,
		"SELECT id, username, password_hash, role, created_at FROM users WHERE username = ? LIMIT 1", username,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	u.Role = models.Role(role)
	return u, nil
}

func (s *SQLite) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.Db.QueryContext(ctx, "SELECT id, username, role, created_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		var (
			u    models.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Username, &role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("list users: scan: %w", err)
		}
		u.Role = models.Role(role)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: rows: %w", err)
	}
	return users, nil
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHousehold(r rowScanner) (models.Household, error) {
	var (
		h     models.Household
		class string
	)
	err := r.Scan(&h.ID, &h.Name, &h.Address, &h.Education, &h.NumChildren, &h.MonthlyIncome,
		&h.Occupation, &class, &h.ImagePath, &h.CreatedAt, &h.UpdatedAt)
	h.Classification = models.Classification(class)
	return h, err
}

func filterClause(f models.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if term := strings.TrimSpace(f.Search); term != "" {
		conds = append(conds, `name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(term)+"%")
	}
	if f.Classification != "" {
		conds = append(conds, "classification = ?")
		args = append(args, string(f.Classification))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func requireAffected(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("household %d: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("household %d: %w", id, ErrNotFound)
	}
	return nil
}
