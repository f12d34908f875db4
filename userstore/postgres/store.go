package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/credguard"
)

const uniqueViolation = "23505"

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is a credguard.UserProvider backed by a single users table.
type Store struct {
	db    DB
	table string
	now   func() time.Time
}

var _ credguard.UserProvider = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithTable overrides the table name. The name is not quoted.
func WithTable(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.table = name
		}
	}
}

// WithClock sets the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps an open pool.
func New(db DB, opts ...Option) *Store {
	s := &Store{db: db, table: "credguard_users", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Migrate creates the users table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS ` + s.table + ` (
		id            UUID PRIMARY KEY,
		email         TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`
	if _, err := s.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (credguard.UserRecord, error) {
	query := `SELECT id, email, password_hash, created_at FROM ` + s.table + ` WHERE email = $1`
	return s.scanUser(s.db.QueryRow(ctx, query, email))
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (credguard.UserRecord, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return credguard.UserRecord{}, credguard.ErrUserNotFound
	}
	query := `SELECT id, email, password_hash, created_at FROM ` + s.table + ` WHERE id = $1`
	return s.scanUser(s.db.QueryRow(ctx, query, id))
}

// CreateUser inserts a new account with a random UUID.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string) (credguard.UserRecord, error) {
	now := s.now().UTC()
	query := `INSERT INTO ` + s.table + ` (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING id, email, password_hash, created_at`
	return s.scanUser(s.db.QueryRow(ctx, query, uuid.New(), email, passwordHash, now))
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	query := `UPDATE ` + s.table + ` SET password_hash = $2, updated_at = $3 WHERE id = $1`
	return s.update(ctx, query, userID, passwordHash)
}

func (s *Store) UpdateEmail(ctx context.Context, userID, email string) error {
	query := `UPDATE ` + s.table + ` SET email = $2, updated_at = $3 WHERE id = $1`
	return s.update(ctx, query, userID, email)
}

func (s *Store) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM ` + s.table + ` WHERE email = $1)`
	if err := s.db.QueryRow(ctx, query, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: email exists: %w", err)
	}
	return exists, nil
}

func (s *Store) update(ctx context.Context, query, userID, value string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return credguard.ErrUserNotFound
	}
	tag, err := s.db.Exec(ctx, query, id, value, s.now().UTC())
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return credguard.ErrUserNotFound
	}
	return nil
}

func (s *Store) scanUser(row pgx.Row) (credguard.UserRecord, error) {
	var (
		rec credguard.UserRecord
		id  uuid.UUID
	)
	if err := row.Scan(&id, &rec.Email, &rec.PasswordHash, &rec.CreatedAt); err != nil {
		return credguard.UserRecord{}, mapError(err)
	}
	rec.ID = id.String()
	return rec, nil
}

func mapError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return credguard.ErrUserNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", credguard.ErrProviderDuplicateIdentifier, pgErr.ConstraintName)
	}
	return fmt.Errorf("postgres: %w", err)
}
