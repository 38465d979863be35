package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"tenant-identity-provider/internal/account/domain"
)

const pgUniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, username, password_hash, status, failed_logins, locked_until, created_at, updated_at`

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByUsername returns the account with the given username, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	return scanAccount(row)
}

// GetByLogin returns the account linked to (provider, providerKey), or nil if
// no account is linked. It returns an error only for database failures.
func (r *PostgresRepository) GetByLogin(ctx context.Context, provider, providerKey string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT a.id, a.username, a.password_hash, a.status, a.failed_logins, a.locked_until, a.created_at, a.updated_at
		FROM accounts a
		JOIN external_logins l ON l.account_id = a.id
		WHERE l.provider = $1 AND l.provider_key = $2`, provider, providerKey)
	return scanAccount(row)
}

// Create persists the account. The account must have ID set.
// Returns ErrUsernameTaken if the username is already in use.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, password_hash, status, failed_logins, locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Username, nullString(a.PasswordHash), string(a.Status),
		a.FailedLogins, nullTime(a.LockedUntil), a.CreatedAt, a.UpdatedAt)
	return mapUniqueViolation(err)
}

// CreateWithLogin creates the account and links the external login in one
// transaction. A failure on either statement rolls back both, so a link
// failure never leaves an orphaned account behind.
func (r *PostgresRepository) CreateWithLogin(ctx context.Context, a *domain.Account, l *domain.ExternalLogin) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, username, password_hash, status, failed_logins, locked_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.Username, nullString(a.PasswordHash), string(a.Status),
		a.FailedLogins, nullTime(a.LockedUntil), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO external_logins (id, account_id, provider, provider_key, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		l.ID, l.AccountID, l.Provider, l.ProviderKey, l.CreatedAt)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return tx.Commit()
}

// UpdateLoginAttempts records the failed-login counter and lockout deadline.
func (r *PostgresRepository) UpdateLoginAttempts(ctx context.Context, id string, failedLogins int, lockedUntil *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET failed_logins = $2, locked_until = $3, updated_at = now() WHERE id = $1`,
		id, failedLogins, nullTime(lockedUntil))
	return err
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	var passwordHash sql.NullString
	var lockedUntil sql.NullTime
	var status string
	err := row.Scan(&a.ID, &a.Username, &passwordHash, &status,
		&a.FailedLogins, &lockedUntil, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.PasswordHash = passwordHash.String
	a.Status = domain.AccountStatus(status)
	if lockedUntil.Valid {
		t := lockedUntil.Time
		a.LockedUntil = &t
	}
	return &a, nil
}

// mapUniqueViolation maps Postgres unique-violation errors to the store's
// typed errors so callers can tell a taken username from a linked identity.
func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		switch pgErr.ConstraintName {
		case "accounts_username_key":
			return ErrUsernameTaken
		case "external_logins_provider_provider_key_key":
			return ErrLoginAlreadyLinked
		}
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
