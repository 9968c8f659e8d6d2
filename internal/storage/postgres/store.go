package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hongminglow/onboard-be/internal/models"
	"github.com/hongminglow/onboard-be/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ensure Store satisfies the storage.UserStore interface at compile time.
var _ storage.UserStore = (*Store)(nil)

const uniqueViolation = "23505"

const userColumns = `
	id::text, role, first_name, middle_name, last_name, date_of_birth, gender, is_legal_to_work,
	phone_number, COALESCE(email, ''), password_hash,
	country, state, local_government, current_address,
	identity_type, identity_number, selfie_url,
	is_phone_verified, is_email_verified, is_profile_complete,
	otp_code, otp_expires_at, created_at, updated_at`

// Store provides Postgres-backed persistence for registrants.
type Store struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new Store and runs migrations.
func NewUserStore(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 20
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			role TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			middle_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			date_of_birth TEXT NOT NULL DEFAULT '',
			gender TEXT NOT NULL DEFAULT '',
			is_legal_to_work BOOLEAN,
			phone_number TEXT NOT NULL,
			email TEXT,
			password_hash TEXT NOT NULL DEFAULT '',
			country TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT '',
			local_government TEXT NOT NULL DEFAULT '',
			current_address TEXT NOT NULL DEFAULT '',
			identity_type TEXT NOT NULL DEFAULT '',
			identity_number TEXT NOT NULL DEFAULT '',
			selfie_url TEXT NOT NULL DEFAULT '',
			is_phone_verified BOOLEAN NOT NULL DEFAULT FALSE,
			is_email_verified BOOLEAN NOT NULL DEFAULT FALSE,
			is_profile_complete BOOLEAN NOT NULL DEFAULT FALSE,
			otp_code TEXT,
			otp_expires_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_phone_number_unique_idx ON users (phone_number);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_unique_idx ON users (email);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	return nil
}

// UpsertPhoneOTP creates the record for phoneNumber if needed and sets a
// pending code on it.
func (s *Store) UpsertPhoneOTP(ctx context.Context, phoneNumber string, otp models.OTP) (models.User, error) {
	query := `
		INSERT INTO users (id, phone_number, otp_code, otp_expires_at)
		VALUES ($1::uuid, $2, $3, $4)
		ON CONFLICT (phone_number) DO UPDATE
		SET otp_code = EXCLUDED.otp_code, otp_expires_at = EXCLUDED.otp_expires_at, updated_at = NOW()
		RETURNING ` + userColumns
	row := s.pool.QueryRow(ctx, query, uuid.NewString(), phoneNumber, otp.Code, otp.ExpiresAt)
	return scanUser(row)
}

// FindByID fetches a user by id. Malformed ids are reported as not found.
func (s *Store) FindByID(ctx context.Context, id string) (models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.User{}, storage.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1::uuid`, id)
	return scanUser(row)
}

// FindByPhone fetches a user by phone number.
func (s *Store) FindByPhone(ctx context.Context, phoneNumber string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phoneNumber)
	return scanUser(row)
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, models.NormalizeEmail(email))
	return scanUser(row)
}

// UpdatePartial applies patch without validating the record.
func (s *Store) UpdatePartial(ctx context.Context, id string, patch storage.Patch) error {
	if _, err := uuid.Parse(id); err != nil {
		return storage.ErrNotFound
	}

	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Email != nil {
		add("email", models.NormalizeEmail(*patch.Email))
	}
	switch {
	case patch.ClearOTP:
		sets = append(sets, "otp_code = NULL", "otp_expires_at = NULL")
	case patch.OTP != nil:
		add("otp_code", patch.OTP.Code)
		add("otp_expires_at", patch.OTP.ExpiresAt)
	}
	if patch.MarkPhoneVerified {
		sets = append(sets, "is_phone_verified = TRUE")
	}
	if patch.MarkEmailVerified {
		sets = append(sets, "is_email_verified = TRUE")
	}

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $1::uuid`, strings.Join(sets, ", "))
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SaveProfile validates user as a completed profile and persists it.
func (s *Store) SaveProfile(ctx context.Context, user models.User) (models.User, error) {
	if err := user.Validate(); err != nil {
		return models.User{}, err
	}
	if _, err := uuid.Parse(user.ID); err != nil {
		return models.User{}, storage.ErrNotFound
	}

	query := `
		UPDATE users SET
			role = $2, first_name = $3, middle_name = $4, last_name = $5, date_of_birth = $6,
			gender = $7, is_legal_to_work = $8, email = $9, password_hash = $10,
			country = $11, state = $12, local_government = $13, current_address = $14,
			identity_type = $15, identity_number = $16, selfie_url = $17,
			is_profile_complete = TRUE, updated_at = NOW()
		WHERE id = $1::uuid
		RETURNING ` + userColumns
	row := s.pool.QueryRow(ctx, query,
		user.ID, user.Role, user.FirstName, user.MiddleName, user.LastName, user.DateOfBirth,
		user.Gender, user.IsLegalToWork, models.NormalizeEmail(user.Email), user.PasswordHash,
		user.Address.Country, user.Address.State, user.Address.LocalGovernment, user.Address.CurrentAddress,
		user.Verification.IdentityType, user.Verification.IdentityNumber, user.Verification.SelfieURL,
	)
	saved, err := scanUser(row)
	if err != nil {
		return models.User{}, mapWriteError(err)
	}
	return saved, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return storage.ErrAlreadyExists
	}
	return err
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user         models.User
		otpCode      *string
		otpExpiresAt *time.Time
	)
	err := row.Scan(
		&user.ID, &user.Role, &user.FirstName, &user.MiddleName, &user.LastName, &user.DateOfBirth, &user.Gender, &user.IsLegalToWork,
		&user.PhoneNumber, &user.Email, &user.PasswordHash,
		&user.Address.Country, &user.Address.State, &user.Address.LocalGovernment, &user.Address.CurrentAddress,
		&user.Verification.IdentityType, &user.Verification.IdentityNumber, &user.Verification.SelfieURL,
		&user.IsPhoneVerified, &user.IsEmailVerified, &user.IsProfileComplete,
		&otpCode, &otpExpiresAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, mapWriteError(err)
	}
	if otpCode != nil && otpExpiresAt != nil {
		user.OTP = &models.OTP{Code: *otpCode, ExpiresAt: *otpExpiresAt}
	}
	return user, nil
}
