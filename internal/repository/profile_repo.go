package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expense_ingest/internal/model"

	"github.com/jackc/pgx/v5"
)

var (
	// ErrProfileNotFound is returned by updates that match no profile row.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrCodeMismatch means the pending code was replaced, cleared or expired
	// before it could be confirmed.
	ErrCodeMismatch = errors.New("pending verification code does not match")
)

// ProfileRepository stores identity records and their verification secrets.
// Every write is a single-statement overwrite.
type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	FindVerifiedByPhone(ctx context.Context, phone string) (*model.Profile, error)
	SetPendingCode(ctx context.Context, id, phone, code string, expiresAt time.Time) error
	MarkVerified(ctx context.Context, id, code string, now time.Time) error
	Disconnect(ctx context.Context, id string) error
}

type profileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepository{db: db}
}

const profileColumns = `id, name, phone_number, phone_verified, verification_code, verification_code_expires_at, whatsapp_connected`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	p := &model.Profile{}
	err := row.Scan(&p.ID, &p.Name, &p.PhoneNumber, &p.PhoneVerified,
		&p.VerificationCode, &p.VerificationCodeExpiresAt, &p.WhatsAppConnected)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID retrieves a profile by its ID
func (r *profileRepository) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	sql := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(r.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return p, nil
}

// FindVerifiedByPhone retrieves the profile whose verified phone matches the
// channel address.
func (r *profileRepository) FindVerifiedByPhone(ctx context.Context, phone string) (*model.Profile, error) {
	sql := `SELECT ` + profileColumns + ` FROM profiles
            WHERE phone_number = $1 AND phone_verified = TRUE
              AND verification_code IS NULL AND verification_code_expires_at IS NULL
            ORDER BY updated_at DESC LIMIT 1`
	p, err := scanProfile(r.db.QueryRow(ctx, sql, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Unknown sender is not an error for the pipeline
		}
		return nil, fmt.Errorf("failed to find profile by phone: %w", err)
	}
	return p, nil
}

// SetPendingCode stores a freshly issued code, replacing any previous one.
func (r *profileRepository) SetPendingCode(ctx context.Context, id, phone, code string, expiresAt time.Time) error {
	sql := `UPDATE profiles
            SET phone_number = $1, verification_code = $2, verification_code_expires_at = $3, phone_verified = FALSE
            WHERE id = $4`
	return r.execOne(ctx, "set verification code", sql, phone, code, expiresAt, id)
}

// MarkVerified flags the phone as verified and clears the pending code, but
// only while code is still the live, unexpired pending code.
func (r *profileRepository) MarkVerified(ctx context.Context, id, code string, now time.Time) error {
	sql := `UPDATE profiles
            SET phone_verified = TRUE, verification_code = NULL, verification_code_expires_at = NULL, whatsapp_connected = TRUE
            WHERE id = $1 AND verification_code = $2 AND verification_code_expires_at >= $3`
	err := r.execOne(ctx, "mark phone verified", sql, id, code, now)
	if errors.Is(err, ErrProfileNotFound) {
		return ErrCodeMismatch
	}
	return err
}

// Disconnect unlinks the channel and clears every verification field.
func (r *profileRepository) Disconnect(ctx context.Context, id string) error {
	sql := `UPDATE profiles
            SET phone_number = NULL, phone_verified = FALSE, verification_code = NULL,
                verification_code_expires_at = NULL, whatsapp_connected = FALSE
            WHERE id = $1`
	return r.execOne(ctx, "disconnect phone", sql, id)
}

func (r *profileRepository) execOne(ctx context.Context, op, sql string, args ...any) error {
	cmdTag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProfileNotFound
	}
	return nil
}
