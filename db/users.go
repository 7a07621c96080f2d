package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/filotkyc/engine/ids"
)

// User mirrors the §3 User entity.
type User struct {
	ID                 string
	Subject            string
	Email              string
	VerificationStatus string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// UserRepository persists Users.
type UserRepository struct {
	pool *Pool
}

func NewUserRepository(pool *Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetOrCreateBySubject implements the "created lazily on first successful
// auth-token verification" rule (§3): look up by IdP subject, creating a
// pending User on first sight.
func (r *UserRepository) GetOrCreateBySubject(ctx context.Context, subject, email string) (*User, error) {
	u, err := r.getBySubject(ctx, subject)
	if err == nil {
		return u, nil
	}
	if err != pgx.ErrNoRows {
		return nil, err
	}

	row := r.pool.Raw().QueryRow(ctx, `
		INSERT INTO users (id, subject, email, verification_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (subject) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, subject, email, verification_status, created_at, updated_at`,
		ids.New(), subject, email, VerificationPending)

	u = &User{}
	if scanErr := row.Scan(&u.ID, &u.Subject, &u.Email, &u.VerificationStatus, &u.CreatedAt, &u.UpdatedAt); scanErr != nil {
		return nil, fmt.Errorf("db: create user: %w", scanErr)
	}
	return u, nil
}

func (r *UserRepository) getBySubject(ctx context.Context, subject string) (*User, error) {
	u := &User{}
	err := r.pool.Raw().QueryRow(ctx, `
		SELECT id, subject, email, verification_status, created_at, updated_at
		FROM users WHERE subject = $1`, subject).
		Scan(&u.ID, &u.Subject, &u.Email, &u.VerificationStatus, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := r.pool.Raw().QueryRow(ctx, `
		SELECT id, subject, email, verification_status, created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Subject, &u.Email, &u.VerificationStatus, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db: get user %s: %w", id, err)
	}
	return u, nil
}

// SetVerificationStatus applies the §4.8 join-rule outcome to the User row.
func (r *UserRepository) SetVerificationStatus(ctx context.Context, userID, status string) error {
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE users SET verification_status = $1, updated_at = now() WHERE id = $2`,
		status, userID)
	if err != nil {
		return fmt.Errorf("db: set user verification status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("db: user not found: %s", userID)
	}
	return nil
}

// DocumentVerificationStatuses returns verification_status per Document for
// a User, keyed by document ID, used to compute the join rule in §4.8. The
// map carries no document type; the join treats every Document alike.
func (r *UserRepository) DocumentVerificationStatuses(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := r.pool.Raw().Query(ctx, `
		SELECT id, verification_status FROM documents WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("db: list document statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var docID, status string
		if err := rows.Scan(&docID, &status); err != nil {
			return nil, fmt.Errorf("db: scan document status: %w", err)
		}
		out[docID] = status
	}
	return out, rows.Err()
}
