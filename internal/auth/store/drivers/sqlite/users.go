package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, password_hash, role_id, password_changed_at,
	mfa_secret, mfa_enabled_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var (
		u                             domain.User
		changedAt, createdAt, updated int64
		secret                        sql.NullString
		enabledAt                     sql.NullInt64
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.RoleID, &changedAt,
		&secret, &enabledAt, &createdAt, &updated)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.PasswordChangedAt = fromMillis(changedAt)
	u.MFASecret = fromNullString(secret)
	u.MFAEnabled = fromNullMillis(enabledAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.PasswordHash, u.RoleID, toMillis(u.PasswordChangedAt),
		nullString(u.MFASecret), nullMillis(u.MFAEnabled), toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		return mapConstraint(err)
	}
	return nil
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, p store.PasswordUpdate) error {
	at := toMillis(p.UpdatedAt)
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = ?,
		    updated_at = ?,
		    password_changed_at = CASE WHEN ? THEN ? ELSE password_changed_at END
		WHERE id = ? AND password_hash = ?`,
		p.NewHash, at, p.Rotated, at, p.UserID, p.ExpectedHash,
	)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, p.UserID)
}

func (r *usersRepo) SetMFASecret(ctx context.Context, userID, secret string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_secret = ?, updated_at = ? WHERE id = ?`,
		secret, toMillis(at), userID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET mfa_enabled_at = ?, updated_at = ?
		WHERE id = ? AND mfa_secret IS NOT NULL`,
		toMillis(at), toMillis(at), userID,
	)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, res, userID)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET mfa_secret = NULL, mfa_enabled_at = NULL, updated_at = ?
		WHERE id = ?`,
		toMillis(at), userID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *usersRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// checkAffected distinguishes a guarded update that matched nothing because
// the row is gone from one whose guard failed.
func (r *usersRepo) checkAffected(ctx context.Context, res sql.Result, userID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var one int
	err = r.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, userID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case err != nil:
		return err
	default:
		return store.ErrConflict
	}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
