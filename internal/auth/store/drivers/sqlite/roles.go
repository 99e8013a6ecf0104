package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
)

type rolesRepo struct {
	db dbtx
}

const roleColumns = `id, name, capabilities, created_at, updated_at`

func scanRole(row rowScanner) (domain.Role, error) {
	var (
		r                  domain.Role
		caps               string
		createdAt, updated int64
	)
	if err := row.Scan(&r.ID, &r.Name, &caps, &createdAt, &updated); err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	r.Capabilities = splitCapabilities(caps)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	return scanRole(r.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = ?`, id))
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	return scanRole(r.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = ?`, name))
}

func (r *rolesRepo) ListAll(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]domain.Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO roles (`+roleColumns+`) VALUES (?, ?, ?, ?, ?)`,
		role.ID, role.Name, joinCapabilities(domain.NormalizeCapabilities(role.Capabilities)),
		toMillis(role.CreatedAt), toMillis(role.UpdatedAt),
	)
	if err != nil {
		return mapConstraint(err)
	}
	return nil
}

func (r *rolesRepo) UpdateRoleCapabilities(ctx context.Context, roleID string, caps []string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE roles SET capabilities = ?, updated_at = ? WHERE id = ?`,
		joinCapabilities(domain.NormalizeCapabilities(caps)), toMillis(at), roleID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}
