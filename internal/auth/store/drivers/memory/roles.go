package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
)

type rolesRepo struct {
	s  *Store
	tx *state
}

func (r *rolesRepo) acc() access { return access{s: r.s, tx: r.tx} }

func (r *rolesRepo) GetRoleByID(ctx context.Context, id string) (domain.Role, error) {
	var out domain.Role
	err := r.acc().read(ctx, func(st *state) error {
		role, ok := st.roles[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyRole(role)
		return nil
	})
	return out, err
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var out domain.Role
	err := r.acc().read(ctx, func(st *state) error {
		id, ok := st.roleNames[name]
		if !ok {
			return store.ErrNotFound
		}
		out = copyRole(st.roles[id])
		return nil
	})
	return out, err
}

func (r *rolesRepo) ListAll(ctx context.Context) ([]domain.Role, error) {
	out := make([]domain.Role, 0)
	err := r.acc().read(ctx, func(st *state) error {
		for _, role := range st.roles {
			out = append(out, copyRole(role))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b domain.Role) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	return r.acc().write(ctx, func(st *state) error {
		if _, ok := st.roles[role.ID]; ok {
			return store.ErrAlreadyExists
		}
		if _, ok := st.roleNames[role.Name]; ok {
			return store.ErrAlreadyExists
		}
		role.Capabilities = domain.NormalizeCapabilities(role.Capabilities)
		st.roles[role.ID] = copyRole(role)
		st.roleNames[role.Name] = role.ID
		return nil
	})
}

func (r *rolesRepo) UpdateRoleCapabilities(ctx context.Context, roleID string, caps []string, at time.Time) error {
	return r.acc().write(ctx, func(st *state) error {
		role, ok := st.roles[roleID]
		if !ok {
			return store.ErrNotFound
		}
		role.Capabilities = domain.NormalizeCapabilities(caps)
		role.UpdatedAt = at
		st.roles[roleID] = role
		return nil
	})
}
