package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/idx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
)

// RoleSpec declares a role and the capabilities it should grant.
type RoleSpec struct {
	Name         string   `yaml:"name"`
	Capabilities []string `yaml:"capabilities"`
}

// DefaultRoles are seeded when the configuration names none.
var DefaultRoles = []RoleSpec{
	{Name: "user", Capabilities: []string{domain.CapProfileRead, domain.CapProfileWrite}},
	{Name: "admin", Capabilities: []string{
		domain.CapProfileRead, domain.CapProfileWrite, domain.CapRolesRead, domain.CapUsersWrite,
	}},
}

type RolesService struct {
	Store store.Store
	Clock func() time.Time
}

// ListAll returns all roles ordered by name.
func (s *RolesService) ListAll(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.Store.Roles().ListAll(ctx)
	if err != nil {
		return nil, storeErr("list roles", err)
	}
	return roles, nil
}

// EnsureRoles creates missing roles and brings existing ones to the declared
// capability set. Roles not mentioned are left alone.
func (s *RolesService) EnsureRoles(ctx context.Context, specs []RoleSpec) error {
	for _, spec := range specs {
		if !authsdk.ValidRoleName(spec.Name) {
			return invalidRequest("invalid role name %q", spec.Name)
		}
		for _, c := range spec.Capabilities {
			if !authsdk.ValidCapability(c) {
				return invalidRequest("role %q: invalid capability %q", spec.Name, c)
			}
		}
	}

	now := time.Now()
	if s.Clock != nil {
		now = s.Clock()
	}
	l := slogx.FromContext(ctx)

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, spec := range specs {
			caps := domain.NormalizeCapabilities(spec.Capabilities)

			existing, err := tx.Roles().GetRoleByName(ctx, spec.Name)
			switch {
			case errors.Is(err, store.ErrNotFound):
				err = tx.Roles().CreateRole(ctx, domain.Role{
					ID:           idx.NewAt(now).String(),
					Name:         spec.Name,
					Capabilities: caps,
					CreatedAt:    now,
					UpdatedAt:    now,
				})
				if err != nil {
					return storeErr("create role", err)
				}
				l.Info("role created", slog.String("role", spec.Name), slog.Any("capabilities", caps))
			case err != nil:
				return storeErr("get role", err)
			case !slices.Equal(existing.Capabilities, caps):
				if err := tx.Roles().UpdateRoleCapabilities(ctx, existing.ID, caps, now); err != nil {
					return storeErr("update role", err)
				}
				l.Info("role updated", slog.String("role", spec.Name), slog.Any("capabilities", caps))
			}
		}
		return nil
	})
}
