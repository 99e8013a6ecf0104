package memory

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
)

type usersRepo struct {
	s  *Store
	tx *state
}

func (r *usersRepo) acc() access { return access{s: r.s, tx: r.tx} }

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	var out domain.User
	err := r.acc().read(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyUser(u)
		return nil
	})
	return out, err
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	var out domain.User
	err := r.acc().read(ctx, func(st *state) error {
		id, ok := st.usernames[foldUsername(username)]
		if !ok {
			return store.ErrNotFound
		}
		out = copyUser(st.users[id])
		return nil
	})
	return out, err
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	return r.acc().write(ctx, func(st *state) error {
		if _, ok := st.users[u.ID]; ok {
			return store.ErrAlreadyExists
		}
		key := foldUsername(u.Username)
		if _, ok := st.usernames[key]; ok {
			return store.ErrAlreadyExists
		}
		if _, ok := st.roles[u.RoleID]; !ok {
			return store.ErrNotFound
		}
		st.users[u.ID] = copyUser(u)
		st.usernames[key] = u.ID
		return nil
	})
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, p store.PasswordUpdate) error {
	return r.acc().write(ctx, func(st *state) error {
		u, ok := st.users[p.UserID]
		if !ok {
			return store.ErrNotFound
		}
		if u.PasswordHash != p.ExpectedHash {
			return store.ErrConflict
		}
		u.PasswordHash = p.NewHash
		u.UpdatedAt = p.UpdatedAt
		if p.Rotated {
			u.PasswordChangedAt = p.UpdatedAt
		}
		st.users[u.ID] = u
		return nil
	})
}

func (r *usersRepo) SetMFASecret(ctx context.Context, userID, secret string, at time.Time) error {
	return r.update(ctx, userID, func(u *domain.User) error {
		u.MFASecret = &secret
		u.UpdatedAt = at
		return nil
	})
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string, at time.Time) error {
	return r.update(ctx, userID, func(u *domain.User) error {
		if u.MFASecret == nil {
			return store.ErrConflict
		}
		u.MFAEnabled = &at
		u.UpdatedAt = at
		return nil
	})
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string, at time.Time) error {
	return r.update(ctx, userID, func(u *domain.User) error {
		u.MFASecret = nil
		u.MFAEnabled = nil
		u.UpdatedAt = at
		return nil
	})
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	return r.acc().write(ctx, func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return store.ErrNotFound
		}
		delete(st.users, userID)
		delete(st.usernames, foldUsername(u.Username))
		return nil
	})
}

func (r *usersRepo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.acc().read(ctx, func(st *state) error {
		n = len(st.users)
		return nil
	})
	return n, err
}

func (r *usersRepo) update(ctx context.Context, userID string, fn func(u *domain.User) error) error {
	return r.acc().write(ctx, func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return store.ErrNotFound
		}
		if err := fn(&u); err != nil {
			return err
		}
		st.users[userID] = copyUser(u)
		return nil
	})
}
