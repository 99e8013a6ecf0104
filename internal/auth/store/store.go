package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict reports a compare-and-swap miss: the row changed since the
	// caller read it.
	ErrConflict = errors.New("store: conflict")
)

// Store is the credential store. Drivers (sqlite, memory) implement it and
// expose sub-repositories so a transaction can hand out the same repos.
type Store interface {
	Users() Users
	Roles() Roles

	ApplyMigrations() error

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped view of the store. Nested transactions are not
// supported, so it deliberately lacks WithTx.
type Tx interface {
	Users() Users
	Roles() Roles
}

// PasswordUpdate replaces a password hash only if the stored hash still
// equals ExpectedHash.
type PasswordUpdate struct {
	UserID       string
	ExpectedHash string
	NewHash      string
	UpdatedAt    time.Time

	// Rotated marks a user initiated change: PasswordChangedAt is set to
	// UpdatedAt. Transparent rehashes leave it alone so sessions survive.
	Rotated bool
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)

	// CreateUser inserts a new user. A taken username or id yields
	// ErrAlreadyExists; the unique constraint decides, not a prior read.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash is a compare-and-swap on the hash. ErrConflict when
	// the stored hash differs from ExpectedHash, ErrNotFound when the user
	// is gone.
	UpdatePasswordHash(ctx context.Context, p PasswordUpdate) error

	// SetMFASecret stores a pending TOTP secret without enabling it.
	SetMFASecret(ctx context.Context, userID, secret string, at time.Time) error

	// EnableMFA marks TOTP as enabled.
	EnableMFA(ctx context.Context, userID string, at time.Time) error

	// DisableMFA clears the secret and the enabled timestamp.
	DisableMFA(ctx context.Context, userID string, at time.Time) error

	DeleteUser(ctx context.Context, userID string) error

	// CountUsers returns the number of accounts.
	CountUsers(ctx context.Context) (int, error)
}

type Roles interface {
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)

	GetRoleByName(ctx context.Context, name string) (domain.Role, error)

	// ListAll returns all roles ordered by name.
	ListAll(ctx context.Context) ([]domain.Role, error)

	// CreateRole inserts a role. Duplicate names yield ErrAlreadyExists.
	CreateRole(ctx context.Context, r domain.Role) error

	// UpdateRoleCapabilities replaces the capability set of a role.
	UpdateRoleCapabilities(ctx context.Context, roleID string, caps []string, at time.Time) error
}
