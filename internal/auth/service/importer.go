package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/aussiebroadwan/tabauth/internal/auth/domain"
	"github.com/aussiebroadwan/tabauth/internal/auth/store"
	"github.com/aussiebroadwan/tabauth/pkg/authsdk"
	"github.com/aussiebroadwan/tabauth/pkg/idx"
	"github.com/aussiebroadwan/tabauth/pkg/slogx"
	"golang.org/x/crypto/bcrypt"
)

// legacyCredential is one entry of a credentials.json file:
//
//	{"alice": {"password": "$2b$10$...", "role": "admin"}}
type legacyCredential struct {
	Password string `json:"password"`
	Role     string `json:"role"`
}

// ImportResult lists what an import did, by username.
type ImportResult struct {
	Created []string
	Skipped map[string]string // username -> reason
}

// Importer loads accounts from the JSON credential files older deployments
// kept on disk. Their bcrypt hashes are stored as-is and upgraded to argon2id
// on the user's next login.
type Importer struct {
	Store       store.Store
	DefaultRole string
	Clock       func() time.Time
}

// Import reads a credentials file and creates every account that does not
// exist yet. Bad entries are skipped, not fatal.
func (im *Importer) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	var creds map[string]legacyCredential
	if err := json.NewDecoder(r).Decode(&creds); err != nil {
		return ImportResult{}, invalidRequest("decode credentials: %v", err)
	}

	now := time.Now()
	if im.Clock != nil {
		now = im.Clock()
	}
	l := slogx.FromContext(ctx)

	roles, err := im.Store.Roles().ListAll(ctx)
	if err != nil {
		return ImportResult{}, storeErr("list roles", err)
	}
	roleIDs := make(map[string]string, len(roles))
	for _, r := range roles {
		roleIDs[r.Name] = r.ID
	}

	res := ImportResult{Skipped: make(map[string]string)}
	for _, username := range slices.Sorted(maps.Keys(creds)) {
		c := creds[username]

		if reason := checkLegacy(username, c); reason != "" {
			res.Skipped[username] = reason
			continue
		}
		roleName := c.Role
		if roleName == "" {
			roleName = im.DefaultRole
		}
		roleID, ok := roleIDs[roleName]
		if !ok {
			res.Skipped[username] = fmt.Sprintf("unknown role %q", roleName)
			continue
		}

		err := im.Store.Users().CreateUser(ctx, domain.User{
			ID:                idx.NewAt(now).String(),
			Username:          username,
			PasswordHash:      c.Password,
			RoleID:            roleID,
			PasswordChangedAt: now,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
		switch {
		case errors.Is(err, store.ErrAlreadyExists):
			res.Skipped[username] = "already exists"
			continue
		case err != nil:
			return res, storeErr("create user", err)
		}

		res.Created = append(res.Created, username)
		l.Info("user imported", slog.String("username", username), slog.String("role", roleName))
	}
	return res, nil
}

func checkLegacy(username string, c legacyCredential) string {
	if !authsdk.ValidUsername(username) {
		return "invalid username"
	}
	if _, err := bcrypt.Cost([]byte(c.Password)); err != nil {
		return "password is not a bcrypt hash"
	}
	return ""
}
