package domain

import (
	"slices"
	"time"
)

type Role struct {
	ID           string
	Name         string
	Capabilities []string // Sorted, stored space-delimited
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Capabilities every deployment knows about. Roles may grant others too.
const (
	CapProfileRead  = "profile:read"
	CapProfileWrite = "profile:write"
	CapUsersWrite   = "users:write"
	CapRolesRead    = "roles:read"
)

// Has reports whether the role grants capability.
func (r Role) Has(capability string) bool {
	return slices.Contains(r.Capabilities, capability)
}

// NormalizeCapabilities sorts and de-duplicates a capability list.
func NormalizeCapabilities(caps []string) []string {
	out := slices.Clone(caps)
	slices.Sort(out)
	return slices.Compact(out)
}
