package auth

import (
	"context"
	"slices"
	"strings"
)

const (
	RoleShopper = "shopper"
	RoleStaff   = "staff"
)

// Identity is the caller behind a verified Firebase ID token. Tokens without a role claim
// get RoleShopper.
type Identity struct {
	UID   string
	Email string
	Roles []string
}

// HasRole compares roles case-insensitively.
func (i *Identity) HasRole(role string) bool {
	role = normaliseRole(role)
	if i == nil || role == "" {
		return false
	}
	return slices.ContainsFunc(i.Roles, func(r string) bool { return normaliseRole(r) == role })
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity set by the auth middleware.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, _ := ctx.Value(identityKey{}).(*Identity)
	return identity, identity != nil
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
