package auth

import "context"

// IdentityProvider exchanges a bearer credential for a verified identity.
type IdentityProvider interface {
	ResolveIdentity(ctx context.Context, token string) (Identity, error)
}

// MembershipStore answers whether an admin record exists for a user id.
type MembershipStore interface {
	HasAdminRecord(ctx context.Context, uid string) (bool, error)
}

// PrivilegeEvaluator decides admin privilege for a resolved identity. Only an
// explicit (true, nil) grants access.
type PrivilegeEvaluator interface {
	IsAdmin(ctx context.Context, identity Identity) (bool, error)
}
