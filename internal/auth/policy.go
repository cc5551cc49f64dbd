package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Policy names accepted by NewPolicy.
const (
	PolicyMembership = "membership"
	PolicyMetadata   = "metadata"
	PolicyTransition = "transition"
)

// MembershipPolicy grants admin privilege when an admin record exists for the
// identity id. This is the canonical policy.
type MembershipPolicy struct {
	Store MembershipStore
}

func (p MembershipPolicy) IsAdmin(ctx context.Context, identity Identity) (bool, error) {
	if p.Store == nil {
		return false, errors.New("membership store is not configured")
	}
	if strings.TrimSpace(identity.ID) == "" {
		return false, nil
	}
	ok, err := p.Store.HasAdminRecord(ctx, identity.ID)
	if err != nil {
		return false, fmt.Errorf("admin record lookup: %w", err)
	}
	return ok, nil
}

// MetadataRolePolicy grants admin privilege when the identity's application
// metadata carries exactly role "admin". Any other spelling is not admin.
type MetadataRolePolicy struct{}

func (MetadataRolePolicy) IsAdmin(_ context.Context, identity Identity) (bool, error) {
	return identity.AppMetadata["role"] == AdminRole, nil
}

// TransitionPolicy honours a secondary data source while admins are migrated
// to the primary one. Fallback is only consulted after Primary answers false
// without error.
type TransitionPolicy struct {
	Primary  PrivilegeEvaluator
	Fallback PrivilegeEvaluator
}

func (p TransitionPolicy) IsAdmin(ctx context.Context, identity Identity) (bool, error) {
	if p.Primary == nil {
		return false, errors.New("primary policy is not configured")
	}
	ok, err := p.Primary.IsAdmin(ctx, identity)
	if err != nil || ok {
		return ok, err
	}
	if p.Fallback == nil {
		return false, nil
	}
	return p.Fallback.IsAdmin(ctx, identity)
}

// NewPolicy builds the evaluator named by name. The membership store is
// required for the membership and transition policies.
func NewPolicy(name string, store MembershipStore) (PrivilegeEvaluator, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", PolicyMembership:
		if store == nil {
			return nil, errors.New("membership policy requires a store")
		}
		return MembershipPolicy{Store: store}, nil
	case PolicyMetadata:
		return MetadataRolePolicy{}, nil
	case PolicyTransition:
		if store == nil {
			return nil, errors.New("transition policy requires a store")
		}
		return TransitionPolicy{
			Primary:  MembershipPolicy{Store: store},
			Fallback: MetadataRolePolicy{},
		}, nil
	default:
		return nil, fmt.Errorf("unknown admin policy %q", name)
	}
}
