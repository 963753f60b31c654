// Package permission resolves (session, operation, resource) to an
// allow/deny decision using role tiers, ACLs, ownership, and declarative
// rules, checked in a fixed order where the first match wins.
package permission

import (
	"context"

	"github.com/OmarEhab007/wiregate/internal/collab"
	"github.com/OmarEhab007/wiregate/internal/domain"
	"github.com/OmarEhab007/wiregate/internal/protocol"
)

// DefaultDecision is what happens when no rule matches.
type DefaultDecision bool

const (
	DefaultAllow DefaultDecision = true
	DefaultDeny  DefaultDecision = false
)

// CheckFunc is a custom override for step 5 of the decision algorithm.
// Returning (decided=true, allow=...) terminates the decision; returning
// decided=false falls through to the configured default.
type CheckFunc func(ctx context.Context, session *domain.Session, operation, resource string) (decided bool, allow bool)

// builtinTierRoles are the roles that additionally constrain tier
// access.
var builtinTierRoles = map[string]domain.OperationTier{
	"reader": domain.TierRead,
	"writer": domain.TierWrite,
	"admin":  domain.TierAdmin,
}

var tierRank = map[domain.OperationTier]int{
	domain.TierRead:  1,
	domain.TierWrite: 2,
	domain.TierAdmin: 3,
}

// Engine resolves permission decisions. It consults the identity manager
// for ACL entries, role permissions, and ownership.
type Engine struct {
	Identity collab.IdentityManager
	Default  DefaultDecision
	Check    CheckFunc // optional, overrides step 5
}

// Allow returns nil if the session may perform operation on resource, or a
// typed FORBIDDEN error otherwise.
func (e *Engine) Allow(ctx context.Context, session *domain.Session, operation, resource string) error {
	if session.HasRole("superadmin") {
		return nil
	}

	allowed, err := e.decide(ctx, session, operation, resource)
	if err != nil {
		return err
	}
	if !allowed {
		return protocol.NewError(protocol.CodeForbidden, "operation not permitted")
	}

	if !e.tierFloorOK(session, operation) {
		return protocol.NewError(protocol.CodeForbidden, "operation not permitted for this role")
	}
	return nil
}

func (e *Engine) decide(ctx context.Context, session *domain.Session, operation, resource string) (bool, error) {
	resourceType := ResourceType(operation)
	requiredTier := TierOf(operation)

	if session != nil && e.Identity != nil {
		// Step 2: user ACL.
		userACL, err := e.Identity.ListACL(ctx, "user", session.UserID)
		if err != nil {
			return false, protocol.NewError(protocol.CodeInternalError, "permission lookup failed")
		}
		if aclGrants(userACL, resourceType, resource, requiredTier) {
			return true, nil
		}

		// Step 3: role ACL.
		for _, role := range session.Roles {
			roleACL, err := e.Identity.ListACL(ctx, "role", role)
			if err != nil {
				return false, protocol.NewError(protocol.CodeInternalError, "permission lookup failed")
			}
			if aclGrants(roleACL, resourceType, resource, requiredTier) {
				return true, nil
			}
		}

		// Step 4: ownership.
		if owner, ok, err := e.Identity.GetOwner(ctx, resourceType, resource); err == nil && ok && owner == session.UserID {
			return true, nil
		}
	}

	// Step 5: custom check, else declarative RolePermission rules.
	if e.Check != nil {
		if decided, allow := e.Check(ctx, session, operation, resource); decided {
			return allow, nil
		}
	} else if session != nil && e.Identity != nil {
		for _, role := range session.Roles {
			perms, err := e.Identity.RolePermissions(ctx, role)
			if err != nil {
				continue
			}
			for _, rp := range perms {
				if matchesAllow(rp.Allow, operation) && matchesConstraint(rp, resourceType, resource) {
					return true, nil
				}
			}
		}
	}

	// Step 6: default.
	return bool(e.Default), nil
}

func aclGrants(entries []domain.ACLEntry, resourceType, resource string, tier domain.OperationTier) bool {
	for _, ent := range entries {
		if ent.ResourceType != resourceType && ent.ResourceType != "*" {
			continue
		}
		if ent.ResourceName != resource && ent.ResourceName != "*" {
			continue
		}
		for _, op := range ent.Operations {
			if domain.OperationTier(op) == tier {
				return true
			}
		}
	}
	return false
}

func matchesAllow(patterns []string, operation string) bool {
	for _, p := range patterns {
		if p == "*" {
			return true
		}
		if p == operation {
			return true
		}
		if len(p) > 2 && p[len(p)-2:] == ".*" {
			prefix := p[:len(p)-1] // keep trailing "."
			if len(operation) > len(prefix) && operation[:len(prefix)] == prefix {
				return true
			}
		}
	}
	return false
}

func matchesConstraint(rp domain.RolePermission, resourceType, resource string) bool {
	switch resourceType {
	case "bucket":
		if len(rp.Buckets) == 0 {
			return true
		}
		return contains(rp.Buckets, resource)
	case "topic":
		if len(rp.Topics) == 0 {
			return true
		}
		return contains(rp.Topics, resource)
	default:
		return true
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v || x == "*" {
			return true
		}
	}
	return false
}

// tierFloorOK applies the built-in-role tier ceiling. A session with
// only custom roles bypasses the filter entirely.
func (e *Engine) tierFloorOK(session *domain.Session, operation string) bool {
	if session == nil {
		return true
	}
	best := -1
	sawBuiltin := false
	for _, role := range session.Roles {
		if tier, ok := builtinTierRoles[role]; ok {
			sawBuiltin = true
			if r := tierRank[tier]; r > best {
				best = r
			}
		}
	}
	if !sawBuiltin {
		return true
	}
	return tierRank[TierOf(operation)] <= best
}
