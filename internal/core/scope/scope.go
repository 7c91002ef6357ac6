// Package scope defines the tenant scope threaded through every core operation.
//
// The scope is a mandatory explicit parameter, never an ambient value pulled
// from globals. Every repository query filters by scope.TenantID, which makes
// cross-tenant leakage a compile-time concern instead of a per-query habit.
package scope

import (
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
)

// Scope identifies the tenant (and acting user) for a unit of work.
type Scope struct {
	TenantID id.ID
	// UserID is the acting user, recorded as the actor in audit entries.
	UserID string
}

// New creates a scope for a tenant with an acting user.
func New(tenantID id.ID, userID string) Scope {
	return Scope{TenantID: tenantID, UserID: userID}
}

// Validate checks that the scope carries a tenant.
func (s Scope) Validate() error {
	if id.IsNil(s.TenantID) {
		return apperror.NewForbidden("tenant scope is required")
	}
	return nil
}

// Actor returns the acting user, or "system" when none was supplied.
func (s Scope) Actor() string {
	if s.UserID == "" {
		return "system"
	}
	return s.UserID
}
