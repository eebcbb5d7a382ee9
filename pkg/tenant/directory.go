package tenant

import "context"

// UserContext describes a user's membership within a tenant, as resolved by
// the directory collaborator.
type UserContext struct {
	UserID      string
	TenantID    string
	Role        string
	Permissions []string
}

// Directory is the optional read-only tenant collaborator. A nil Directory
// disables tenant validation; per-call errors degrade the check for that
// call rather than failing it.
type Directory interface {
	HasTenant(ctx context.Context, tenantID string) (bool, error)
	// GetUserContext returns nil when the user does not belong to the tenant.
	GetUserContext(ctx context.Context, tenantID, userID string) (*UserContext, error)
}
