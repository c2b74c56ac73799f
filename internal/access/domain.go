package access

import "context"

// Role identifies a console user's permission class.
type Role string

// Console roles.
const (
	RoleAdmin              Role = "ADMIN"
	RoleNetworkAdmin       Role = "NETWORK_ADMIN"
	RoleProcurementOfficer Role = "PROCUREMENT_OFFICER"
	RoleComplianceOfficer  Role = "COMPLIANCE_OFFICER"
	RoleITAuditor          Role = "IT_AUDITOR"
	RoleOperationsManager  Role = "OPERATIONS_MANAGER"
	RoleNetworkEngineer    Role = "NETWORK_ENGINEER"
	RoleSecurityHead       Role = "SECURITY_HEAD"
	RoleComplianceLead     Role = "COMPLIANCE_LEAD"
	RoleProcurementLead    Role = "PROCUREMENT_LEAD"
	RoleProductOwner       Role = "PRODUCT_OWNER"
)

var knownRoles = []Role{
	RoleAdmin,
	RoleNetworkAdmin,
	RoleProcurementOfficer,
	RoleComplianceOfficer,
	RoleITAuditor,
	RoleOperationsManager,
	RoleNetworkEngineer,
	RoleSecurityHead,
	RoleComplianceLead,
	RoleProcurementLead,
	RoleProductOwner,
}

// Roles lists every console role in declaration order.
func Roles() []Role {
	out := make([]Role, len(knownRoles))
	copy(out, knownRoles)
	return out
}

// Known reports whether the role belongs to the console enumeration.
func (r Role) Known() bool {
	for _, known := range knownRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Principal is the explicit session context handed to anything that needs the current role.
type Principal struct {
	Username               string `json:"username"`
	Role                   Role   `json:"role"`
	Region                 string `json:"region"`
	PasswordChangeRequired bool   `json:"password_change_required"`
}

// Authenticated reports whether the principal belongs to a signed-in user.
func (p Principal) Authenticated() bool {
	return p.Username != ""
}

type principalContextKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. The zero Principal is returned
// for anonymous requests.
func PrincipalFromContext(ctx context.Context) Principal {
	p, _ := ctx.Value(principalContextKey{}).(Principal)
	return p
}
