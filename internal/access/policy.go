package access

import "strings"

// AllowList is the set of roles permitted to see an affordance.
type AllowList map[Role]struct{}

// Allow builds an AllowList from the given roles. Blank roles are ignored.
func Allow(roles ...Role) AllowList {
	list := make(AllowList, len(roles))
	for _, role := range roles {
		role = Role(strings.TrimSpace(string(role)))
		if role == "" {
			continue
		}
		list[role] = struct{}{}
	}
	return list
}

// Contains reports membership of role.
func (a AllowList) Contains(role Role) bool {
	_, ok := a[role]
	return ok
}

// AccessRule binds an affordance to its permitted roles.
type AccessRule struct {
	AllowedRoles AllowList
}

// Permits evaluates the rule for role.
func (r AccessRule) Permits(role Role) bool {
	return ShouldRender(role, r.AllowedRoles)
}

// ShouldRender decides whether an affordance is rendered for the current role.
// An empty allow-list is unconditional; otherwise the role must be a member.
func ShouldRender(current Role, allowed AllowList) bool {
	if len(allowed) == 0 {
		return true
	}
	if current == "" {
		return false
	}
	return allowed.Contains(current)
}
