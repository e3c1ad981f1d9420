package rbac

import "strings"

// Trusted headers set by the upstream identity proxy.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Policy decides which roles may perform privileged operations such as
// accepting corrections or ending stocktake sessions.
type Policy struct {
	privileged map[string]struct{}
}

// NewPolicy builds a Policy from role names. Matching is case-insensitive.
func NewPolicy(roles []string) Policy {
	set := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		role = normalizeRole(role)
		if role == "" {
			continue
		}
		set[role] = struct{}{}
	}
	return Policy{privileged: set}
}

// IsPrivileged reports whether role is privileged.
func (p Policy) IsPrivileged(role string) bool {
	_, ok := p.privileged[normalizeRole(role)]
	return ok
}

func normalizeRole(role string) string {
	return strings.TrimSpace(strings.ToLower(role))
}
