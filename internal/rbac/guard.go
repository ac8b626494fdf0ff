// Package rbac evaluates request authorization against the static role
// to permission policy.
package rbac

import (
	"fmt"
	"sort"
	"strings"

	"github.com/miq-labs/miq-be/internal/shared"
)

// Guard answers allow/deny for one identity and one required permission.
// It never reads storage: the policy table is compiled in at
// construction and validated at startup.
type Guard struct {
	grants map[string]map[string]struct{}
}

// NewGuard compiles the role to permission table.
func NewGuard(policy map[string][]string) *Guard {
	grants := make(map[string]map[string]struct{}, len(policy))
	for role, perms := range policy {
		set := make(map[string]struct{}, len(perms))
		for _, p := range perms {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			set[p] = struct{}{}
		}
		grants[role] = set
	}
	return &Guard{grants: grants}
}

// Authorize allows when permission is empty or present in the union of
// the identity's role grants. Matching is exact string equality; an
// unknown role name grants nothing. A missing identity is denied, never
// treated as a wildcard allow. The returned error is nil,
// shared.ErrNotAuthenticated or shared.ErrPermissionDenied.
func (g *Guard) Authorize(id *shared.Identity, permission string) error {
	if permission == "" {
		return nil
	}
	if id == nil || id.GUID == "" {
		return shared.ErrNotAuthenticated
	}
	for _, role := range id.Roles {
		if _, ok := g.grants[role][permission]; ok {
			return nil
		}
	}
	return shared.ErrPermissionDenied
}

// Permissions returns the sorted union of permissions the given roles
// grant.
func (g *Guard) Permissions(roles []string) []string {
	union := make(map[string]struct{})
	for _, role := range roles {
		for p := range g.grants[role] {
			union[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(union))
	for p := range union {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Roles returns the sorted role names the policy knows.
func (g *Guard) Roles() []string {
	out := make([]string, 0, len(g.grants))
	for role := range g.grants {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Validate checks that every referenced permission is granted by at
// least one role. A permission no role grants would make its routes
// unreachable, so the violation is fatal at startup.
func (g *Guard) Validate(referenced []string) error {
	granted := make(map[string]struct{})
	for _, perms := range g.grants {
		for p := range perms {
			granted[p] = struct{}{}
		}
	}

	missing := make(map[string]struct{})
	for _, p := range referenced {
		if p == "" {
			continue
		}
		if _, ok := granted[p]; !ok {
			missing[p] = struct{}{}
		}
	}
	if len(missing) == 0 {
		return nil
	}

	names := make([]string, 0, len(missing))
	for p := range missing {
		names = append(names, p)
	}
	sort.Strings(names)
	return fmt.Errorf("%w: permissions granted by no role: %s", shared.ErrConfiguration, strings.Join(names, ", "))
}
