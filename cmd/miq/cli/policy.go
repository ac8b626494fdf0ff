package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/miq-labs/miq-be/internal/shared"
)

// routePermissions are the permissions the API surface references. The
// lint command cross-checks them against the role table the same way
// startup validation does.
var routePermissions = []string{
	shared.PermUsersView,
	shared.PermUsersEdit,
	shared.PermUsersDelete,
	shared.PermRolesView,
	shared.PermRolesManage,
	shared.PermAuditView,
}

// PolicyLintOptions defines available flags for the policy lint command.
type PolicyLintOptions struct {
	// Referenced overrides the permission set to check. Empty means the
	// built-in route permissions.
	Referenced []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// PolicyLintSummary describes the JSON response for policy lint.
type PolicyLintSummary struct {
	OK      bool         `json:"ok"`
	Roles   []RoleGrants `json:"roles"`
	Orphans []string     `json:"orphans"`
}

// RoleGrants lists the permissions a role carries.
type RoleGrants struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// PolicyCLI inspects an authorization table.
type PolicyCLI struct {
	policy map[string][]string
}

// NewPolicyCLI constructs the helper for the given role table.
func NewPolicyCLI(policy map[string][]string) *PolicyCLI {
	return &PolicyCLI{policy: policy}
}

// LintCommand checks that every referenced permission is granted by at
// least one role and prints the role matrix.
func (c *PolicyCLI) LintCommand(opts PolicyLintOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	referenced := opts.Referenced
	if len(referenced) == 0 {
		referenced = routePermissions
	}
	summary := c.buildLintSummary(referenced)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "policy lint: encode json: %v\n", err)
			return 1
		}
	} else {
		renderLintHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func (c *PolicyCLI) buildLintSummary(referenced []string) PolicyLintSummary {
	granted := make(map[string]struct{})
	roles := make([]RoleGrants, 0, len(c.policy))
	for role, perms := range c.policy {
		sorted := append([]string(nil), perms...)
		sort.Strings(sorted)
		roles = append(roles, RoleGrants{Role: role, Permissions: sorted})
		for _, p := range perms {
			granted[p] = struct{}{}
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Role < roles[j].Role })

	orphans := make([]string, 0)
	seen := make(map[string]struct{})
	for _, p := range referenced {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		if _, ok := granted[p]; !ok {
			orphans = append(orphans, p)
		}
	}
	sort.Strings(orphans)

	return PolicyLintSummary{OK: len(orphans) == 0, Roles: roles, Orphans: orphans}
}

func renderLintHuman(out io.Writer, summary PolicyLintSummary) {
	for _, role := range summary.Roles {
		_, _ = fmt.Fprintf(out, "%s: %s\n", role.Role, strings.Join(role.Permissions, ", "))
	}
	if summary.OK {
		_, _ = fmt.Fprintln(out, "Every referenced permission is granted by at least one role.")
		return
	}
	_, _ = fmt.Fprintf(out, "%d orphaned permission(s):\n", len(summary.Orphans))
	for _, p := range summary.Orphans {
		_, _ = fmt.Fprintf(out, " - %s\n", p)
	}
}
