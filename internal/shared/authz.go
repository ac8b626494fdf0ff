package shared

// Permissions enforced by the API surface.
const (
	PermUsersView   = "users.view"
	PermUsersEdit   = "users.edit"
	PermUsersDelete = "users.delete"

	PermRolesView   = "roles.view"
	PermRolesManage = "roles.manage"

	PermAuditView = "audit.view"
)

// Role names shipped with the service.
const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// RolePermissions is the static role to permission table. Changing it is
// a code change; the runtime validates every permission a route mounts
// against this table before serving.
func RolePermissions() map[string][]string {
	return map[string][]string{
		RoleAdmin: {
			PermUsersView,
			PermUsersEdit,
			PermUsersDelete,
			PermRolesView,
			PermRolesManage,
			PermAuditView,
		},
		RoleViewer: {
			PermUsersView,
		},
	}
}

// AllPermissions lists every permission granted by at least one role.
func AllPermissions() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, perms := range RolePermissions() {
		for _, p := range perms {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
