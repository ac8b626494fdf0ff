package roles

// Role is a grantable role plus the permissions the policy table binds
// to it. Permissions come from code, not the database.
type Role struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}
