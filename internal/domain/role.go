package domain

// Role is a named capability grantable to principals.
type Role string

const (
	// RoleAdmin may change auction parameters and manage role grants.
	RoleAdmin Role = "admin"

	// RoleMinter may mint new tokens on registered asset ledgers.
	RoleMinter Role = "minter"
)

// ValidRole reports whether r names a known capability.
func ValidRole(r Role) bool {
	return r == RoleAdmin || r == RoleMinter
}
