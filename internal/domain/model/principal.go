package model

// RoleAdmin grants access to every order.
const RoleAdmin = "admin"

// Principal is the authenticated caller resolved by the identity verifier.
type Principal struct {
	ID    string
	Email string
	Role  string
}

// IsAdmin reports whether principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// SystemPrincipal acts for background reconciliation.
var SystemPrincipal = Principal{ID: "system", Role: RoleAdmin}
