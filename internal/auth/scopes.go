package auth

// OAuth scopes requested from the identity provider.
const (
	ScopeOpenID = "openid"
	ScopeEmail  = "email"
)

// AdminRole is the token role claim that unlocks admin-only operations
// (currently just the audit retention purge).
const AdminRole = "admin"
