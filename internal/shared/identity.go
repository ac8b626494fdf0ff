package shared

// Identity is the authenticated caller of a request. The auth middleware
// builds it from the bearer token and its session record; it is immutable
// for the lifetime of the request.
type Identity struct {
	GUID    string
	Email   string
	Roles   []string
	TokenID string
}
