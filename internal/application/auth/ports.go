package auth

import "context"

// Principal is the identity established by an identity provider.
type Principal struct {
	ID       string
	Username string
}

// Credentials carries the authorization code returned to the callback route
// and the redirect URL it was issued for.
type Credentials struct {
	Code        string
	RedirectURL string
}

// IdentityProvider is the external OAuth collaborator. It knows how to start
// a login and how to turn a callback code into a principal; whitelist policy
// lives elsewhere.
type IdentityProvider interface {
	Name() string
	AuthCodeURL(state, redirectURL string) string
	Authenticate(ctx context.Context, creds Credentials) (Principal, error)
}
