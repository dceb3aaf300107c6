// Package identity verifies the bearer tokens issued by the auth service and
// exposes the signed-in user as an Identity.
//
// Tokens are HS256 JWTs whose "sub" claim is the user ID. Middleware accepts
// the token from the Authorization header or, for EventSource clients, the
// access_token query parameter, and stores the Identity in the request
// context:
//
//	v, err := identity.NewVerifier(cfg)
//	r.With(identity.Middleware(v)).Get("/notifications/stream", h)
//
//	id, ok := identity.FromContext(r.Context())
//
// The notifier only consumes identities; it never refreshes or revokes them.
package identity
