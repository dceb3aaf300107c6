package identity

import "context"

// Identity is the signed-in user as seen by the notifier. AuthToken is the
// raw bearer token, forwarded to backend lookups made on the user's behalf.
type Identity struct {
	UserID    string
	AuthToken string
}

// Anonymous reports whether no user is signed in.
func (id Identity) Anonymous() bool {
	return id.UserID == ""
}

type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by WithIdentity or the middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && !id.Anonymous()
}
