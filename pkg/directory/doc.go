// Package directory resolves the human-readable context of change events:
// which content a user owns, content titles, actor display names and the
// user's notification preferences.
//
// Two backends implement Directory. HTTPClient issues authenticated GETs
// against a PostgREST surface such as
//
//	GET /rest/v1/articles?select=id&author_id=eq.<user>
//	GET /rest/v1/profiles?select=display_name&id=eq.<actor>&limit=1
//	GET /rest/v1/notification_preferences?select=category,enabled&user_id=eq.<user>
//
// forwarding the caller's bearer token found via identity.FromContext.
// PostgresDirectory runs the equivalent SQL over a pgx pool. NewCached adds a
// TTL-bounded LRU in front of title and name lookups.
//
// Every failure wraps ErrFetch. HTTP replies with status >= 400 surface as
// *StatusError, and a 401 additionally matches ErrAuthExpired. Callers are
// expected to degrade rather than propagate.
package directory
