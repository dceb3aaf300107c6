// Package toast streams a user's notifications to the browser over
// Server-Sent Events using the datastar protocol.
//
// Each toast is sent twice: as an element appended to the toast container
// and as a "toast" signal carrying the message and its display duration in
// milliseconds, so pages can either render the fragment or drive their own
// component from the signal.
//
//	r := chi.NewRouter()
//	r.Mount("/notifications", toast.Routes(hub, verifier, log))
//
// GET /stream keeps the connection open until the client goes away.
// POST /enabled and POST /refresh drive the caller's session.
package toast
