// Package notifications is the real-time notification engine: it watches a
// change feed for activity on content a user owns and turns it into short
// messages for a presentation sink.
//
// # Pipeline
//
// Every event of a tracked table passes the same steps:
//
//   - interest: the event's entity must be in the user's InterestSet, the
//     snapshot captured when the subscription was opened
//   - self-action suppression: events caused by the user are dropped
//   - enrichment: entity title and actor name are looked up concurrently and
//     fall back to "your content" and "Someone" on failure
//   - preference gate: the category must be allowed by the PreferenceMatrix,
//     where missing categories resolve to enabled (see WithDefault)
//   - delivery: Sink.Notify receives the rendered message and a duration
//
// # Sessions
//
// A Session owns all per-user state. Its SubscriptionManager keeps one
// change feed subscription per tracked table, moving each table through
// inactive, transitioning and active states whenever Reconcile sees new
// inputs. Handles are never changed in place; they are closed and reopened.
//
//	session, err := notifications.NewSession(id, notifications.SessionDeps{
//	    Source:    source,
//	    Directory: dir,
//	    Sink:      sink,
//	})
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	if err := session.Start(ctx); err != nil {
//	    log.Warn("some tables are inactive", "error", err)
//	}
//
// Close cancels in-flight lookups, closes every subscription and waits for
// their consumers; the sink is never called after it returns.
//
// # Hub
//
// Hub shares one Session per user across connections and fans toasts out
// through a BroadcastSink, which is what the SSE endpoint attaches to.
package notifications
