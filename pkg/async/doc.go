// Package async provides generic futures and cancellable task scopes.
//
// Async starts a function in its own goroutine and returns a *Future that can
// be awaited with Await, AwaitContext or AwaitWithTimeout. WaitAll collects a
// group of futures.
//
// A Scope ties a group of tasks to one cancellation token. It exists for
// work whose results must be discarded once the owner goes away, for example
// enrichment lookups issued on behalf of a signed-in user who then signs out:
//
//	scope := async.NewScope(ctx)
//	title := async.Go(scope, entityID, dir.EntityTitle)
//	name := async.Go(scope, actorID, dir.ActorDisplayName)
//
//	t, _ := title.Await()
//	n, _ := name.Await()
//	scope.Do(func(ctx context.Context) {
//	    sink.Notify(ctx, render(t, n), 5*time.Second)
//	})
//
//	// on sign-out
//	scope.Close()
//
// After Close returns no Do callback runs again and every task started with
// Go has returned. Do callbacks are serialised, which gives consumers a
// single logical event loop for side effects.
package async
