// Package changefeed delivers row-level mutations (INSERT, UPDATE, DELETE)
// of tracked tables as a stream of Events.
//
// A Source opens one Subscription per Filter. Three sources are provided:
//
//   - PostgresSource listens on the "changefeed_<table>" channels written by
//     the newsdesk_changefeed_notify() trigger (see package pg).
//   - RedisSource reads the same JSON payloads from "<prefix>:<table>" pub/sub
//     channels, fed by a Relay running elsewhere with a RedisPublisher.
//   - MemorySource is an in-process feed used by tests and embedded setups.
//
// All sources deliver events of one subscription in feed order, never replay
// missed events and close the Events channel when the subscription ends.
// Subscription.Close blocks until the underlying connection is released.
//
//	sub, err := src.Subscribe(ctx, changefeed.Filter{
//		Table:      "comments",
//		Operations: []changefeed.Operation{changefeed.OpInsert},
//	})
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
//	for e := range sub.Events() {
//		id, _ := e.Row().String("entity_id")
//		...
//	}
package changefeed
