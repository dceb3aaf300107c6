// Package broadcast provides a generic in-process fan-out of typed messages.
//
// A MemoryBroadcaster delivers every message to all of its subscribers
// without blocking. Each subscriber owns a bounded buffer; when it is full the
// message is dropped for that subscriber and counted (see Subscriber.Dropped),
// while the subscription itself stays open. Subscribers may carry a filter so
// that only matching messages occupy their buffer.
//
//	b := broadcast.NewMemoryBroadcaster[Event](64)
//	defer b.Close()
//
//	sub := b.SubscribeFunc(ctx, func(e Event) bool { return e.Table == "comments" })
//	defer sub.Close()
//
//	for msg := range sub.Receive(ctx) {
//		handle(msg.Data)
//	}
//
// Subscriptions end when their context is cancelled, when Close is called on
// the subscriber, or when the broadcaster is closed. In all cases the receive
// channel is closed.
package broadcast
