package changefeed

import (
	"context"
	"errors"
)

// FanOut shares one upstream subscription per filter between any number of
// local subscribers. With a PostgresSource upstream, a process holds one
// listening connection per filter no matter how many sessions subscribe.
//
// Local subscriptions only see events while Run is active.
type FanOut struct {
	local *MemorySource
	relay *Relay
}

var _ Source = (*FanOut)(nil)

// NewFanOut builds a fan-out over upstream for the given filters. opts
// configure the local side.
func NewFanOut(upstream Source, filters []Filter, opts ...Option) *FanOut {
	o := newOptions("", opts)
	local := NewMemorySource(opts...)
	return &FanOut{
		local: local,
		relay: NewRelay(upstream, local, filters, o.logger),
	}
}

// Subscribe opens a local subscription. It never touches the upstream.
func (f *FanOut) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	return f.local.Subscribe(ctx, filter)
}

// Subscribers returns the number of local subscriptions.
func (f *FanOut) Subscribers() int {
	return f.local.Subscribers()
}

// Run holds the upstream subscriptions until ctx is done or one of them
// ends. Local subscriptions are ended when Run returns.
func (f *FanOut) Run(ctx context.Context) error {
	err := f.relay.Run(ctx)
	return errors.Join(err, f.local.Close())
}
