package webhook_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unipress/newsdesk/pkg/identity"
	"github.com/unipress/newsdesk/pkg/logger"
	"github.com/unipress/newsdesk/pkg/webhook"
)

const secret = "shh"

type endpoint struct {
	*httptest.Server
	calls    atomic.Int32
	payloads chan webhook.Payload
}

// newEndpoint answers with statuses in order, repeating the last one.
func newEndpoint(t *testing.T, statuses ...int) *endpoint {
	t.Helper()
	e := &endpoint{payloads: make(chan webhook.Payload, 8)}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(e.calls.Add(1))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		if err := webhook.Verify(secret, body, r.Header, time.Minute); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		status := statuses[min(n, len(statuses))-1]
		if status == http.StatusOK {
			var p webhook.Payload
			require.NoError(t, json.Unmarshal(body, &p))
			e.payloads <- p
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(e.Close)
	return e
}

func newSender(t *testing.T, url string, mod func(*webhook.Config)) *webhook.Sender {
	t.Helper()
	cfg := webhook.Config{URL: url, Secret: secret, Timeout: time.Second, MaxRetries: 2, Threshold: 5, Cooldown: time.Hour}
	if mod != nil {
		mod(&cfg)
	}
	s, err := webhook.NewSender(cfg,
		webhook.WithBackoff(webhook.Backoff{Initial: time.Millisecond, Multiplier: 1}),
		webhook.WithLogger(logger.Discard()),
	)
	require.NoError(t, err)
	return s
}

func TestNewSender_RejectsBadURL(t *testing.T) {
	t.Parallel()
	for _, u := range []string{"", "ftp://example.com", "/relative", "http://"} {
		_, err := webhook.NewSender(webhook.Config{URL: u})
		assert.ErrorIs(t, err, webhook.ErrInvalidConfig, u)
	}
}

func TestSender_NotifyCarriesRecipient(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, http.StatusOK)
	s := newSender(t, e.URL, nil)

	ctx := identity.WithIdentity(context.Background(), identity.Identity{UserID: "U", AuthToken: "secret-token"})
	require.NoError(t, s.Notify(ctx, "Alice commented", 5*time.Second))

	p := <-e.payloads
	assert.Equal(t, "U", p.UserID)
	assert.Equal(t, "Alice commented", p.Message)
	assert.Equal(t, int64(5000), p.DurationMS)
	assert.NotEmpty(t, p.ID)
}

func TestSender_RetriesTransientFailures(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, http.StatusBadGateway, http.StatusTooManyRequests, http.StatusOK)
	s := newSender(t, e.URL, nil)

	require.NoError(t, s.Send(context.Background(), webhook.Payload{Message: "m"}))
	assert.EqualValues(t, 3, e.calls.Load())
}

func TestSender_GivesUp(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, http.StatusInternalServerError)
	s := newSender(t, e.URL, nil)

	err := s.Send(context.Background(), webhook.Payload{Message: "m"})
	assert.ErrorIs(t, err, webhook.ErrDeliveryFailed)
	assert.EqualValues(t, 3, e.calls.Load())
}

func TestSender_ClientErrorIsPermanent(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, http.StatusNotFound)
	s := newSender(t, e.URL, nil)

	err := s.Send(context.Background(), webhook.Payload{Message: "m"})
	assert.ErrorIs(t, err, webhook.ErrPermanentFailure)
	assert.EqualValues(t, 1, e.calls.Load())
}

func TestSender_BadSecretIsRejected(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, http.StatusOK)
	s := newSender(t, e.URL, func(c *webhook.Config) { c.Secret = "wrong" })

	err := s.Send(context.Background(), webhook.Payload{Message: "m"})
	assert.ErrorIs(t, err, webhook.ErrPermanentFailure)
}

func TestSender_CircuitOpens(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, http.StatusServiceUnavailable)
	s := newSender(t, e.URL, func(c *webhook.Config) {
		c.MaxRetries = 0
		c.Threshold = 2
	})

	ctx := context.Background()
	assert.ErrorIs(t, s.Send(ctx, webhook.Payload{}), webhook.ErrDeliveryFailed)
	assert.ErrorIs(t, s.Send(ctx, webhook.Payload{}), webhook.ErrDeliveryFailed)
	assert.ErrorIs(t, s.Send(ctx, webhook.Payload{}), webhook.ErrCircuitOpen)
	assert.EqualValues(t, 2, e.calls.Load())
}

func TestSender_StopsOnCancel(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, http.StatusInternalServerError)
	cfg := webhook.Config{URL: e.URL, Secret: secret, MaxRetries: 5, Threshold: 10, Cooldown: time.Hour}
	s, err := webhook.NewSender(cfg,
		webhook.WithBackoff(webhook.Backoff{Initial: time.Hour}),
		webhook.WithLogger(logger.Discard()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Send(ctx, webhook.Payload{}), context.DeadlineExceeded)
	assert.EqualValues(t, 1, e.calls.Load())
}

func TestBackoff(t *testing.T) {
	t.Parallel()
	b := webhook.Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}

	assert.Zero(t, b.Next(0))
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 400*time.Millisecond, b.Next(3))
	assert.Equal(t, time.Second, b.Next(10))

	j := webhook.DefaultBackoff()
	for range 20 {
		d := j.Next(1)
		assert.InDelta(t, float64(500*time.Millisecond), float64(d), float64(50*time.Millisecond))
	}
}

func TestVerify(t *testing.T) {
	t.Parallel()
	h := http.Header{}
	h.Set(webhook.HeaderTimestamp, "not-a-number")
	assert.ErrorIs(t, webhook.Verify(secret, []byte("x"), h, 0), webhook.ErrInvalidSignature)

	h.Set(webhook.HeaderTimestamp, "1")
	h.Set(webhook.HeaderSignature, "00")
	assert.ErrorIs(t, webhook.Verify(secret, []byte("x"), h, time.Minute), webhook.ErrInvalidSignature, "too old")
	assert.ErrorIs(t, webhook.Verify(secret, []byte("x"), h, 0), webhook.ErrInvalidSignature, "mismatch")
}
