package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"harbor/internal/config"
	"harbor/internal/domain"
	"harbor/internal/events"
	"harbor/internal/repo"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

type captured struct {
	mu      sync.Mutex
	bodies  []events.Envelope
	headers []http.Header
}

func (c *captured) handler(status int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var env events.Envelope
		_ = json.Unmarshal(data, &env)
		c.mu.Lock()
		c.bodies = append(c.bodies, env)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (c *captured) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, b := range c.bodies {
		out = append(out, b.Type)
	}
	return out
}

func appendEvent(t *testing.T, store *repo.MemoryStore, typ, id string) {
	t.Helper()
	require.NoError(t, store.AppendEvent(context.Background(), repo.Change{
		Type: typ, EntityKind: "dataset", EntityID: id, Payload: events.EventPayload{"version": "v1.0"},
	}))
}

func TestRelayStartsAtLatestAndFilters(t *testing.T) {
	store := repo.NewMemoryStore()
	appendEvent(t, store, events.DatasetCreated, "old")

	var got captured
	srv := httptest.NewServer(got.handler(http.StatusNoContent))
	defer srv.Close()

	cfg := config.Default()
	cfg.Relay.Webhooks = []config.WebhookConfig{{URL: srv.URL, Secret: "s3cret", Events: []string{events.DatasetCertified}}}
	relay, err := events.NewRelay(store, cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, relay)
	defer relay.Close()

	ctx := context.Background()
	require.NoError(t, relay.Poll(ctx))
	assert.Empty(t, got.types(), "events before the relay started are skipped")

	appendEvent(t, store, events.DatasetReady, "ds-1")
	appendEvent(t, store, events.DatasetCertified, "ds-1")
	require.NoError(t, relay.Poll(ctx))

	assert.Equal(t, []string{events.DatasetCertified}, got.types())
	assert.Equal(t, "s3cret", got.headers[0].Get("X-Harbor-Secret"))
	assert.Equal(t, "3", got.headers[0].Get("X-Harbor-Delivery"))
	assert.JSONEq(t, `{"version":"v1.0"}`, string(got.bodies[0].Payload))
	assert.EqualValues(t, 3, relay.Cursor(0))
}

func TestRelayHoldsCursorOnFailure(t *testing.T) {
	store := repo.NewMemoryStore()
	var failing captured
	bad := httptest.NewServer(failing.handler(http.StatusInternalServerError))
	defer bad.Close()
	var ok captured
	good := httptest.NewServer(ok.handler(http.StatusOK))
	defer good.Close()

	relay := &events.Relay{
		Source:    store,
		Sinks:     []events.Sink{events.NewWebhookSink(config.WebhookConfig{URL: bad.URL}), events.NewWebhookSink(config.WebhookConfig{URL: good.URL})},
		FromStart: true,
	}
	appendEvent(t, store, events.DatasetCertified, "ds-1")

	err := relay.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
	assert.EqualValues(t, 0, relay.Cursor(0))
	assert.EqualValues(t, 1, relay.Cursor(1))

	// the failing sink retries the same event on the next poll
	_ = relay.Poll(context.Background())
	assert.Len(t, failing.types(), 2)
	assert.Len(t, ok.types(), 1)
}

func TestRelaySinksWithSameURLKeepSeparateCursors(t *testing.T) {
	store := repo.NewMemoryStore()
	var got captured
	srv := httptest.NewServer(got.handler(http.StatusOK))
	defer srv.Close()

	cfg := config.Default()
	cfg.Relay.Webhooks = []config.WebhookConfig{
		{URL: srv.URL, Events: []string{events.DatasetCertified}},
		{URL: srv.URL, Events: []string{events.DatasetReady}, Secret: "other"},
	}
	relay, err := events.NewRelay(store, cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, relay)
	relay.FromStart = true
	defer relay.Close()
	require.Equal(t, relay.Sinks[0].Name(), relay.Sinks[1].Name())

	appendEvent(t, store, events.DatasetReady, "ds-1")
	appendEvent(t, store, events.DatasetCertified, "ds-1")
	require.NoError(t, relay.Poll(context.Background()))

	assert.ElementsMatch(t, []string{events.DatasetReady, events.DatasetCertified}, got.types())
	assert.EqualValues(t, 2, relay.Cursor(0))
	assert.EqualValues(t, 2, relay.Cursor(1))

	// a failure on one hook must not move the other hook's cursor
	failing := httptest.NewServer(got.handler(http.StatusBadGateway))
	defer failing.Close()
	relay2 := &events.Relay{
		Source: store,
		Sinks: []events.Sink{
			events.NewWebhookSink(config.WebhookConfig{URL: failing.URL, Events: []string{events.DatasetReady}}),
			events.NewWebhookSink(config.WebhookConfig{URL: failing.URL, Events: []string{events.DatasetPublished}}),
		},
		FromStart: true,
	}
	require.Error(t, relay2.Poll(context.Background()))
	assert.EqualValues(t, 0, relay2.Cursor(0))
	assert.EqualValues(t, 2, relay2.Cursor(1))
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	store := repo.NewMemoryStore()
	var got captured
	srv := httptest.NewServer(got.handler(http.StatusOK))
	defer srv.Close()

	relay := &events.Relay{
		Source:    store,
		Sinks:     []events.Sink{events.NewWebhookSink(config.WebhookConfig{URL: srv.URL})},
		Interval:  10 * time.Millisecond,
		FromStart: true,
	}
	appendEvent(t, store, events.DatasetPublished, "ds-1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return len(got.types()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestNewRelayWithoutSinks(t *testing.T) {
	relay, err := events.NewRelay(repo.NewMemoryStore(), config.Default(), nil)
	require.NoError(t, err)
	assert.Nil(t, relay)
}

type failingSource struct{}

func (failingSource) EventsAfter(context.Context, int, int64) ([]domain.Event, error) {
	return nil, errors.New("db closed")
}

func (failingSource) LatestEventID(context.Context) (int64, error) { return 0, nil }

func TestRelaySourceError(t *testing.T) {
	relay := &events.Relay{Source: failingSource{}, Sinks: []events.Sink{events.NewWebhookSink(config.WebhookConfig{URL: "http://127.0.0.1:1"})}}
	err := relay.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db closed")
}

func TestEnvelopeKeepsInvalidPayloadRaw(t *testing.T) {
	env := events.NewEnvelope(domain.Event{ID: 7, Type: "x", Payload: "not json"})
	assert.Equal(t, "not json", env.PayloadRaw)
	assert.JSONEq(t, `{}`, string(env.Payload))
}
