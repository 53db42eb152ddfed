package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"harbor/internal/config"
	"harbor/internal/domain"
)

const (
	defaultRelayInterval = 2 * time.Second
	defaultRelayBatch    = 100
)

// Source is the event log the relay tails.
type Source interface {
	EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error)
	LatestEventID(ctx context.Context) (int64, error)
}

// Sink delivers events to one downstream consumer.
type Sink interface {
	Name() string
	Accepts(evtType string) bool
	Deliver(ctx context.Context, env Envelope) error
}

// Envelope is the JSON body every sink sends.
type Envelope struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

func NewEnvelope(evt domain.Event) Envelope {
	payload := json.RawMessage("{}")
	var raw string
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			payload = json.RawMessage(evt.Payload)
		} else {
			raw = evt.Payload
		}
	}
	return Envelope{
		ID:         evt.ID,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
		PayloadRaw: raw,
	}
}

// Relay tails the event log and fans each event out to its sinks. Every sink
// has its own cursor, so a failing sink only holds back itself.
type Relay struct {
	Source   Source
	Sinks    []Sink
	Interval time.Duration
	Batch    int
	Logger   *zap.Logger
	// FromStart replays the whole log instead of starting at the newest event.
	FromStart bool

	mu      sync.Mutex
	cursors map[int]int64
}

// NewRelay builds the sinks configured in cfg.Relay. It returns nil when
// nothing is configured.
func NewRelay(src Source, cfg *config.Config, logger *zap.Logger) (*Relay, error) {
	if cfg == nil {
		return nil, nil
	}
	var sinks []Sink
	for _, hook := range cfg.Relay.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		sinks = append(sinks, NewWebhookSink(hook))
	}
	if cfg.Relay.Kafka.Enabled() {
		k, err := NewKafkaSink(cfg.Relay.Kafka)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, k)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	interval := defaultRelayInterval
	if cfg.Relay.IntervalSeconds > 0 {
		interval = time.Duration(cfg.Relay.IntervalSeconds) * time.Second
	}
	return &Relay{Source: src, Sinks: sinks, Interval: interval, Logger: logger}, nil
}

func (r *Relay) log() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := r.Poll(ctx); err != nil && ctx.Err() == nil {
			r.log().Warn("relay poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll delivers one batch to every sink concurrently and returns the first
// delivery error. A failing sink does not cancel the others.
func (r *Relay) Poll(ctx context.Context) error {
	var g errgroup.Group
	for i, sink := range r.Sinks {
		g.Go(func() error {
			if err := r.pollSink(ctx, i, sink); err != nil {
				return fmt.Errorf("%s: %w", sink.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// pollSink advances the cursor of the sink at index i. Cursors are keyed by
// position, so two sinks with the same name still track delivery separately.
func (r *Relay) pollSink(ctx context.Context, i int, sink Sink) error {
	cursor, err := r.cursorFor(ctx, i)
	if err != nil {
		return err
	}
	batch := r.Batch
	if batch <= 0 {
		batch = defaultRelayBatch
	}
	evts, err := r.Source.EventsAfter(ctx, batch, cursor)
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}
	for _, evt := range evts {
		if sink.Accepts(evt.Type) {
			if err := sink.Deliver(ctx, NewEnvelope(evt)); err != nil {
				return fmt.Errorf("deliver event %d: %w", evt.ID, err)
			}
			r.log().Debug("event delivered", zap.String("sink", sink.Name()), zap.Int64("event_id", evt.ID), zap.String("type", evt.Type))
		}
		r.setCursor(i, evt.ID)
	}
	return nil
}

func (r *Relay) cursorFor(ctx context.Context, i int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursors == nil {
		r.cursors = map[int]int64{}
	}
	if cur, ok := r.cursors[i]; ok {
		return cur, nil
	}
	var cur int64
	if !r.FromStart {
		latest, err := r.Source.LatestEventID(ctx)
		if err != nil {
			return 0, fmt.Errorf("init cursor: %w", err)
		}
		cur = latest
	}
	r.cursors[i] = cur
	return cur, nil
}

func (r *Relay) setCursor(i int, value int64) {
	r.mu.Lock()
	r.cursors[i] = value
	r.mu.Unlock()
}

// Cursor returns the last event id handled by the sink at index i of Sinks.
func (r *Relay) Cursor(i int) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursors[i]
}

// Close releases sinks that hold connections.
func (r *Relay) Close() error {
	var first error
	for _, sink := range r.Sinks {
		if c, ok := sink.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
