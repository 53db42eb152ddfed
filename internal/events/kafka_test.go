package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harbor/internal/config"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	msgs     []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("leader not available")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaSinkKeysByEntity(t *testing.T) {
	w := &fakeWriter{failures: 1}
	sink := newKafkaSink(w, config.KafkaConfig{Topic: "harbor.events", Events: []string{DatasetCertified}})
	sink.backoff = time.Millisecond

	assert.True(t, sink.Accepts(DatasetCertified))
	assert.False(t, sink.Accepts(DatasetReady))

	err := sink.Deliver(context.Background(), Envelope{ID: 4, Type: DatasetCertified, EntityID: "ds-1", Payload: []byte(`{}`)})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ds-1", string(w.msgs[0].Key))
	assert.Contains(t, string(w.msgs[0].Value), `"type":"dataset.certified"`)
	assert.Equal(t, "kafka:harbor.events", sink.Name())

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSinkGivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	sink := newKafkaSink(w, config.KafkaConfig{Topic: "t"})
	sink.backoff = time.Millisecond
	err := sink.Deliver(context.Background(), Envelope{ID: 1, Type: DatasetCreated, Payload: []byte(`{}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 7, w.failures)
}

func TestNewKafkaSinkValidates(t *testing.T) {
	_, err := NewKafkaSink(config.KafkaConfig{Topic: "t"})
	assert.Error(t, err)
	_, err = NewKafkaSink(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

func TestEventFilter(t *testing.T) {
	assert.True(t, newEventFilter(nil).match("anything"))
	assert.True(t, newEventFilter([]string{" "}).match("anything"))
	f := newEventFilter([]string{DatasetCertified, " " + DatasetPublished})
	assert.True(t, f.match(DatasetPublished))
	assert.False(t, f.match(DatasetCreated))
}
