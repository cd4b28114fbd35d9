package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
)

type capturingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *capturingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}

	w.messages = append(w.messages, msgs...)

	return nil
}

func (w *capturingWriter) Close() error {
	w.closed = true

	return nil
}

func finalizedRun(dataset string) *etl.RunResult {
	run := etl.NewRunResult(dataset)
	run.Stats.RowsExtracted = 101
	run.Stats.RowsLoaded = 96
	run.Finalize(etl.StatusCompleted)

	return run
}

func TestPublishRunResult(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	writer := &capturingWriter{}
	publisher := &Publisher{writer: writer, logger: newLogger()}

	run := finalizedRun("boundaries")
	require.NoError(t, publisher.PublishRunResult(context.Background(), run))

	require.Len(t, writer.messages, 1)
	assert.Equal(t, "boundaries", string(writer.messages[0].Key), "dataset keys preserve per-dataset ordering")

	var message runMessage

	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &message))
	assert.Equal(t, run.ID, message.RunID)
	assert.Equal(t, "completed", message.Status)
	assert.Equal(t, 96, message.Stats.RowsLoaded)
	assert.GreaterOrEqual(t, message.DurationMS, int64(0))
	assert.WithinDuration(t, run.CompletedAt, message.CompletedAt, time.Second)
}

func TestPublishRunResultWriteFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	writer := &capturingWriter{err: errors.New("broker unavailable")}
	publisher := &Publisher{writer: writer, logger: newLogger()}

	err := publisher.PublishRunResult(context.Background(), finalizedRun("crime"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to publish run result")
}

func TestLoadConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("ETL_KAFKA_BROKERS", "broker-1:9092, broker-2:9092")
	t.Setenv("ETL_KAFKA_TOPIC", "")

	cfg := LoadConfig()

	assert.True(t, cfg.Enabled())
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Brokers)
	assert.Equal(t, DefaultTopic, cfg.Topic)
}

func TestLoadConfigDisabledWithoutBrokers(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("ETL_KAFKA_BROKERS", "")

	cfg := LoadConfig()

	assert.False(t, cfg.Enabled())

	_, err := NewPublisher(cfg)
	require.ErrorIs(t, err, ErrNoBrokers)
}

func TestPublisherClose(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	writer := &capturingWriter{}
	publisher := &Publisher{writer: writer, logger: newLogger()}

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}
