// Package notify publishes finalized ETL run results to Kafka so downstream
// consumers (cache invalidation, alerting) learn about fresh data without
// polling the run history table.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/phlyk/bewhere-mvp-sub002/internal/config"
	"github.com/phlyk/bewhere-mvp-sub002/internal/etl"
)

const (
	// DefaultTopic receives run results when no topic is configured.
	DefaultTopic = "bewhere.etl.runs"

	writeTimeout = 10 * time.Second
)

var (
	// ErrNoBrokers is returned when a publisher is constructed without any
	// broker addresses.
	ErrNoBrokers = errors.New("no kafka brokers configured")

	_ etl.RunNotifier = (*Publisher)(nil)
)

type (
	// Config holds the Kafka publishing settings, loaded from the
	// environment. An empty broker list disables publishing.
	Config struct {
		Brokers []string
		Topic   string
	}

	// messageWriter is the subset of kafka.Writer the publisher uses,
	// extracted so tests can capture messages without a broker.
	messageWriter interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// Publisher emits one JSON message per finalized run, keyed by dataset
	// name so per-dataset ordering survives partitioning.
	Publisher struct {
		writer messageWriter
		logger *slog.Logger
	}

	// runMessage is the wire form of a published run result.
	runMessage struct {
		RunID       string    `json:"run_id"`
		Dataset     string    `json:"dataset"`
		Status      string    `json:"status"`
		StartedAt   time.Time `json:"started_at"`
		CompletedAt time.Time `json:"completed_at"`
		DurationMS  int64     `json:"duration_ms"`
		Stats       etl.Stats `json:"stats"`
	}
)

// LoadConfig reads the Kafka settings from environment variables.
func LoadConfig() Config {
	cfg := Config{
		Topic: config.GetEnvStr("ETL_KAFKA_TOPIC", DefaultTopic),
	}

	if brokers := config.GetEnvStr("ETL_KAFKA_BROKERS", ""); brokers != "" {
		for _, broker := range strings.Split(brokers, ",") {
			if trimmed := strings.TrimSpace(broker); trimmed != "" {
				cfg.Brokers = append(cfg.Brokers, trimmed)
			}
		}
	}

	return cfg
}

// Enabled reports whether publishing is configured at all.
func (c Config) Enabled() bool {
	return len(c.Brokers) > 0
}

// NewPublisher creates a Kafka-backed run result publisher.
func NewPublisher(cfg Config) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, ErrNoBrokers
	}

	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: writeTimeout,
	}

	return &Publisher{
		writer: writer,
		logger: newLogger(),
	}, nil
}

// PublishRunResult writes one message for a finalized run. The dataset name
// is the message key.
func (p *Publisher) PublishRunResult(ctx context.Context, run *etl.RunResult) error {
	payload, err := json.Marshal(runMessage{
		RunID:       run.ID,
		Dataset:     run.Dataset,
		Status:      string(run.Status),
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
		DurationMS:  run.Duration.Milliseconds(),
		Stats:       run.Stats,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal run message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(run.Dataset),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("failed to publish run result: %w", err)
	}

	p.logger.Debug("Published run result",
		"run_id", run.ID,
		"dataset", run.Dataset,
		"status", run.Status)

	return nil
}

// Close flushes and releases the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func newLogger() *slog.Logger {
	logLevel := config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo)

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("component", "notify")
}
