package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "exposechain.events"

// Writer is the subset of *kafkago.Writer the dispatcher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaConfig holds broker settings.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Kafka publishes events as JSON messages keyed by their "target" or
// "scan_id" payload field, so events for one target stay ordered within a
// partition.
type Kafka struct {
	writer    Writer
	timeout   time.Duration
	onMetrics MetricsRecorder
	logger    *zap.Logger
	now       func() time.Time
}

// NewKafka returns a dispatcher writing to cfg.Topic on cfg.Brokers.
func NewKafka(cfg KafkaConfig, logger *zap.Logger) *Kafka {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}
	return NewKafkaWithWriter(w, cfg.WriteTimeout, logger)
}

// NewKafkaWithWriter returns a dispatcher over an existing writer.
func NewKafkaWithWriter(w Writer, timeout time.Duration, logger *zap.Logger) *Kafka {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Kafka{writer: w, timeout: timeout, logger: logger, now: time.Now}
}

// SetMetricsRecorder configures the metrics callback.
func (k *Kafka) SetMetricsRecorder(fn MetricsRecorder) {
	k.onMetrics = fn
}

// Dispatch implements Dispatcher.
func (k *Kafka) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	event := Event{Type: eventType, Timestamp: k.now().UTC(), Payload: payload}
	body, err := json.Marshal(event)
	if err != nil {
		k.logger.Error("events: marshal event", zap.Error(err))
		return
	}

	key := payload["target"]
	if key == "" {
		key = payload["scan_id"]
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	err = k.writer.WriteMessages(ctx, kafkago.Message{
		Key:     []byte(key),
		Value:   body,
		Time:    event.Timestamp,
		Headers: []kafkago.Header{{Key: "event-type", Value: []byte(eventType)}},
	})
	if k.onMetrics != nil {
		k.onMetrics(err == nil)
	}
	if err != nil {
		k.logger.Warn("events: publish failed", zap.String("type", eventType), zap.Error(err))
	}
}

// Close implements Dispatcher.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
