// Package events provides the Kafka-backed alert channel between a session
// and the proctoring backend.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"exam-proctor-service/internal/models"
	"exam-proctor-service/internal/observability/metrics"
)

// Config holds Kafka alert channel configuration.
type Config struct {
	Brokers       []string
	OutboundTopic string
	InboundTopic  string
	Principal     string
	Enabled       bool
}

// Alert is the wire payload in both directions.
type Alert struct {
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// KafkaChannel publishes session alerts and delivers backend alerts addressed
// to the session. Without brokers it runs in log-only mode.
type KafkaChannel struct {
	cfg       Config
	sessionID string
	enabled   bool
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	writer    *kafka.Writer
	reader    *kafka.Reader
	handler   func(message string)
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	connected bool
}

// NewKafkaChannel creates an alert channel for one session.
func NewKafkaChannel(cfg *Config, sessionID string, logger zerolog.Logger) *KafkaChannel {
	ch := &KafkaChannel{
		sessionID: sessionID,
		logger:    logger,
		metrics:   metrics.DefaultMetrics,
	}
	if cfg == nil {
		logger.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return ch
	}
	ch.cfg = *cfg
	ch.enabled = cfg.Enabled && len(cfg.Brokers) > 0
	if !ch.enabled {
		logger.Debug().Msg("Kafka disabled, alerts are log-only")
	}
	return ch
}

// OnInbound registers the handler for backend alerts. Register before Connect.
func (c *KafkaChannel) OnInbound(handler func(message string)) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// Connect opens the writer and starts consuming the inbound topic.
func (c *KafkaChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	c.connected = true
	if !c.enabled {
		return nil
	}

	// Longer dial timeout for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	c.writer = &kafka.Writer{
		Addr:         kafka.TCP(c.cfg.Brokers...),
		Topic:        c.cfg.OutboundTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	if c.cfg.InboundTopic != "" {
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:   c.cfg.Brokers,
			Topic:     c.cfg.InboundTopic,
			Partition: 0,
			MinBytes:  1,
			MaxBytes:  10e6,
			Dialer:    dialer,
		})
		// Only alerts sent after the session started are relevant.
		if err := c.reader.SetOffset(kafka.LastOffset); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to seek inbound alerts to latest offset")
		}

		readCtx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		c.wg.Add(1)
		go c.consume(readCtx, c.reader)
	}

	c.logger.Info().
		Strs("brokers", c.cfg.Brokers).
		Str("outboundTopic", c.cfg.OutboundTopic).
		Str("inboundTopic", c.cfg.InboundTopic).
		Str("principal", c.cfg.Principal).
		Msg("Alert channel connected")
	return nil
}

func (c *KafkaChannel) consume(ctx context.Context, reader *kafka.Reader) {
	defer c.wg.Done()
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Str("topic", c.cfg.InboundTopic).Msg("Kafka read error")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		c.handleInbound(msg.Value)
	}
}

// handleInbound decodes one inbound payload and hands it to the handler
// when it is addressed to this session or broadcast.
func (c *KafkaChannel) handleInbound(payload []byte) bool {
	var alert Alert
	if err := json.Unmarshal(payload, &alert); err != nil {
		c.logger.Warn().Err(err).Msg("Discarding malformed inbound alert")
		return false
	}
	if alert.SessionID != "" && alert.SessionID != c.sessionID {
		return false
	}
	if alert.Message == "" {
		return false
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return false
	}
	c.logger.Debug().Str("kind", alert.Kind).Msg("Inbound alert received")
	handler(alert.Message)
	return true
}

// Send publishes one alert. Failures wrap models.ErrTransport.
func (c *KafkaChannel) Send(ctx context.Context, kind, message string) error {
	start := time.Now()

	payload, err := json.Marshal(Alert{
		SessionID: c.sessionID,
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: encode alert: %v", models.ErrTransport, err)
	}

	c.logger.Debug().
		Str("principal", c.cfg.Principal).
		Str("topic", c.cfg.OutboundTopic).
		Str("kind", kind).
		RawJSON("payload", payload).
		Msg("Publishing alert")

	c.mu.Lock()
	writer := c.writer
	c.mu.Unlock()

	// If Kafka is disabled, just log
	if !c.enabled || writer == nil {
		c.metrics.RecordAlertPublish(kind, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(c.sessionID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(kind)},
			{Key: "principal", Value: []byte(c.cfg.Principal)},
		},
	}
	if err := writer.WriteMessages(ctx, msg); err != nil {
		c.metrics.RecordAlertPublish(kind, err, time.Since(start).Seconds())
		return fmt.Errorf("%w: %v", models.ErrTransport, err)
	}

	c.metrics.RecordAlertPublish(kind, nil, time.Since(start).Seconds())
	return nil
}

// Disconnect stops the inbound consumer and closes the writer. Idempotent.
func (c *KafkaChannel) Disconnect() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	cancel, reader, writer := c.cancel, c.reader, c.writer
	c.cancel, c.reader, c.writer = nil, nil, nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()

	var errs []error
	if reader != nil {
		if err := reader.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Error closing inbound reader")
			errs = append(errs, err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			c.logger.Error().Err(err).Msg("Error closing outbound writer")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
