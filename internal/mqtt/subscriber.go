// Package mqtt feeds uplinks from the TTN MQTT integration into the
// ingestion pipeline.
package mqtt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/Kinis2025/sebelo/internal/readings"
	"github.com/Kinis2025/sebelo/internal/sensor"
)

// DefaultTopic matches uplinks of every device of every application.
const DefaultTopic = "v3/+/devices/+/up"

// handleTimeout bounds one message through the pipeline.
const handleTimeout = 10 * time.Second

// Ingester is the pipeline entry point.
type Ingester interface {
	IngestFrom(ctx context.Context, source string, env sensor.Envelope) (sensor.Reading, error)
	RecordMalformed(source string)
}

// Config holds the configuration for the Subscriber.
type Config struct {
	Logger   *slog.Logger
	Ingester Ingester
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	Port     int
}

// Subscriber consumes TTN uplink messages.
type Subscriber struct {
	client    paho.Client
	logger    *slog.Logger
	ingester  Ingester
	stopCh    chan struct{}
	topic     string
	mu        sync.RWMutex
	stopOnce  sync.Once
	connected bool
}

// NewSubscriber creates a Subscriber. Call Connect to start consuming.
func NewSubscriber(cfg *Config) (*Subscriber, error) {
	if cfg == nil {
		return nil, errors.New("mqtt config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Ingester == nil {
		return nil, errors.New("ingester cannot be nil")
	}

	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker cannot be empty")
	}

	s := &Subscriber{
		logger:   cfg.Logger,
		ingester: cfg.Ingester,
		stopCh:   make(chan struct{}),
		topic:    cfg.Topic,
	}
	if s.topic == "" {
		s.topic = DefaultTopic
	}

	port := cfg.Port
	if port == 0 {
		port = 1883
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "sensor-hub-" + uuid.NewString()[:8]
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, port))
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Subscriptions do not survive a clean-session reconnect.
	opts.SetOnConnectHandler(func(c paho.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", cfg.Broker, "port", port)
		if err := s.subscribe(c); err != nil {
			s.logger.Error("failed to subscribe", "topic", s.topic, "error", err)
		}
	})

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = paho.NewClient(opts)
	return s, nil
}

// Connect starts the connection and waits for the first attempt to finish,
// respecting ctx and Disconnect.
func (s *Subscriber) Connect(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return errors.New("subscriber stopped")
	default:
	}

	if s.IsConnected() {
		return nil
	}

	token := s.client.Connect()

	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("failed to connect to mqtt broker: %w", err)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return ctx.Err()
		case <-s.stopCh:
			s.client.Disconnect(0)
			return errors.New("subscriber stopped")
		default:
		}
	}
}

func (s *Subscriber) subscribe(c paho.Client) error {
	const qos = byte(1)

	token := c.Subscribe(s.topic, qos, func(_ paho.Client, msg paho.Message) {
		s.handleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", s.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.topic, err)
	}

	s.logger.Info("subscribed to mqtt topic", "topic", s.topic, "qos", qos)
	return nil
}

// handleMessage runs one uplink through the pipeline. Outcomes are logged
// and counted by the pipeline; nothing is acknowledged upstream.
func (s *Subscriber) handleMessage(topic string, payload []byte) {
	s.logger.Debug("received mqtt message", "topic", topic, "size", len(payload))

	env, err := sensor.ParseEnvelope(bytes.NewReader(payload))
	if err != nil {
		s.ingester.RecordMalformed(readings.SourceMQTT)
		s.logger.Warn("failed to parse uplink", "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	r, err := s.ingester.IngestFrom(ctx, readings.SourceMQTT, env)
	switch {
	case err == nil:
		s.logger.Debug("processed uplink", "topic", topic, "device_id", r.DeviceID)
	case errors.Is(err, sensor.ErrNoMeasurements), errors.Is(err, sensor.ErrMissingIdentity):
		// Already logged by the pipeline.
	default:
		s.logger.Error("failed to ingest uplink", "topic", topic, "device_id", r.DeviceID, "error", err)
	}
}

// IsConnected returns whether the client is connected.
func (s *Subscriber) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Disconnect stops the subscriber and closes the connection.
// Safe to call multiple times.
func (s *Subscriber) Disconnect() {
	s.stopOnce.Do(func() { close(s.stopCh) })

	if s.IsConnected() {
		token := s.client.Unsubscribe(s.topic)
		token.WaitTimeout(2 * time.Second)
	}
	s.client.Disconnect(250)

	s.setConnected(false)
	s.logger.Info("mqtt subscriber disconnected")
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
