package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/cityaqi/cityaqi/internal/airquality"
)

// MQTTConfig holds the broker settings of the MQTT publisher.
type MQTTConfig struct {
	Broker      string
	Port        int
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
}

// MQTTConfigFromEnv reads the MQTT_* environment variables. Publishing is
// disabled when MQTT_BROKER is empty.
func MQTTConfigFromEnv() MQTTConfig {
	port, err := strconv.Atoi(os.Getenv("MQTT_PORT"))
	if err != nil || port <= 0 {
		port = 1883
	}
	cfg := MQTTConfig{
		Broker:      os.Getenv("MQTT_BROKER"),
		Port:        port,
		ClientID:    os.Getenv("MQTT_CLIENT_ID"),
		TopicPrefix: os.Getenv("MQTT_TOPIC_PREFIX"),
		Username:    os.Getenv("MQTT_USERNAME"),
		Password:    os.Getenv("MQTT_PASSWORD"),
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "cityaqi-worker"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "cityaqi"
	}
	return cfg
}

// Enabled reports whether a broker is configured.
func (c MQTTConfig) Enabled() bool {
	return c.Broker != ""
}

// MQTTPublisher publishes snapshots as retained JSON messages, one topic per
// city.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	logger zerolog.Logger
}

// NewMQTTPublisher creates a publisher for the configured broker. Call
// Connect before publishing.
func NewMQTTPublisher(cfg MQTTConfig, logger zerolog.Logger) *MQTTPublisher {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port))
	opts.SetClientID(cfg.ClientID)
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

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info().Str("broker", cfg.Broker).Int("port", cfg.Port).Msg("mqtt connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt connection lost")
	})

	return NewMQTTPublisherWithClient(mqtt.NewClient(opts), cfg.TopicPrefix, logger)
}

// NewMQTTPublisherWithClient wraps an existing client.
func NewMQTTPublisherWithClient(client mqtt.Client, prefix string, logger zerolog.Logger) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: strings.TrimSuffix(prefix, "/"), logger: logger}
}

// Connect waits for the initial broker connection.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	if err := waitToken(ctx, p.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Publish sends the snapshot to its city topic with QoS 1, retained so new
// subscribers see the latest value.
func (p *MQTTPublisher) Publish(ctx context.Context, snapshot *airquality.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	topic := Topic(p.prefix, snapshot.Location)
	if err := waitToken(ctx, p.client.Publish(topic, 1, true, payload)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}

	p.logger.Debug().Str("topic", topic).Msg("snapshot published")
	return nil
}

// Close disconnects after letting in-flight messages drain.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// Topic returns {prefix}/{country}/{state}/{city}/aqi. MQTT wildcard
// characters in location parts are replaced with '_'.
func Topic(prefix string, loc airquality.Location) string {
	parts := []string{prefix, topicPart(loc.Country), topicPart(loc.State), topicPart(loc.City), "aqi"}
	return strings.Join(parts, "/")
}

var topicReplacer = strings.NewReplacer("+", "_", "#", "_")

func topicPart(s string) string {
	return topicReplacer.Replace(s)
}

const tokenPoll = 200 * time.Millisecond

func waitToken(ctx context.Context, token mqtt.Token) error {
	for {
		if token.WaitTimeout(tokenPoll) {
			return token.Error()
		}
		select {
		case <-ctx.Done():
			return errors.Join(errors.New("gave up waiting for broker"), ctx.Err())
		default:
		}
	}
}
