package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/cityaqi/cityaqi/internal/airquality"
)

// Job types accepted on the subscription.
const (
	JobProviderRefresh = "provider_refresh"
	JobHealthCheck     = "health_check"
)

// Errors returned by HandleJob for messages that can never succeed. Such
// messages are acknowledged without processing.
var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrInvalidJob     = errors.New("invalid job")
)

// IsPermanent reports whether err means redelivering the message is useless.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnknownJobType) || errors.Is(err, ErrInvalidJob)
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	subscriber       *pubsub.Subscriber
	subscriptionName string
	refreshJob       *RefreshJob
	defaultCity      airquality.Location
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	Client           *pubsub.Client
	SubscriptionName string
	RefreshJob       *RefreshJob

	// DefaultCity is refreshed by health_check jobs. Empty or invalid
	// values fall back to airquality.DefaultCity.
	DefaultCity string

	Logger zerolog.Logger
}

// RefreshMessage is the payload of a worker job. City is optional and limits
// a provider refresh to one location.
type RefreshMessage struct {
	JobType string `json:"job_type"`
	Country string `json:"country,omitempty"`
	State   string `json:"state,omitempty"`
	City    string `json:"city,omitempty"`
}

// NewPubSubHandler creates a handler receiving from the named subscription.
// A nil client is allowed for handlers that only process jobs via HandleJob.
func NewPubSubHandler(cfg PubSubConfig) *PubSubHandler {
	defaultCity, err := airquality.ParseLocation("", "", cfg.DefaultCity)
	if err != nil {
		defaultCity = airquality.CityLocation(airquality.DefaultCity)
	}
	h := &PubSubHandler{
		subscriptionName: cfg.SubscriptionName,
		refreshJob:       cfg.RefreshJob,
		defaultCity:      defaultCity,
		logger:           cfg.Logger,
	}
	if cfg.Client != nil {
		h.subscriber = cfg.Client.Subscriber(cfg.SubscriptionName)
		h.subscriber.ReceiveSettings.MaxOutstandingMessages = 10
		h.subscriber.ReceiveSettings.MaxExtension = 10 * time.Minute
	}
	return h
}

// Start processes messages until ctx is cancelled.
func (h *PubSubHandler) Start(ctx context.Context) error {
	if h.subscriber == nil {
		return errors.New("pubsub handler has no client")
	}

	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.HandleJob(ctx, msg.Data)
	switch {
	case IsPermanent(err):
		// Redelivery would not help.
		logger.Warn().Err(err).Msg("dropping message")
		msg.Ack()
	case err != nil:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	default:
		msg.Ack()
	}
}

// HandleJob decodes and runs one job.
func (h *PubSubHandler) HandleJob(ctx context.Context, data []byte) error {
	startTime := time.Now()

	var job RefreshMessage
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("%w: parse message: %v", ErrInvalidJob, err)
	}

	var err error
	switch job.JobType {
	case JobProviderRefresh:
		err = h.handleProviderRefresh(ctx, job)
	case JobHealthCheck:
		err = h.handleHealthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobType, job.JobType)
	}
	if err != nil {
		return err
	}

	h.logger.Info().
		Str("job_type", job.JobType).
		Dur("duration", time.Since(startTime)).
		Msg("job completed successfully")
	return nil
}

func (h *PubSubHandler) handleProviderRefresh(ctx context.Context, job RefreshMessage) error {
	var result *RefreshResult
	if job.City != "" {
		loc, err := airquality.ParseLocation(job.Country, job.State, job.City)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJob, err)
		}
		result = h.refreshJob.RunCities(ctx, []airquality.Location{loc})
	} else {
		result = h.refreshJob.Run(ctx)
	}

	if result.Failed > result.Successful {
		return fmt.Errorf("too many refresh failures: %d/%d", result.Failed, result.Total)
	}
	return nil
}

// handleHealthCheck verifies provider connectivity with the default city.
func (h *PubSubHandler) handleHealthCheck(ctx context.Context) error {
	result := h.refreshJob.RunCities(ctx, []airquality.Location{h.defaultCity})
	if result.Failed > 0 {
		return fmt.Errorf("health check failed: %d errors", result.Failed)
	}
	return nil
}

// PubSubPublisher publishes snapshots as JSON to a topic.
type PubSubPublisher struct {
	publisher *pubsub.Publisher
	topic     string
}

// NewPubSubPublisher creates a publisher for topic.
func NewPubSubPublisher(client *pubsub.Client, topic string) *PubSubPublisher {
	return &PubSubPublisher{
		publisher: client.Publisher(topic),
		topic:     topic,
	}
}

// Publish sends the snapshot and waits for the server acknowledgement.
func (p *PubSubPublisher) Publish(ctx context.Context, snapshot *airquality.Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	res := p.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"location": snapshot.Location.Key(),
			"category": string(snapshot.Result.Category),
		},
	})
	if _, err := res.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubPublisher) Stop() {
	p.publisher.Stop()
}
