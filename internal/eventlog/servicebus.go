package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"

	"example.com/backstage/services/airlogistic/config"
)

// ServiceBusPublisher pushes audit events to an Azure Service Bus queue so
// downstream notification consumers can render them.
type ServiceBusPublisher struct {
	client    *azservicebus.Client
	queueName string
	enabled   bool
}

// NewServiceBusPublisher creates a publisher. An empty connection string
// disables publishing rather than failing startup.
func NewServiceBusPublisher(cfg config.AzureConfig) (*ServiceBusPublisher, error) {
	if cfg.QueueConnStr == "" {
		log.Warn().Msg("Service Bus connection string not provided, event publishing disabled")
		return &ServiceBusPublisher{enabled: false}, nil
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, err
	}

	return &ServiceBusPublisher{
		client:    client,
		queueName: cfg.QueueName,
		enabled:   true,
	}, nil
}

// PostEvent publishes the event. Errors are logged and swallowed: the audit
// trail in the database is authoritative and a dispatcher retries later.
func (p *ServiceBusPublisher) PostEvent(ctx context.Context, event Event) {
	if !p.enabled {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		log.Error().Err(err).
			Str("entityID", event.EntityID).
			Str("action", event.Action).
			Msg("Failed to publish audit event")
	}
}

// Publish sends the event to the queue with retry.
func (p *ServiceBusPublisher) Publish(ctx context.Context, event Event) error {
	if !p.enabled {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return retryWithBackoff(ctx, func() error {
		sender, err := p.client.NewSender(p.queueName, nil)
		if err != nil {
			return err
		}
		defer sender.Close(ctx)

		msg := &azservicebus.Message{
			Body:      body,
			MessageID: &event.EventID,
		}
		return sender.SendMessage(ctx, msg, nil)
	}, 3)
}

// retryWithBackoff retries an operation with exponential backoff.
func retryWithBackoff(ctx context.Context, fn func() error, maxRetries int) error {
	var err error

	for retry := 0; retry < maxRetries; retry++ {
		err = fn()
		if err == nil {
			return nil
		}

		backoff := time.Duration(1<<uint(retry)) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}

		select {
		case <-time.After(backoff):
			continue
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}

// Dispatcher periodically pushes stored-but-unpublished events to the bus.
type Dispatcher struct {
	store     *GormSink
	publisher *ServiceBusPublisher
	interval  time.Duration
	batchSize int
}

// NewDispatcher creates a dispatcher over the stored event log.
func NewDispatcher(store *GormSink, publisher *ServiceBusPublisher, interval time.Duration, batchSize int) *Dispatcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{store: store, publisher: publisher, interval: interval, batchSize: batchSize}
}

// Run loops until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.dispatchOnce(ctx)
		}
	}
}

func (d *Dispatcher) dispatchOnce(ctx context.Context) {
	events, err := d.store.GetUnpublished(ctx, d.batchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load unpublished events")
		return
	}

	for _, event := range events {
		if err := d.publisher.Publish(ctx, event); err != nil {
			log.Error().Err(err).Str("eventID", event.EventID).Msg("Failed to publish event, will retry")
			continue
		}
		if err := d.store.MarkPublished(ctx, event.EventID); err != nil {
			log.Error().Err(err).Str("eventID", event.EventID).Msg("Failed to mark event as published")
		}
	}
}
