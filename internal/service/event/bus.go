package event

import (
	"context"
	"fmt"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/pkg/logger"
	"github.com/berth-ops/notify-api/pkg/messaging"
	"github.com/berth-ops/notify-api/pkg/metrics"
)

// DefaultChannel is the Redis pub/sub channel the panel's subsystems
// publish their events on.
const DefaultChannel = "platform.events"

// Bus bridges the Redis event stream and the emitter: Publish puts local
// events on the wire, Run consumes the stream and dispatches each decoded
// event.
type Bus struct {
	broker  messaging.Broker
	emitter *Emitter
	channel string
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewBus(broker messaging.Broker, emitter *Emitter, channel string, m *metrics.Metrics, logger *logger.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bus{
		broker:  broker,
		emitter: emitter,
		channel: channel,
		metrics: m,
		logger:  logger,
	}
}

// Publish puts an event on the bus for the dispatch worker.
func (b *Bus) Publish(ctx context.Context, evt *model.Event) error {
	env, err := messaging.NewEnvelope(evt.EventType, evt)
	if err != nil {
		return fmt.Errorf("failed to build event envelope: %w", err)
	}
	if err := b.broker.Publish(ctx, b.channel, env); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Run consumes the bus until ctx is cancelled, feeding every decoded
// event to the emitter. Undecodable messages are counted and dropped.
func (b *Bus) Run(ctx context.Context) error {
	msgs, err := b.broker.Subscribe(ctx, b.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("event bus consumer started", "channel", b.channel)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("event bus consumer stopping", "channel", b.channel)
			return nil
		case raw, ok := <-msgs:
			if !ok {
				b.logger.Info("event bus subscription closed", "channel", b.channel)
				return nil
			}
			b.handle(ctx, raw)
		}
	}
}

func (b *Bus) handle(ctx context.Context, raw []byte) {
	if b.metrics != nil {
		b.metrics.BusMessagesConsumed.Inc()
	}

	env, err := messaging.DecodeEnvelope(raw)
	if err != nil {
		b.invalid(err)
		return
	}

	var evt model.Event
	if err := env.Decode(&evt); err != nil {
		b.invalid(err)
		return
	}
	if evt.EventType == "" {
		evt.EventType = env.Type
	}

	b.emitter.EmitEvent(ctx, &evt)
}

func (b *Bus) invalid(err error) {
	if b.metrics != nil {
		b.metrics.BusMessagesInvalid.Inc()
	}
	b.logger.Warn("dropping undecodable bus message", "error", err.Error())
}
