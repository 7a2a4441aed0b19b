package event_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/internal/service/event"
	"github.com/berth-ops/notify-api/pkg/logger"
	"github.com/berth-ops/notify-api/pkg/messaging"
)

type fakeBroker struct {
	channel   string
	published []interface{}
	msgs      chan []byte
	subErr    error
}

func (f *fakeBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	f.channel = channel
	f.published = append(f.published, message)
	return nil
}

func (f *fakeBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	f.channel = channel
	return f.msgs, f.subErr
}

func (f *fakeBroker) Close() error { return nil }

// syncDispatcher signals each dispatched event so tests can wait on the
// consumer goroutine.
type syncDispatcher struct {
	events chan *model.Event
}

func (d *syncDispatcher) Dispatch(ctx context.Context, evt *model.Event) *model.DispatchResult {
	d.events <- evt
	return &model.DispatchResult{EventType: evt.EventType}
}

func (d *syncDispatcher) wait(t *testing.T) *model.Event {
	t.Helper()
	select {
	case evt := <-d.events:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
		return nil
	}
}

func newBus(broker messaging.Broker, dispatcher event.Dispatcher, channel string) *event.Bus {
	emitter := event.NewEmitter(dispatcher, logger.Nop())
	return event.NewBus(broker, emitter, channel, nil, logger.Nop())
}

func TestBusPublish(t *testing.T) {
	broker := &fakeBroker{}
	bus := newBus(broker, &syncDispatcher{events: make(chan *model.Event, 1)}, "")

	evt := &model.Event{
		EventType: model.EventUpgradeCompleted,
		Severity:  model.SeverityInfo,
		Message:   "panel upgraded to 2.4.1",
		Timestamp: time.Now().UTC(),
	}
	assert.NoError(t, bus.Publish(context.Background(), evt))

	// Events land on the default channel wrapped in an envelope.
	assert.Equal(t, event.DefaultChannel, broker.channel)
	assert.Len(t, broker.published, 1)

	env, ok := broker.published[0].(*messaging.Envelope)
	assert.True(t, ok)
	assert.Equal(t, model.EventUpgradeCompleted, env.Type)

	var decoded model.Event
	assert.NoError(t, env.Decode(&decoded))
	assert.Equal(t, "panel upgraded to 2.4.1", decoded.Message)
}

func TestBusRunDispatchesEvents(t *testing.T) {
	msgs := make(chan []byte, 8)
	broker := &fakeBroker{msgs: msgs}
	dispatcher := &syncDispatcher{events: make(chan *model.Event, 8)}
	bus := newBus(broker, dispatcher, "ops.events")

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- bus.Run(ctx) }()

	// Step 1: a well-formed envelope reaches the dispatcher.
	env, err := messaging.NewEnvelope(model.EventContainerCrashed, &model.Event{
		EventType: model.EventContainerCrashed,
		Severity:  model.SeverityCritical,
		Message:   "container web-1 exited with code 137",
	})
	assert.NoError(t, err)
	raw, err := json.Marshal(env)
	assert.NoError(t, err)
	msgs <- raw

	evt := dispatcher.wait(t)
	assert.Equal(t, model.EventContainerCrashed, evt.EventType)
	assert.Equal(t, model.SeverityCritical, evt.Severity)
	assert.Equal(t, "ops.events", broker.channel)

	// Step 2: garbage on the wire is dropped without killing the consumer.
	msgs <- []byte("not json")

	// Step 3: the consumer is still alive and keeps dispatching.
	msgs <- raw
	evt = dispatcher.wait(t)
	assert.Equal(t, model.EventContainerCrashed, evt.EventType)

	// Step 4: cancellation stops the loop cleanly.
	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to stop")
	}
}

func TestBusRunFillsMissingEventType(t *testing.T) {
	msgs := make(chan []byte, 1)
	broker := &fakeBroker{msgs: msgs}
	dispatcher := &syncDispatcher{events: make(chan *model.Event, 1)}
	bus := newBus(broker, dispatcher, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bus.Run(ctx) }()

	// The payload omits its event type; the envelope type fills it in.
	env, err := messaging.NewEnvelope(model.EventDiskSpaceLow, &model.Event{
		Severity: model.SeverityWarning,
		Message:  "/var/lib/docker at 91%",
	})
	assert.NoError(t, err)
	raw, err := json.Marshal(env)
	assert.NoError(t, err)
	msgs <- raw

	evt := dispatcher.wait(t)
	assert.Equal(t, model.EventDiskSpaceLow, evt.EventType)
}

func TestBusRunStopsWhenSubscriptionCloses(t *testing.T) {
	msgs := make(chan []byte)
	broker := &fakeBroker{msgs: msgs}
	bus := newBus(broker, &syncDispatcher{events: make(chan *model.Event, 1)}, "")

	runErr := make(chan error, 1)
	go func() { runErr <- bus.Run(context.Background()) }()

	close(msgs)
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Run to stop")
	}
}

func TestBusRunSubscribeError(t *testing.T) {
	broker := &fakeBroker{subErr: assert.AnError}
	bus := newBus(broker, &syncDispatcher{events: make(chan *model.Event, 1)}, "")

	err := bus.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to subscribe")
}
