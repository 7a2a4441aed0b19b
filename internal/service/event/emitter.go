// Package event holds the emitter that platform code calls to raise
// notification events, and the bus that carries events between services
// over Redis.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/berth-ops/notify-api/internal/model"
	"github.com/berth-ops/notify-api/pkg/logger"
)

// Dispatcher is the slice of the dispatch service the emitter depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *model.Event) *model.DispatchResult
}

// Emitter is the single entry point for raising platform events. A
// notification failure must never break the operation that triggered it,
// so Emit absorbs panics and always hands back a result.
type Emitter struct {
	dispatcher Dispatcher
	logger     *logger.Logger
}

func NewEmitter(dispatcher Dispatcher, logger *logger.Logger) *Emitter {
	return &Emitter{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Emit builds an event and dispatches it.
func (e *Emitter) Emit(ctx context.Context, eventType string, severity model.Severity, message string, metadata model.JSONMap) *model.DispatchResult {
	return e.EmitEvent(ctx, &model.Event{
		EventType: eventType,
		Severity:  severity,
		Message:   message,
		Metadata:  metadata,
		Timestamp: time.Now().UTC(),
	})
}

// EmitEvent dispatches an already-built event.
func (e *Emitter) EmitEvent(ctx context.Context, evt *model.Event) (result *model.DispatchResult) {
	eventType := ""
	if evt != nil {
		eventType = evt.EventType
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(fmt.Errorf("panic: %v", r), "event dispatch panicked",
				"event_type", eventType)
			result = &model.DispatchResult{EventType: eventType}
		}
	}()

	return e.dispatcher.Dispatch(ctx, evt)
}
