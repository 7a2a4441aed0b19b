package messaging_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/berth-ops/notify-api/pkg/messaging"
)

type testEvent struct {
	EventType string `json:"event_type"`
	Severity  string `json:"severity"`
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env, err := messaging.NewEnvelope("event", testEvent{EventType: "container.crashed", Severity: "critical"})
	assert.NoError(t, err)
	assert.Equal(t, "event", env.Type)

	raw, err := json.Marshal(env)
	assert.NoError(t, err)

	decoded, err := messaging.DecodeEnvelope(raw)
	assert.NoError(t, err)
	assert.Equal(t, "event", decoded.Type)

	var evt testEvent
	assert.NoError(t, decoded.Decode(&evt))
	assert.Equal(t, "container.crashed", evt.EventType)
	assert.Equal(t, "critical", evt.Severity)
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	_, err := messaging.DecodeEnvelope([]byte("not json"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode envelope")
}

func TestDecodeEnvelopeRequiresType(t *testing.T) {
	_, err := messaging.DecodeEnvelope([]byte(`{"payload":{}}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "envelope missing type")
}

func TestDecodePayloadMismatch(t *testing.T) {
	env := &messaging.Envelope{Type: "event", Payload: json.RawMessage(`"just a string"`)}

	var evt testEvent
	err := env.Decode(&evt)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode event payload")
}
