package influxdb

import (
	"context"
	"slices"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/robojar-core/internal/device"
)

// MeasurementTransitions is the measurement applied transitions go to.
const MeasurementTransitions = "device_transitions"

// TransitionPoint builds the point for tr.
//
// Tags: device, kind. Fields: from_state, to_state and state_code, the
// position of the new state in the kind's state list, which graphs as a
// step line.
func TransitionPoint(tr device.Transition) *write.Point {
	at := tr.At
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementTransitions,
		map[string]string{
			"device": tr.Device,
			"kind":   string(tr.Kind),
		},
		map[string]interface{}{
			"from_state": string(tr.From),
			"to_state":   string(tr.To),
			"state_code": int64(slices.Index(tr.Kind.States(), tr.To)),
		},
		at,
	)
}

// WriteTransition queues tr when it was applied. Unchanged and rejected
// outcomes carry no new state and are skipped.
func (c *Client) WriteTransition(tr device.Transition) {
	if !tr.Changed() || !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(TransitionPoint(tr))
}

// Handle matches the events bus handler signature.
func (c *Client) Handle(_ context.Context, tr device.Transition) {
	c.WriteTransition(tr)
}
