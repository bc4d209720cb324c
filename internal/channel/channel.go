// Package channel abstracts the persistent bidirectional control channel
// that carries measurement requests in and progress/results out. The
// measurement engine only ever depends on the Channel interface; the
// concrete websocket transport lives in this package but is otherwise
// swappable (e.g. for tests, an in-memory Channel records emits).
package channel

import "context"

// Channel is the seam between the measurement engine and whatever
// transport carries events to and from the orchestrator.
type Channel interface {
	// Emit sends an event with the given payload. Implementations must be
	// safe for concurrent use: handlers emit progress and results from
	// independent goroutines.
	Emit(event string, payload any) error
}

// RequestHandler is invoked for every inbound probe:measurement:request
// event. It must never block the read pump; long-running work happens in
// its own goroutine.
type RequestHandler func(ctx context.Context, raw []byte)

// Control channel event names (section 4 of the wire contract).
const (
	EventMeasurementRequest  = "probe:measurement:request"
	EventMeasurementProgress = "probe:measurement:progress"
	EventMeasurementResult   = "probe:measurement:result"
	EventStatusReady         = "probe:status:ready"
)
