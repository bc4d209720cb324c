package measure

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ayuhito/globalping-probe/internal/channel"
	"github.com/ayuhito/globalping-probe/internal/metrics"
	"github.com/ayuhito/globalping-probe/pkg/types"
)

// Dispatcher subscribes to inbound probe:measurement:request events and
// invokes the handler registered for the measurement's kind (section 4.1).
// Each request runs in its own goroutine; there is no global mutex and
// concurrent measurements never share state.
type Dispatcher struct {
	channel  channel.Channel
	registry Registry
	logger   *log.Logger
	metrics  metrics.MeasurementRecorder
	active   atomic.Int64
}

func NewDispatcher(ch channel.Channel, registry Registry, logger *log.Logger, recorder metrics.MeasurementRecorder) *Dispatcher {
	if recorder == nil {
		recorder = metrics.NoopMeasurementRecorder{}
	}
	return &Dispatcher{channel: ch, registry: registry, logger: logger, metrics: recorder}
}

// Handle satisfies channel.RequestHandler. It never blocks the read pump:
// the handler runs on its own goroutine and owns its full lifecycle.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) {
	go d.run(ctx, raw)
}

func (d *Dispatcher) run(ctx context.Context, raw []byte) {
	var req types.MeasurementRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		d.logger.Printf("measurement: malformed request: %v", err)
		return
	}

	var probe types.KindProbe
	_ = json.Unmarshal(req.Measurement, &probe)

	handler, ok := d.registry[probe.Type]
	if !ok {
		d.terminal(req, map[string]any{
			"rawOutput": fmt.Sprintf("unsupported measurement type %q", probe.Type),
		})
		return
	}

	correlationID := uuid.NewString()
	d.metrics.ObserveActive(int(d.active.Add(1)))
	defer d.metrics.ObserveActive(int(d.active.Add(-1)))

	defer func() {
		if r := recover(); r != nil {
			d.logger.Printf("measurement %s (%s): handler panicked: %v", correlationID, probe.Type, r)
			d.metrics.IncMeasurementErrors()
			d.terminal(req, map[string]any{
				"rawOutput": fmt.Sprintf("internal error: %v", r),
			})
		}
	}()

	start := time.Now()
	handler(ctx, d.channel, req.MeasurementID, req.TestID, req.Measurement)
	d.logger.Printf("measurement %s (%s) completed in %s", correlationID, probe.Type, time.Since(start))
}

// terminal emits a last-resort result the dispatcher itself is responsible
// for, per the "no handler ever throws past the dispatcher" contract.
func (d *Dispatcher) terminal(req types.MeasurementRequest, result any) {
	envelope := types.ResultEnvelope{TestID: req.TestID, MeasurementID: req.MeasurementID, Result: result}
	if err := d.channel.Emit(channel.EventMeasurementResult, envelope); err != nil {
		d.logger.Printf("measurement %s: emit terminal result failed: %v", req.MeasurementID, err)
		return
	}
	d.metrics.IncResultsEmitted()
}
