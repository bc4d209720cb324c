package measure

import (
	"log"

	"github.com/ayuhito/globalping-probe/internal/channel"
	"github.com/ayuhito/globalping-probe/internal/metrics"
	"github.com/ayuhito/globalping-probe/pkg/types"
)

// emitProgress sends a probe:measurement:progress frame. Progress emits are
// opportunistic (section 5, "Back-pressure"): a failure is logged and
// counted but never aborts the measurement.
func emitProgress(ch channel.Channel, recorder metrics.MeasurementRecorder, logger *log.Logger, testID, measurementID string, overwrite bool, result any) {
	if recorder == nil {
		recorder = metrics.NoopMeasurementRecorder{}
	}
	envelope := types.ProgressEnvelope{
		TestID:        testID,
		MeasurementID: measurementID,
		Overwrite:     overwrite,
		Result:        result,
	}
	if err := ch.Emit(channel.EventMeasurementProgress, envelope); err != nil {
		logger.Printf("measurement %s: emit progress failed: %v", measurementID, err)
		recorder.IncProgressDropped()
	}
}

// emitResult sends the terminal probe:measurement:result frame. Every
// handler path ends here exactly once (section 8, invariant 1).
func emitResult(ch channel.Channel, recorder metrics.MeasurementRecorder, logger *log.Logger, testID, measurementID string, result any) {
	if recorder == nil {
		recorder = metrics.NoopMeasurementRecorder{}
	}
	envelope := types.ResultEnvelope{
		TestID:        testID,
		MeasurementID: measurementID,
		Result:        result,
	}
	if err := ch.Emit(channel.EventMeasurementResult, envelope); err != nil {
		logger.Printf("measurement %s: emit result failed: %v", measurementID, err)
		return
	}
	recorder.IncResultsEmitted()
}

// emitInvalid handles the InvalidOptions error path (section 4.2): no
// network activity, no progress emits, a single terminal result naming the
// offending field.
func emitInvalid(ch channel.Channel, recorder metrics.MeasurementRecorder, logger *log.Logger, testID, measurementID string, empty any, err error) {
	setRawOutput(empty, err.Error())
	emitResult(ch, recorder, logger, testID, measurementID, empty)
}

// emitPrivateDestination handles the PrivateDestination error path with the
// literal rawOutput section 4.2 mandates.
func emitPrivateDestination(ch channel.Channel, recorder metrics.MeasurementRecorder, logger *log.Logger, testID, measurementID string, empty any) {
	setRawOutput(empty, "Private IP ranges are not allowed")
	emitResult(ch, recorder, logger, testID, measurementID, empty)
}

// setRawOutput populates the rawOutput field of one of the kind-specific
// result structs so every error path can share one emit helper.
func setRawOutput(result any, message string) {
	switch r := result.(type) {
	case *types.DNSResult:
		r.RawOutput = message
	case *types.PingResult:
		r.RawOutput = message
	case *types.PathResult:
		r.RawOutput = message
	case *types.HTTPResult:
		r.RawOutput = message
	}
}
