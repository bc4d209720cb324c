package metrics

// MeasurementRecorder tracks the in-flight and completed measurement counts
// the dispatcher drives (section 4.1).
type MeasurementRecorder interface {
	ObserveActive(count int)
	IncResultsEmitted()
	IncMeasurementErrors()
	IncProgressDropped()
}

type NoopMeasurementRecorder struct{}

func (NoopMeasurementRecorder) ObserveActive(count int)  {}
func (NoopMeasurementRecorder) IncResultsEmitted()       {}
func (NoopMeasurementRecorder) IncMeasurementErrors()    {}
func (NoopMeasurementRecorder) IncProgressDropped()      {}

// ChannelRecorder tracks the health of the control-channel transport.
type ChannelRecorder interface {
	ObserveSendBufferDepth(depth int)
	IncReconnects()
}

type NoopChannelRecorder struct{}

func (NoopChannelRecorder) ObserveSendBufferDepth(depth int) {}
func (NoopChannelRecorder) IncReconnects()                   {}
