package types

// Control-channel event names, both inbound and outbound.
const (
	EventMeasurementRequest  = "probe:measurement:request"
	EventMeasurementProgress = "probe:measurement:progress"
	EventMeasurementResult   = "probe:measurement:result"
	EventStatusReady         = "probe:status:ready"
)
