package channel

import "testing"

func TestEventNames(t *testing.T) {
	cases := map[string]string{
		EventMeasurementRequest:  "probe:measurement:request",
		EventMeasurementProgress: "probe:measurement:progress",
		EventMeasurementResult:   "probe:measurement:result",
		EventStatusReady:         "probe:status:ready",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}
