// Package measure implements the dispatcher and the five measurement-kind
// handlers: validate options, filter private destinations, invoke the
// diagnostic tool, stream-parse its output, enrich, and emit progress and a
// terminal result over the control channel.
package measure

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/ayuhito/globalping-probe/internal/channel"
	"github.com/ayuhito/globalping-probe/internal/config"
	"github.com/ayuhito/globalping-probe/internal/enrich"
	"github.com/ayuhito/globalping-probe/internal/metrics"
	"github.com/ayuhito/globalping-probe/pkg/types"
)

// Deps are the collaborators every handler needs, constructed once in
// cmd/agent/main.go and shared across every measurement.
type Deps struct {
	Config     config.Config
	Logger     *log.Logger
	Metrics    metrics.MeasurementRecorder
	ASN        enrich.ASNResolver
	RDNS       *enrich.RDNSResolver
	HTTPClient *http.Client
}

// HandlerFunc drives one measurement kind end to end: run(channel,
// measurementId, testId, options) -> completion (section 4.3). raw carries
// the still-undecoded, kind-specific options bundle.
type HandlerFunc func(ctx context.Context, ch channel.Channel, measurementID, testID string, raw json.RawMessage)

// Registry maps a measurement kind to its handler.
type Registry map[types.Kind]HandlerFunc

// NewRegistry wires the five built-in handlers against deps.
func NewRegistry(deps Deps) Registry {
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopMeasurementRecorder{}
	}
	return Registry{
		types.KindDNS:        DNSHandler(deps),
		types.KindPing:       PingHandler(deps),
		types.KindTraceroute: TracerouteHandler(deps),
		types.KindMTR:        MTRHandler(deps),
		types.KindHTTP:       HTTPHandler(deps),
	}
}
