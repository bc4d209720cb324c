// Package types defines the wire types exchanged between the measurement
// execution engine and the control channel: inbound requests, the
// kind-specific option bundles they carry, and the progress/result payloads
// the engine emits.
package types

import "encoding/json"

// Kind identifies which diagnostic tool a measurement drives.
type Kind string

const (
	KindDNS         Kind = "dns"
	KindPing        Kind = "ping"
	KindTraceroute  Kind = "traceroute"
	KindMTR         Kind = "mtr"
	KindHTTP        Kind = "http"
)

// MeasurementRequest is the inbound `probe:measurement:request` payload. The
// dispatcher never mutates it; handlers see a validated, normalized copy of
// Options built by internal/safety.
type MeasurementRequest struct {
	MeasurementID string          `json:"measurementId"`
	TestID        string          `json:"testId"`
	Measurement   json.RawMessage `json:"measurement"`
}

// KindProbe is the minimal shape needed to sniff a measurement's kind and
// target before full validation.
type KindProbe struct {
	Type   Kind   `json:"type"`
	Target string `json:"target"`
}

// DNSQuery carries the DNS-specific query options.
type DNSQuery struct {
	Type     string `json:"type"`
	Resolver string `json:"resolver"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
}

// DNSOptions is the validated, normalized option bundle for a dns measurement.
type DNSOptions struct {
	Target string   `json:"target"`
	Query  DNSQuery `json:"query"`
	Trace  bool     `json:"trace"`
}

// PingOptions is the validated option bundle for a ping measurement.
type PingOptions struct {
	Target  string `json:"target"`
	Packets int    `json:"packets"`
}

// TracerouteOptions is the validated option bundle for a traceroute measurement.
type TracerouteOptions struct {
	Target   string `json:"target"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
}

// MTROptions is the validated option bundle for an mtr measurement.
type MTROptions struct {
	Target   string `json:"target"`
	Protocol string `json:"protocol"`
	Port     int    `json:"port"`
	Packets  int    `json:"packets"`
}

// HTTPQuery carries the HTTP-specific query options.
type HTTPQuery struct {
	Method   string            `json:"method"`
	Protocol string            `json:"protocol"`
	Path     string            `json:"path"`
	Query    string            `json:"query"`
	Headers  map[string]string `json:"headers"`
	Resolver string            `json:"resolver"`
}

// HTTPOptions is the validated option bundle for an http measurement.
type HTTPOptions struct {
	Target string    `json:"target"`
	Query  HTTPQuery `json:"query"`
}
