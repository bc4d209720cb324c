package types

import (
	"encoding/json"
	"time"
)

// DNSAnswer is a single parsed resource record from a dig-style response.
type DNSAnswer struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Class string `json:"class"`
	TTL   int    `json:"ttl"`
	Value any    `json:"value"`
}

// MXValue is the structured value of an MX answer.
type MXValue struct {
	Priority int    `json:"priority"`
	Server   string `json:"server"`
}

// DNSTimings carries DNS-specific timing information.
type DNSTimings struct {
	Total int `json:"total"`
}

// DNSResult is the terminal body of a dns measurement.
type DNSResult struct {
	Answers   []DNSAnswer `json:"answers"`
	Resolver  string      `json:"resolver"`
	Timings   DNSTimings  `json:"timings"`
	RawOutput string      `json:"rawOutput"`
}

// PingResult is the terminal body of a ping measurement.
type PingResult struct {
	ResolvedAddress  string    `json:"resolvedAddress"`
	ResolvedHostname string    `json:"resolvedHostname"`
	Loss             float64   `json:"loss"`
	Min              float64   `json:"min"`
	Avg              float64   `json:"avg"`
	Max              float64   `json:"max"`
	Times            []float64 `json:"times"`
	RawOutput        string    `json:"rawOutput"`
}

// HopTiming is a single probe's round-trip time within a hop; RTT is nil
// when that probe timed out.
type HopTiming struct {
	RTT *float64 `json:"rtt"`
}

// HopStats summarizes a hop's timing samples.
type HopStats struct {
	Min    float64 `json:"min"`
	Avg    float64 `json:"avg"`
	Max    float64 `json:"max"`
	StDev  float64 `json:"stDev"`
	JAvg   float64 `json:"jAvg"`
	Loss   float64 `json:"loss"`
	Count  int     `json:"count"`
}

// Hop is one router on the path, 1-indexed from the probe outward.
type Hop struct {
	ResolvedAddress  string      `json:"resolvedAddress,omitempty"`
	ResolvedHostname string      `json:"resolvedHostname,omitempty"`
	ASN              []int       `json:"asn"`
	Timings          []HopTiming `json:"timings"`
	Stats            HopStats    `json:"stats"`
	Duplicate        bool        `json:"duplicate"`
}

// PathResult is the terminal body shared by traceroute and mtr measurements.
type PathResult struct {
	ResolvedAddress  string `json:"resolvedAddress"`
	ResolvedHostname string `json:"resolvedHostname"`
	Hops             []Hop  `json:"hops"`
	RawOutput        string `json:"rawOutput"`
}

// HTTPTimings carries the phase breakdown of an HTTP request, in milliseconds.
type HTTPTimings struct {
	DNS       int64 `json:"dns"`
	TCP       int64 `json:"tcp"`
	TLS       int64 `json:"tls"`
	FirstByte int64 `json:"firstByte"`
	Download  int64 `json:"download"`
	Total     int64 `json:"total"`
}

// CertName is a subset of an X.509 distinguished name.
type CertName struct {
	CN string `json:"CN"`
	O  string `json:"O,omitempty"`
	C  string `json:"C,omitempty"`
}

// TLSSubject is the certificate subject, plus the raw subjectAltName text.
type TLSSubject struct {
	CertName
	Alt string `json:"alt"`
}

// TLSCertificateView is the enriched view of a peer TLS certificate.
type TLSCertificateView struct {
	Authorized         bool       `json:"authorized"`
	AuthorizationError string     `json:"authorizationError,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	ExpiresAt          time.Time  `json:"expiresAt"`
	Issuer             CertName   `json:"issuer"`
	Subject            TLSSubject `json:"subject"`
}

// HTTPResult is the terminal body of an http measurement. TLS marshals as an
// empty JSON object when the response carried no certificate (plain HTTP or a
// network error before a socket existed).
type HTTPResult struct {
	ResolvedAddress string            `json:"resolvedAddress"`
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	RawHeaders      string            `json:"rawHeaders"`
	RawBody         string            `json:"rawBody"`
	Timings         HTTPTimings       `json:"timings"`
	TLS             *TLSCertificateView `json:"-"`
	RawOutput       string            `json:"rawOutput"`
}

// MarshalJSON implements the tls:{} vs tls:{...} invariant from section 3.
func (r HTTPResult) MarshalJSON() ([]byte, error) {
	type alias HTTPResult
	var tls any = map[string]any{}
	if r.TLS != nil {
		tls = r.TLS
	}
	return json.Marshal(struct {
		alias
		TLS any `json:"tls"`
	}{alias: alias(r), TLS: tls})
}

// ResultEnvelope is the terminal `probe:measurement:result` body.
type ResultEnvelope struct {
	TestID        string `json:"testId"`
	MeasurementID string `json:"measurementId"`
	Result        any    `json:"result"`
}

// ProgressEnvelope is a `probe:measurement:progress` body.
type ProgressEnvelope struct {
	TestID        string `json:"testId"`
	MeasurementID string `json:"measurementId"`
	Overwrite     bool   `json:"overwrite"`
	Result        any    `json:"result"`
}
