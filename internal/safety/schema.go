// Package safety validates measurement options against the per-kind schema
// and rejects requests aimed at private address space (section 4.2).
package safety

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ayuhito/globalping-probe/pkg/types"
)

// ValidationError names the offending field so handlers can build a
// diagnostic rawOutput without inspecting the schema again.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

var dnsQueryTypes = map[string]bool{
	"A": true, "AAAA": true, "CNAME": true, "MX": true, "NS": true,
	"PTR": true, "SOA": true, "TXT": true, "SRV": true, "CAA": true,
}

var dnsProtocols = map[string]bool{"udp": true, "tcp": true}
var pathProtocols = map[string]bool{"icmp": true, "tcp": true, "udp": true}
var httpMethods = map[string]bool{"get": true, "head": true, "options": true}
var httpProtocols = map[string]bool{"http": true, "https": true, "http2": true}

// ValidateDNS normalizes and bounds-checks DNS options in place.
func ValidateDNS(opts *types.DNSOptions) error {
	if strings.TrimSpace(opts.Target) == "" {
		return invalid("target", "must not be empty")
	}
	opts.Query.Type = strings.ToUpper(strings.TrimSpace(opts.Query.Type))
	if opts.Query.Type == "" {
		opts.Query.Type = "A"
	}
	if !dnsQueryTypes[opts.Query.Type] {
		return invalid("query.type", "unsupported record type")
	}
	opts.Query.Protocol = strings.ToLower(strings.TrimSpace(opts.Query.Protocol))
	if opts.Query.Protocol == "" {
		opts.Query.Protocol = "udp"
	}
	if !dnsProtocols[opts.Query.Protocol] {
		return invalid("query.protocol", "must be udp or tcp")
	}
	if opts.Query.Port < 0 || opts.Query.Port > 65535 {
		return invalid("query.port", "must be in [0,65535]")
	}
	return nil
}

// ValidatePing normalizes and bounds-checks ping options in place.
func ValidatePing(opts *types.PingOptions) error {
	if strings.TrimSpace(opts.Target) == "" {
		return invalid("target", "must not be empty")
	}
	if opts.Packets == 0 {
		opts.Packets = 3
	}
	if opts.Packets < 1 || opts.Packets > 16 {
		return invalid("packets", "must be in [1,16]")
	}
	return nil
}

// ValidateTraceroute normalizes and bounds-checks traceroute options in place.
func ValidateTraceroute(opts *types.TracerouteOptions) error {
	if strings.TrimSpace(opts.Target) == "" {
		return invalid("target", "must not be empty")
	}
	opts.Protocol = strings.ToLower(strings.TrimSpace(opts.Protocol))
	if opts.Protocol == "" {
		opts.Protocol = "icmp"
	}
	if !pathProtocols[opts.Protocol] {
		return invalid("protocol", "must be icmp, tcp or udp")
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return invalid("port", "must be in [0,65535]")
	}
	return nil
}

// ValidateMTR normalizes and bounds-checks MTR options in place.
func ValidateMTR(opts *types.MTROptions) error {
	if strings.TrimSpace(opts.Target) == "" {
		return invalid("target", "must not be empty")
	}
	opts.Protocol = strings.ToLower(strings.TrimSpace(opts.Protocol))
	if opts.Protocol == "" {
		opts.Protocol = "icmp"
	}
	if !pathProtocols[opts.Protocol] {
		return invalid("protocol", "must be icmp, tcp or udp")
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return invalid("port", "must be in [0,65535]")
	}
	if opts.Packets == 0 {
		opts.Packets = 3
	}
	if opts.Packets < 1 || opts.Packets > 16 {
		return invalid("packets", "must be in [1,16]")
	}
	return nil
}

// ValidateHTTP normalizes and bounds-checks HTTP options in place.
func ValidateHTTP(opts *types.HTTPOptions) error {
	if strings.TrimSpace(opts.Target) == "" {
		return invalid("target", "must not be empty")
	}
	opts.Query.Method = strings.ToLower(strings.TrimSpace(opts.Query.Method))
	if opts.Query.Method == "" {
		opts.Query.Method = "get"
	}
	if !httpMethods[opts.Query.Method] {
		return invalid("query.method", "must be get, head or options")
	}
	opts.Query.Protocol = strings.ToLower(strings.TrimSpace(opts.Query.Protocol))
	if opts.Query.Protocol == "" {
		opts.Query.Protocol = "https"
	}
	if !httpProtocols[opts.Query.Protocol] {
		return invalid("query.protocol", "must be http, https or http2")
	}
	if opts.Query.Path == "" {
		opts.Query.Path = "/"
	}
	if !strings.HasPrefix(opts.Query.Path, "/") {
		return invalid("query.path", "must start with /")
	}
	return nil
}

// DecodeOptions unmarshals the kind-specific options bundle carried by a
// measurement request into the given destination pointer.
func DecodeOptions(raw json.RawMessage, dest any) error {
	if err := json.Unmarshal(raw, dest); err != nil {
		return invalid("options", "malformed options: "+err.Error())
	}
	return nil
}
