package measure

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	"sort"
	"strings"
	"time"

	"github.com/ayuhito/globalping-probe/internal/certs"
	"github.com/ayuhito/globalping-probe/internal/channel"
	"github.com/ayuhito/globalping-probe/internal/safety"
	"github.com/ayuhito/globalping-probe/pkg/types"
)

// httpPseudoStatus is the HTTP/2 pseudo-header stripped from `headers` (but
// kept in `rawHeaders`) per section 4.3.
const httpPseudoStatus = ":status"

// HTTPHandler issues the outbound HTTP(1.1/2) request (section 4.3, "HTTP
// handler"). Unlike the other handlers this drives net/http rather than a
// subprocess, so there is no ToolProcess to scope; the request's context
// cancellation plays that role.
func HTTPHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, ch channel.Channel, measurementID, testID string, raw json.RawMessage) {
		var opts types.HTTPOptions
		empty := &types.HTTPResult{Headers: map[string]string{}}

		if err := safety.DecodeOptions(raw, &opts); err != nil {
			emitInvalid(ch, deps.Metrics, deps.Logger, testID, measurementID, empty, err)
			return
		}
		if err := safety.ValidateHTTP(&opts); err != nil {
			emitInvalid(ch, deps.Metrics, deps.Logger, testID, measurementID, empty, err)
			return
		}

		if err := safety.CheckTarget(ctx, net.DefaultResolver, targetHost(opts.Target)); err != nil {
			if err == safety.ErrPrivateDestination {
				emitPrivateDestination(ch, deps.Metrics, deps.Logger, testID, measurementID, empty)
				return
			}
			emitInvalid(ch, deps.Metrics, deps.Logger, testID, measurementID, empty, err)
			return
		}

		result, err := doHTTPRequest(ctx, deps, opts, ch, testID, measurementID)
		if err != nil {
			result.RawOutput = fmt.Sprintf("%s - %s", err.Error(), errorCode(err))
			result.StatusCode = 0
			result.Headers = map[string]string{}
		}

		emitResult(ch, deps.Metrics, deps.Logger, testID, measurementID, result)
	}
}

type httpTimingTrace struct {
	start, dnsStart, dnsDone, connectStart, connectDone, tlsStart, tlsDone, firstByte time.Time
}

func doHTTPRequest(ctx context.Context, deps Deps, opts types.HTTPOptions, ch channel.Channel, testID, measurementID string) (*types.HTTPResult, error) {
	result := &types.HTTPResult{Headers: map[string]string{}}

	url := buildURL(opts)
	method := strings.ToUpper(opts.Query.Method)

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return result, err
	}
	for k, v := range opts.Query.Headers {
		req.Header.Set(k, v)
	}

	trace := &httpTimingTrace{start: nowIfPossible()}
	var resolvedAddress string
	ct := &httptrace.ClientTrace{
		DNSStart:     func(httptrace.DNSStartInfo) { trace.dnsStart = nowIfPossible() },
		DNSDone:      func(httptrace.DNSDoneInfo) { trace.dnsDone = nowIfPossible() },
		ConnectStart: func(string, string) { trace.connectStart = nowIfPossible() },
		ConnectDone: func(network, addr string, err error) {
			trace.connectDone = nowIfPossible()
			if host, _, splitErr := net.SplitHostPort(addr); splitErr == nil {
				resolvedAddress = host
			}
		},
		TLSHandshakeStart: func() { trace.tlsStart = nowIfPossible() },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { trace.tlsDone = nowIfPossible() },
		GotFirstResponseByte: func() { trace.firstByte = nowIfPossible() },
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), ct))

	client := deps.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Timings = trace.partial()
		return result, err
	}
	defer resp.Body.Close()

	result.ResolvedAddress = resolvedAddress
	result.StatusCode = resp.StatusCode
	rawHeaderLines, headers := renderHeaders(resp.Header, opts.Query.Protocol, resp.Proto, resp.StatusCode)
	result.RawHeaders = strings.Join(rawHeaderLines, "\n")
	result.Headers = headers

	bodyCap := int64(deps.Config.HTTP.BodyCapBytes)
	var body strings.Builder
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			remaining := bodyCap - int64(body.Len())
			if remaining > 0 {
				take := int64(n)
				if take > remaining {
					take = remaining
				}
				body.Write(buf[:take])
			}
			emitProgress(ch, deps.Metrics, deps.Logger, testID, measurementID, false, map[string]string{"rawBody": string(buf[:n])})
		}
		if readErr != nil {
			break
		}
	}
	trace.firstByte = orNow(trace.firstByte)
	downloadDone := nowIfPossible()

	result.RawBody = body.String()
	result.Timings = trace.finish(downloadDone)

	statusLine := fmt.Sprintf("HTTP/%s %d", httpVersionLabel(opts.Query.Protocol, resp.Proto), resp.StatusCode)
	switch method {
	case "HEAD", "OPTIONS":
		result.RawOutput = statusLine + "\n" + result.RawHeaders
	default:
		result.RawOutput = result.RawBody
	}

	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		// client.Do only returns a response after a successful handshake, so
		// reaching here means the peer certificate already verified against
		// the client's trust store.
		view := certs.View(resp.TLS.PeerCertificates[0], nil)
		result.TLS = &view
	}

	return result, nil
}

func nowIfPossible() time.Time { return time.Now() }

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func (t *httpTimingTrace) partial() types.HTTPTimings {
	return t.finish(nowIfPossible())
}

func (t *httpTimingTrace) finish(downloadDone time.Time) types.HTTPTimings {
	ms := func(a, b time.Time) int64 {
		if a.IsZero() || b.IsZero() || b.Before(a) {
			return 0
		}
		return b.Sub(a).Milliseconds()
	}
	return types.HTTPTimings{
		DNS:       ms(t.dnsStart, t.dnsDone),
		TCP:       ms(t.connectStart, t.connectDone),
		TLS:       ms(t.tlsStart, t.tlsDone),
		FirstByte: ms(t.start, t.firstByte),
		Download:  ms(t.firstByte, downloadDone),
		Total:     ms(t.start, downloadDone),
	}
}

// targetHost strips an optional ":port" suffix so the private-destination
// filter resolves the bare host; HTTPOptions carries no separate port field,
// so target may embed one directly ("host:port"), matching net/url's own
// authority syntax.
func targetHost(target string) string {
	if host, _, err := net.SplitHostPort(target); err == nil {
		return host
	}
	return target
}

func buildURL(opts types.HTTPOptions) string {
	scheme := opts.Query.Protocol
	if scheme == "http2" {
		scheme = "https"
	}
	u := fmt.Sprintf("%s://%s%s", scheme, opts.Target, opts.Query.Path)
	if opts.Query.Query != "" {
		u += "?" + opts.Query.Query
	}
	return u
}

func httpVersionLabel(protocol, proto string) string {
	if protocol == "http2" {
		return "2"
	}
	if proto == "HTTP/2.0" {
		return "2"
	}
	return "1.1"
}

// renderHeaders builds rawHeaders (one lower-cased "name: value" per line,
// sorted by name, led by a ":status" line for HTTP/2) and the lower-cased
// headers map with HTTP/2 pseudo-headers stripped only from the latter
// (section 4.3).
func renderHeaders(h http.Header, protocol, negotiatedProto string, statusCode int) ([]string, map[string]string) {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var rawLines []string
	headers := make(map[string]string)
	if protocol == "http2" || negotiatedProto == "HTTP/2.0" {
		rawLines = append(rawLines, fmt.Sprintf("%s: %d", httpPseudoStatus, statusCode))
	}
	for _, name := range names {
		for _, v := range h[name] {
			lower := strings.ToLower(name)
			rawLines = append(rawLines, fmt.Sprintf("%s: %s", lower, v))
			if lower == httpPseudoStatus {
				continue
			}
			headers[lower] = v
		}
	}
	return rawLines, headers
}

// errorCode extracts a short machine-usable error tag for the
// "<message> - <code>" rawOutput format (section 4.3, "Errors"). net/http
// wraps most transport failures in *net.OpError / *net.DNSError: a DNS
// error yields "dns", an OpError yields its Op ("dial", "read", ...), and
// anything else yields "error".
func errorCode(err error) string {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op
	}
	return "error"
}
