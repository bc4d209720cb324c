package measure

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ayuhito/globalping-probe/internal/config"
	"github.com/ayuhito/globalping-probe/pkg/types"
)

// TestHTTPHandler400 is the "HTTP 400" scenario (section 8).
func TestHTTPHandler400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("test", "abc")
		// Suppress net/http's automatic headers so the response carries
		// only the scenario's own header.
		w.Header()["Date"] = nil
		w.Header()["Content-Type"] = nil
		w.Header()["Content-Length"] = nil
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("400 Bad Request"))
	}))
	defer srv.Close()

	ch := &fakeChannel{}
	deps := Deps{Config: config.Config{}.WithDefaults(), Logger: testLogger(), HTTPClient: srv.Client()}

	target, path := splitTestServerURL(srv.URL)
	opts := types.HTTPOptions{Target: target, Query: types.HTTPQuery{Method: "get", Protocol: "http", Path: path}}
	res, err := doHTTPRequest(context.Background(), deps, opts, ch, "t1", "m1")
	if err != nil {
		t.Fatalf("doHTTPRequest: %v", err)
	}
	if res.StatusCode != 400 {
		t.Fatalf("expected statusCode 400, got %d", res.StatusCode)
	}
	if res.Headers["test"] != "abc" {
		t.Fatalf("expected headers.test == abc, got %+v", res.Headers)
	}
	if res.RawHeaders != "test: abc" {
		t.Fatalf("expected rawHeaders == %q, got %q", "test: abc", res.RawHeaders)
	}
	if res.RawBody != "400 Bad Request" {
		t.Fatalf("expected rawBody == %q, got %q", "400 Bad Request", res.RawBody)
	}
	if res.RawOutput != "400 Bad Request" {
		t.Fatalf("expected rawOutput == %q, got %q", "400 Bad Request", res.RawOutput)
	}
}

// TestHTTPHandlerHead is the "HTTP HEAD with headers-only output" scenario.
func TestHTTPHandlerHead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("test", "abc")
		w.Header()["Date"] = nil
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := &fakeChannel{}
	deps := Deps{Config: config.Config{}.WithDefaults(), Logger: testLogger(), HTTPClient: srv.Client()}

	target, path := splitTestServerURL(srv.URL)
	opts := types.HTTPOptions{Target: target, Query: types.HTTPQuery{Method: "head", Protocol: "http", Path: path}}
	res, err := doHTTPRequest(context.Background(), deps, opts, ch, "t1", "m1")
	if err != nil {
		t.Fatalf("doHTTPRequest: %v", err)
	}
	if res.RawOutput != "HTTP/1.1 200\ntest: abc" {
		t.Fatalf("expected rawOutput == %q, got %q", "HTTP/1.1 200\ntest: abc", res.RawOutput)
	}
	if res.RawBody != "" {
		t.Fatalf("expected empty rawBody for HEAD, got %q", res.RawBody)
	}
}

// TestHTTPHandlerNetworkError exercises the NetworkFailure path (section 7):
// dialing a closed local port fails before any response is received. The
// HTTPHandler wrapper (tested separately for the private-destination filter)
// is bypassed here so the test isn't gated on loopback being non-private.
func TestHTTPHandlerNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target, _ := splitTestServerURL(srv.URL)
	srv.Close() // now guaranteed nothing is listening on this port

	ch := &fakeChannel{}
	deps := Deps{Config: config.Config{}.WithDefaults(), Logger: testLogger()}
	opts := types.HTTPOptions{Target: target, Query: types.HTTPQuery{Method: "get", Protocol: "http", Path: "/"}}

	res, err := doHTTPRequest(context.Background(), deps, opts, ch, "t1", "m1")
	if err == nil {
		t.Fatalf("expected a network error against a closed port")
	}

	rawOutput := fmt.Sprintf("%s - %s", err.Error(), errorCode(err))
	if !strings.Contains(rawOutput, " - ") {
		t.Fatalf("expected rawOutput to follow '<message> - <code>', got %q", rawOutput)
	}
	if res.StatusCode != 0 {
		t.Fatalf("expected statusCode 0 on error, got %d", res.StatusCode)
	}
}

// TestHTTPHandlerPrivateDestination confirms the filter rejects loopback
// targets before any request is attempted.
func TestHTTPHandlerPrivateDestination(t *testing.T) {
	ch := &fakeChannel{}
	deps := Deps{Config: config.Config{}.WithDefaults(), Logger: testLogger()}
	handler := HTTPHandler(deps)

	handler(context.Background(), ch, "m1", "t1", rawMessage(types.HTTPOptions{
		Target: "127.0.0.1",
		Query:  types.HTTPQuery{Method: "get", Protocol: "http", Path: "/"},
	}))

	results := ch.results()
	if len(results) != 1 {
		t.Fatalf("expected exactly one terminal result, got %d", len(results))
	}
	res := results[0].Result.(*types.HTTPResult)
	if res.RawOutput != "Private IP ranges are not allowed" {
		t.Fatalf("unexpected rawOutput: %q", res.RawOutput)
	}
}

func TestRenderHeadersFiltersHTTP2PseudoStatus(t *testing.T) {
	h := http.Header{"Test": []string{"abc"}}
	rawLines, headers := renderHeaders(h, "http2", "HTTP/2.0", 200)

	if strings.Join(rawLines, "\n") != ":status: 200\ntest: abc" {
		t.Fatalf("unexpected rawHeaders: %q", strings.Join(rawLines, "\n"))
	}
	if _, ok := headers[":status"]; ok {
		t.Fatalf("expected :status to be filtered from headers")
	}
	if headers["test"] != "abc" {
		t.Fatalf("expected headers.test == abc, got %+v", headers)
	}
}

func TestBuildURLAppendsQueryAndMapsHTTP2ToHTTPS(t *testing.T) {
	url := buildURL(types.HTTPOptions{
		Target: "example.com",
		Query:  types.HTTPQuery{Protocol: "http2", Path: "/a", Query: "x=1"},
	})
	if url != "https://example.com/a?x=1" {
		t.Fatalf("unexpected url: %q", url)
	}
}

func TestErrorCodeDefaultsToError(t *testing.T) {
	if got := errorCode(errTest("boom")); got != "error" {
		t.Fatalf("expected fallback code 'error', got %q", got)
	}
}

// splitTestServerURL turns an httptest.Server URL like http://127.0.0.1:PORT
// into a bare host:port target plus the empty path, since HTTPOptions.Target
// carries the host, not the scheme.
func splitTestServerURL(rawURL string) (target, path string) {
	target = strings.TrimPrefix(strings.TrimPrefix(rawURL, "http://"), "https://")
	return target, "/"
}
