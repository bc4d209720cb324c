package measure

import (
	"context"
	"strings"
	"testing"

	"github.com/ayuhito/globalping-probe/internal/config"
	"github.com/ayuhito/globalping-probe/pkg/types"
)

func TestDigArgsDefaults(t *testing.T) {
	deps := Deps{Config: config.Config{}.WithDefaults()}
	opts := types.DNSOptions{Target: "example.com", Query: types.DNSQuery{Type: "A", Protocol: "udp"}}

	args := digArgs(deps, opts)
	got := joinArgs(args)
	for _, want := range []string{"+tries=2", "+time=3", "-t A", "example.com"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected args %q to contain %q", got, want)
		}
	}
	if strings.Contains(got, "+trace") || strings.Contains(got, "+tcp") {
		t.Fatalf("expected no trace/tcp flags by default, got %q", got)
	}
}

func TestDigArgsResolverPortTraceTCP(t *testing.T) {
	deps := Deps{Config: config.Config{}.WithDefaults()}
	opts := types.DNSOptions{
		Target: "example.com",
		Query:  types.DNSQuery{Type: "MX", Resolver: "1.1.1.1", Protocol: "tcp", Port: 5353},
		Trace:  true,
	}

	args := digArgs(deps, opts)
	got := joinArgs(args)
	for _, want := range []string{"@1.1.1.1", "-p 5353", "+trace", "+tcp", "-t MX"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected args %q to contain %q", got, want)
		}
	}
}

func TestDigArgsFallsBackToConfiguredResolver(t *testing.T) {
	deps := Deps{Config: config.Config{DNS: config.DNSConfig{DefaultResolver: "9.9.9.9"}}.WithDefaults()}
	opts := types.DNSOptions{Target: "example.com", Query: types.DNSQuery{Type: "A", Protocol: "udp"}}

	args := digArgs(deps, opts)
	if !strings.Contains(joinArgs(args), "@9.9.9.9") {
		t.Fatalf("expected configured default resolver to be used, got %q", joinArgs(args))
	}
}

func TestDNSHandlerInvalidOptionsEmitsNoNetworkActivity(t *testing.T) {
	ch := &fakeChannel{}
	deps := Deps{
		Config: config.Config{Tools: config.ToolsConfig{DigPath: "/nonexistent/dig-should-never-run"}}.WithDefaults(),
		Logger: testLogger(),
	}
	handler := DNSHandler(deps)
	handler(context.Background(), ch, "m1", "t1", rawMessage(types.DNSOptions{Target: "", Query: types.DNSQuery{Type: "A"}}))

	results := ch.results()
	if len(results) != 1 {
		t.Fatalf("expected exactly one terminal result, got %d", len(results))
	}
	if rawOutputOf(results[0].Result) == "" {
		t.Fatalf("expected a diagnostic rawOutput naming the invalid field")
	}
}

func TestDNSHandlerPrivateDestinationEmitsFixedMessage(t *testing.T) {
	ch := &fakeChannel{}
	deps := Deps{
		Config: config.Config{Tools: config.ToolsConfig{DigPath: "/nonexistent/dig-should-never-run"}}.WithDefaults(),
		Logger: testLogger(),
	}
	handler := DNSHandler(deps)
	handler(context.Background(), ch, "m1", "t1", rawMessage(types.DNSOptions{Target: "10.0.0.5", Query: types.DNSQuery{Type: "A"}}))

	results := ch.results()
	if len(results) != 1 {
		t.Fatalf("expected exactly one terminal result, got %d", len(results))
	}
	if got := rawOutputOf(results[0].Result); got != "Private IP ranges are not allowed" {
		t.Fatalf("unexpected rawOutput: %q", got)
	}
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
