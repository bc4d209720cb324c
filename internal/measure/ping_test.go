package measure

import (
	"context"
	"testing"

	"github.com/ayuhito/globalping-probe/internal/config"
	"github.com/ayuhito/globalping-probe/pkg/types"
)

func TestPingHandlerInvalidOptions(t *testing.T) {
	ch := &fakeChannel{}
	deps := Deps{
		Config: config.Config{Tools: config.ToolsConfig{PingPath: "/nonexistent/ping-should-never-run"}}.WithDefaults(),
		Logger: testLogger(),
	}
	handler := PingHandler(deps)
	handler(context.Background(), ch, "m1", "t1", rawMessage(types.PingOptions{Target: "example.com", Packets: 99}))

	results := ch.results()
	if len(results) != 1 {
		t.Fatalf("expected exactly one terminal result, got %d", len(results))
	}
	if rawOutputOf(results[0].Result) == "" {
		t.Fatalf("expected a diagnostic rawOutput for the out-of-bounds packet count")
	}
}

func TestPingHandlerPrivateDestination(t *testing.T) {
	ch := &fakeChannel{}
	deps := Deps{
		Config: config.Config{Tools: config.ToolsConfig{PingPath: "/nonexistent/ping-should-never-run"}}.WithDefaults(),
		Logger: testLogger(),
	}
	handler := PingHandler(deps)
	handler(context.Background(), ch, "m1", "t1", rawMessage(types.PingOptions{Target: "127.0.0.1"}))

	results := ch.results()
	if len(results) != 1 {
		t.Fatalf("expected exactly one terminal result, got %d", len(results))
	}
	if got := rawOutputOf(results[0].Result); got != "Private IP ranges are not allowed" {
		t.Fatalf("unexpected rawOutput: %q", got)
	}
}

func TestPingHandlerCompletesEvenWhenToolExitsNonzero(t *testing.T) {
	ch := &fakeChannel{}
	// PingPath points at a tool that always fails, exercising the
	// ToolProcessFailure path (section 7): the handler still emits exactly
	// one terminal result.
	deps := Deps{
		Config: config.Config{Tools: config.ToolsConfig{PingPath: "false"}}.WithDefaults(),
		Logger: testLogger(),
	}
	handler := PingHandler(deps)
	handler(context.Background(), ch, "m1", "t1", rawMessage(types.PingOptions{Target: "1.1.1.1", Packets: 1}))

	results := ch.results()
	if len(results) != 1 {
		t.Fatalf("expected exactly one terminal result, got %d", len(results))
	}
}
