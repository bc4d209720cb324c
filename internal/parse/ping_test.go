package parse

import "testing"

const samplePingOutput = `PING example.com (93.184.216.34): 56 data bytes
64 bytes from 93.184.216.34: icmp_seq=0 ttl=56 time=11.234 ms
64 bytes from 93.184.216.34: icmp_seq=1 ttl=56 time=10.879 ms
64 bytes from 93.184.216.34: icmp_seq=2 ttl=56 time=12.001 ms

--- example.com ping statistics ---
3 packets transmitted, 3 packets received, 0.0% packet loss
round-trip min/avg/max/stddev = 10.879/11.371/12.001/0.469 ms
`

func TestFeedPingFullOutput(t *testing.T) {
	var state PingState
	state, raw := FeedPing(state, samplePingOutput, true)
	result := state.Result()

	if result.ResolvedAddress != "93.184.216.34" {
		t.Fatalf("unexpected resolved address: %q", result.ResolvedAddress)
	}
	if len(result.Times) != 3 {
		t.Fatalf("expected 3 rtt samples, got %d: %v", len(result.Times), result.Times)
	}
	if result.Loss != 0.0 {
		t.Fatalf("expected 0%% loss, got %v", result.Loss)
	}
	if result.Min != 10.879 || result.Max != 12.001 {
		t.Fatalf("unexpected min/max: %v/%v", result.Min, result.Max)
	}
	if raw == "" {
		t.Fatalf("expected non-empty raw output")
	}
}

func TestFeedPingChunkedAcrossLines(t *testing.T) {
	full := samplePingOutput
	var state PingState
	var raw string
	for _, p := range splitEvery(full, 13) {
		state, raw = FeedPing(state, p, false)
	}
	state, raw = FeedPing(state, "", true)
	result := state.Result()
	if len(result.Times) != 3 {
		t.Fatalf("expected 3 rtt samples across arbitrary chunking, got %d", len(result.Times))
	}
	if raw == "" {
		t.Fatalf("expected raw output")
	}
}

func TestFeedPingTolerantOfUnknownLines(t *testing.T) {
	var state PingState
	state, _ = FeedPing(state, "some unexpected diagnostic line from the tool\n", false)
	state, raw := FeedPing(state, "64 bytes from 1.1.1.1: icmp_seq=0 ttl=56 time=5.0 ms\n", true)
	result := state.Result()
	if len(result.Times) != 1 {
		t.Fatalf("expected the recognized line to still parse, got %d samples", len(result.Times))
	}
	if raw == "" || len(raw) < len("some unexpected diagnostic line from the tool") {
		t.Fatalf("expected unrecognized line preserved verbatim in raw output")
	}
}
