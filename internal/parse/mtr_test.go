package parse

import "testing"

const sampleMTRRaw = `h 0 192.168.1.1
d 0 gateway.local
p 0 1234
h 1 10.0.0.1
p 1 5678
h 2 93.184.216.34
d 2 example.com
p 2 10500
p 0 1300
p 1 5900
p 2 10600
`

func TestFeedMTRFullOutput(t *testing.T) {
	var state MTRState
	state, raw := FeedMTR(state, sampleMTRRaw, true)
	result := state.Result(nil, nil)

	if len(result.Hops) != 3 {
		t.Fatalf("expected 3 hops, got %d", len(result.Hops))
	}
	if result.Hops[0].ResolvedAddress != "192.168.1.1" || result.Hops[0].ResolvedHostname != "gateway.local" {
		t.Fatalf("unexpected hop 0: %+v", result.Hops[0])
	}
	if len(result.Hops[0].Timings) != 2 {
		t.Fatalf("expected 2 timing samples for hop 0, got %d", len(result.Hops[0].Timings))
	}
	if result.ResolvedAddress != "93.184.216.34" {
		t.Fatalf("expected final hop address, got %q", result.ResolvedAddress)
	}
	if raw == "" {
		t.Fatalf("expected non-empty rendered table")
	}
}

func TestFeedMTRDuplicateAddress(t *testing.T) {
	input := "h 0 10.0.0.1\np 0 1000\nh 1 10.0.0.2\np 1 2000\nh 2 10.0.0.1\np 2 3000\n"
	var state MTRState
	state, _ = FeedMTR(state, input, true)
	result := state.Result(nil, nil)

	if result.Hops[0].Duplicate {
		t.Fatalf("expected first occurrence to not be duplicate")
	}
	if !result.Hops[2].Duplicate {
		t.Fatalf("expected repeated address at hop 2 (0-indexed) to be duplicate")
	}
}

func TestFeedMTRASNEnrichmentAppliedByAddress(t *testing.T) {
	input := "h 0 8.8.8.8\np 0 1000\n"
	var state MTRState
	state, _ = FeedMTR(state, input, true)
	result := state.Result(map[string][]int{"8.8.8.8": {15169}}, nil)
	if len(result.Hops[0].ASN) != 1 || result.Hops[0].ASN[0] != 15169 {
		t.Fatalf("expected ASN enrichment applied, got %+v", result.Hops[0].ASN)
	}
}

func TestFeedMTRNewAddressesTracksUnreported(t *testing.T) {
	var state MTRState
	state, _ = FeedMTR(state, "h 0 1.1.1.1\n", false)
	fresh := state.NewAddresses(map[string]bool{})
	if len(fresh) != 1 || fresh[0] != "1.1.1.1" {
		t.Fatalf("expected 1.1.1.1 to be fresh, got %v", fresh)
	}
	reported := map[string]bool{"1.1.1.1": true}
	state, _ = FeedMTR(state, "h 1 2.2.2.2\n", true)
	fresh = state.NewAddresses(reported)
	if len(fresh) != 1 || fresh[0] != "2.2.2.2" {
		t.Fatalf("expected only 2.2.2.2 to be fresh, got %v", fresh)
	}
}

func TestFeedMTRArbitraryChunking(t *testing.T) {
	var chunked MTRState
	for _, p := range splitEvery(sampleMTRRaw, 5) {
		chunked, _ = FeedMTR(chunked, p, false)
	}
	chunked, _ = FeedMTR(chunked, "", true)

	var whole MTRState
	whole, _ = FeedMTR(whole, sampleMTRRaw, true)

	if len(chunked.Result(nil, nil).Hops) != len(whole.Result(nil, nil).Hops) {
		t.Fatalf("chunked parse produced different hop count")
	}
}

func TestFeedMTRToleratesUnrecognizedLines(t *testing.T) {
	var state MTRState
	state, raw := FeedMTR(state, "some diagnostic banner\nh 0 1.1.1.1\np 0 1000\n", true)
	result := state.Result(nil, nil)
	if len(result.Hops) != 1 {
		t.Fatalf("expected the recognized event to still parse, got %d hops", len(result.Hops))
	}
	if raw == "" {
		t.Fatalf("expected rendered output")
	}
}
