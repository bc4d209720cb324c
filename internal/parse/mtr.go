package parse

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ayuhito/globalping-probe/pkg/types"
)

// MTRState is the accumulating state of an `mtr --raw` event stream. Event
// lines are `h <idx> <addr>`, `p <idx> <rtt_us>`, `d <idx> <hostname>`.
type MTRState struct {
	buf     LineBuffer
	hops    map[int]*mtrHop
	maxIdx  int
	seen    map[string]int // resolvedAddress -> first hop index that reported it
	rawTail strings.Builder
}

type mtrHop struct {
	address  string
	hostname string
	timings  []types.HopTiming
}

// FeedMTR advances state with a chunk of `mtr --raw` stdout and returns the
// updated state plus a freshly rebuilt compact per-hop textual table, since
// MTR progress is reported with overwrite=true (section 4.3).
func FeedMTR(state MTRState, chunk string, isFinal bool) (MTRState, string) {
	if state.hops == nil {
		state.hops = make(map[int]*mtrHop)
	}
	if state.seen == nil {
		state.seen = make(map[string]int)
	}
	lines := state.buf.Feed(chunk, isFinal)
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			if state.rawTail.Len() > 0 {
				state.rawTail.WriteByte('\n')
			}
			state.rawTail.WriteString(line)
			continue
		}
		idx, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		if idx+1 > state.maxIdx {
			state.maxIdx = idx + 1
		}
		hop := state.hops[idx]
		if hop == nil {
			hop = &mtrHop{}
			state.hops[idx] = hop
		}
		switch fields[0] {
		case "h":
			hop.address = fields[2]
			if _, ok := state.seen[hop.address]; !ok {
				state.seen[hop.address] = idx
			}
		case "d":
			hop.hostname = strings.Join(fields[2:], " ")
		case "p":
			us, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				continue
			}
			ms := us / 1000
			hop.timings = append(hop.timings, types.HopTiming{RTT: &ms})
		}
	}
	return state, state.render()
}

// NewAddresses returns resolved addresses observed since the last call that
// have not yet been reported, so the handler can kick off ASN enrichment
// exactly once per address (section 4.5).
func (s MTRState) NewAddresses(reported map[string]bool) []string {
	var fresh []string
	for addr := range s.seen {
		if !reported[addr] {
			fresh = append(fresh, addr)
		}
	}
	sort.Strings(fresh)
	return fresh
}

func (s MTRState) render() string {
	var b strings.Builder
	for i := 0; i < s.maxIdx; i++ {
		hop := s.hops[i]
		if hop == nil {
			fmt.Fprintf(&b, "%2d  ???\n", i+1)
			continue
		}
		label := hop.address
		if hop.hostname != "" {
			label = hop.hostname + " (" + hop.address + ")"
		}
		fmt.Fprintf(&b, "%2d  %s  %d pkts\n", i+1, label, len(hop.timings))
	}
	if s.rawTail.Len() > 0 {
		b.WriteString(s.rawTail.String())
	}
	return strings.TrimRight(b.String(), "\n")
}

// Result builds the terminal PathResult, marking duplicate addresses and
// enriching hops with the ASN lookups the caller passes in by address.
func (s MTRState) Result(asnByAddr map[string][]int, hostnameByAddr map[string]string) types.PathResult {
	hops := make([]types.Hop, s.maxIdx)
	seenAddr := make(map[string]int)
	for i := 0; i < s.maxIdx; i++ {
		hops[i] = types.Hop{ASN: []int{}, Timings: []types.HopTiming{}}
		src := s.hops[i]
		if src == nil {
			continue
		}
		hops[i].ResolvedAddress = src.address
		hops[i].ResolvedHostname = src.hostname
		if hops[i].ResolvedHostname == "" {
			hops[i].ResolvedHostname = hostnameByAddr[src.address]
		}
		hops[i].Timings = src.timings
		if src.address != "" {
			if firstIdx, ok := seenAddr[src.address]; ok && firstIdx != i {
				hops[i].Duplicate = true
			} else {
				seenAddr[src.address] = i
				if asn, ok := asnByAddr[src.address]; ok {
					hops[i].ASN = asn
				}
			}
		}
		hops[i].Stats = computeHopStats(hops[i].Timings)
	}

	resolvedAddress, resolvedHostname := lastNonDuplicateHop(hops)
	return types.PathResult{
		ResolvedAddress:  resolvedAddress,
		ResolvedHostname: resolvedHostname,
		Hops:             hops,
		RawOutput:        s.render(),
	}
}
