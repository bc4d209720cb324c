package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ayuhito/globalping-probe/pkg/types"
)

var (
	tracerouteHopIdxRe = regexp.MustCompile(`^\s*(\d+)\s+(.*)$`)
	tracerouteProbeRe  = regexp.MustCompile(`([\w.\-]+)?\s*\(([\d.:a-fA-F]+)\)\s+([\d.]+)\s*ms`)
	tracerouteTimeoutRe = regexp.MustCompile(`^\*$`)
)

// TracerouteState is the accumulating state of a traceroute output stream.
type TracerouteState struct {
	buf  LineBuffer
	hops []types.Hop
	seen map[string]int // resolvedAddress -> index of first occurrence
	raw  strings.Builder
}

// FeedTraceroute advances state with a chunk of traceroute stdout and
// returns the updated state plus the raw textual rendering.
func FeedTraceroute(state TracerouteState, chunk string, isFinal bool) (TracerouteState, string) {
	if state.seen == nil {
		state.seen = make(map[string]int)
	}
	lines := state.buf.Feed(chunk, isFinal)
	for _, line := range lines {
		if state.raw.Len() > 0 {
			state.raw.WriteByte('\n')
		}
		state.raw.WriteString(line)

		m := tracerouteHopIdxRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 {
			continue
		}
		for len(state.hops) < idx {
			state.hops = append(state.hops, types.Hop{ASN: []int{}, Timings: []types.HopTiming{}})
		}
		hop := &state.hops[idx-1]

		rest := m[2]
		if probe := tracerouteProbeRe.FindStringSubmatch(rest); probe != nil {
			addr := probe[2]
			if firstIdx, ok := state.seen[addr]; ok && firstIdx != idx-1 {
				hop.Duplicate = true
			} else if !ok {
				state.seen[addr] = idx - 1
			}
			hop.ResolvedAddress = addr
			if probe[1] != "" && probe[1] != addr {
				hop.ResolvedHostname = probe[1]
			}
			if rtt, err := strconv.ParseFloat(probe[3], 64); err == nil {
				hop.Timings = append(hop.Timings, types.HopTiming{RTT: &rtt})
			}
		} else if tracerouteTimeoutRe.MatchString(strings.TrimSpace(rest)) {
			hop.Timings = append(hop.Timings, types.HopTiming{RTT: nil})
		}
		hop.Stats = computeHopStats(hop.Timings)
	}
	return state, state.raw.String()
}

func computeHopStats(timings []types.HopTiming) types.HopStats {
	var samples []float64
	for _, t := range timings {
		if t.RTT != nil {
			samples = append(samples, *t.RTT)
		}
	}
	stats := types.HopStats{Count: len(timings)}
	if len(timings) > 0 {
		stats.Loss = 100 * float64(len(timings)-len(samples)) / float64(len(timings))
	}
	if len(samples) == 0 {
		return stats
	}
	min, avg, max := summarize(samples)
	stats.Min, stats.Avg, stats.Max = min, avg, max
	var sumSq float64
	for _, s := range samples {
		d := s - avg
		sumSq += d * d
	}
	if len(samples) > 0 {
		stats.StDev = math.Sqrt(sumSq / float64(len(samples)))
	}
	stats.JAvg = averageJitter(samples)
	return stats
}

// averageJitter is the mean absolute difference between consecutive RTT
// samples, matching globalping's jAvg definition.
func averageJitter(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(samples); i++ {
		d := samples[i] - samples[i-1]
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return sum / float64(len(samples)-1)
}

// Result builds the terminal PathResult from accumulated state.
func (s TracerouteState) Result() types.PathResult {
	hops := s.hops
	if hops == nil {
		hops = []types.Hop{}
	}
	resolvedAddress, resolvedHostname := lastNonDuplicateHop(hops)
	return types.PathResult{
		ResolvedAddress:  resolvedAddress,
		ResolvedHostname: resolvedHostname,
		Hops:             hops,
		RawOutput:        s.raw.String(),
	}
}

// lastNonDuplicateHop returns the last hop's address, skipping duplicates
// and empty placeholders. Per the resolved Open Question, a missing final
// hop yields the empty string rather than a stringified "undefined".
func lastNonDuplicateHop(hops []types.Hop) (string, string) {
	for i := len(hops) - 1; i >= 0; i-- {
		if hops[i].Duplicate {
			continue
		}
		if hops[i].ResolvedAddress != "" {
			return hops[i].ResolvedAddress, hops[i].ResolvedHostname
		}
	}
	return "", ""
}
