package parse

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ayuhito/globalping-probe/pkg/types"
)

var (
	pingHeaderRe  = regexp.MustCompile(`^PING\s+\S+\s+\(([\d.:a-fA-F]+)\)`)
	pingRTTRe     = regexp.MustCompile(`time[=<]([\d.]+)\s*ms`)
	pingSummaryRe = regexp.MustCompile(`([\d.]+)/([\d.]+)/([\d.]+)(?:/([\d.]+))?\s*ms`)
	pingLossRe    = regexp.MustCompile(`([\d.]+)%\s*packet loss`)
)

// PingState is the accumulating state of a ping output stream.
type PingState struct {
	buf             LineBuffer
	resolvedAddress string
	times           []float64
	min, avg, max   float64
	loss            float64
	raw             strings.Builder
}

// FeedPing advances state with a chunk of ping stdout and returns the
// updated state plus the raw textual rendering accumulated so far.
func FeedPing(state PingState, chunk string, isFinal bool) (PingState, string) {
	lines := state.buf.Feed(chunk, isFinal)
	for _, line := range lines {
		if state.raw.Len() > 0 {
			state.raw.WriteByte('\n')
		}
		state.raw.WriteString(line)

		if state.resolvedAddress == "" {
			if m := pingHeaderRe.FindStringSubmatch(line); m != nil {
				state.resolvedAddress = m[1]
			}
		}
		if m := pingRTTRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				state.times = append(state.times, v)
			}
		}
		if m := pingLossRe.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				state.loss = v
			}
		}
		if m := pingSummaryRe.FindStringSubmatch(line); m != nil {
			state.min, _ = strconv.ParseFloat(m[1], 64)
			state.avg, _ = strconv.ParseFloat(m[2], 64)
			state.max, _ = strconv.ParseFloat(m[3], 64)
		}
	}
	return state, state.raw.String()
}

// Result builds the terminal PingResult from accumulated state.
func (s PingState) Result() types.PingResult {
	times := s.times
	if times == nil {
		times = []float64{}
	}
	min, avg, max := s.min, s.avg, s.max
	if min == 0 && avg == 0 && max == 0 && len(times) > 0 {
		min, avg, max = summarize(times)
	}
	return types.PingResult{
		ResolvedAddress: s.resolvedAddress,
		Loss:            s.loss,
		Min:             min,
		Avg:             avg,
		Max:             max,
		Times:           times,
		RawOutput:       s.raw.String(),
	}
}

func summarize(times []float64) (min, avg, max float64) {
	min, max = times[0], times[0]
	var sum float64
	for _, t := range times {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
		sum += t
	}
	avg = sum / float64(len(times))
	return
}
