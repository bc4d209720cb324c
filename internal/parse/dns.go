package parse

import (
	"strconv"
	"strings"

	"github.com/ayuhito/globalping-probe/pkg/types"
)

// DNSState is the accumulating state of a dig-style output stream.
type DNSState struct {
	buf       LineBuffer
	inSection bool
	answers   []types.DNSAnswer
	resolver  string
	queryMs   int
	raw       strings.Builder
}

// FeedDNS advances state with a chunk of dig stdout/stderr and returns the
// updated state plus the raw textual rendering accumulated so far.
func FeedDNS(state DNSState, chunk string, isFinal bool) (DNSState, string) {
	lines := state.buf.Feed(chunk, isFinal)
	for _, line := range lines {
		if state.raw.Len() > 0 {
			state.raw.WriteByte('\n')
		}
		state.raw.WriteString(line)

		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasSuffix(trimmed, "SECTION:") && strings.HasPrefix(trimmed, ";;"):
			state.inSection = true
			continue
		case trimmed == "":
			state.inSection = false
			continue
		case strings.HasPrefix(trimmed, ";; SERVER:"):
			state.resolver = extractServer(trimmed)
			continue
		case strings.HasPrefix(trimmed, ";; Query time:"):
			state.queryMs = extractQueryTime(trimmed)
			continue
		case strings.HasPrefix(trimmed, ";"):
			continue
		}

		if state.inSection {
			if answer, ok := parseDNSRecordLine(trimmed); ok {
				state.answers = append(state.answers, answer)
			}
		}
	}
	return state, state.raw.String()
}

// Result builds the terminal DNSResult from accumulated state.
func (s DNSState) Result() types.DNSResult {
	answers := s.answers
	if answers == nil {
		answers = []types.DNSAnswer{}
	}
	return types.DNSResult{
		Answers:   answers,
		Resolver:  s.resolver,
		Timings:   types.DNSTimings{Total: s.queryMs},
		RawOutput: s.raw.String(),
	}
}

func parseDNSRecordLine(line string) (types.DNSAnswer, bool) {
	cols := strings.Fields(line)
	if len(cols) < 5 {
		return types.DNSAnswer{}, false
	}
	ttl, err := strconv.Atoi(cols[1])
	if err != nil {
		return types.DNSAnswer{}, false
	}
	name, class, typ := cols[0], cols[2], cols[3]

	var value any
	switch typ {
	case "SOA", "TXT":
		value = strings.Join(cols[4:], " ")
	case "MX":
		if len(cols) < 6 {
			return types.DNSAnswer{}, false
		}
		priority, err := strconv.Atoi(cols[4])
		if err != nil {
			return types.DNSAnswer{}, false
		}
		value = types.MXValue{Priority: priority, Server: cols[5]}
	default:
		value = cols[len(cols)-1]
	}

	return types.DNSAnswer{
		Name:  name,
		Type:  typ,
		Class: class,
		TTL:   ttl,
		Value: value,
	}, true
}

func extractServer(line string) string {
	rest := strings.TrimPrefix(line, ";; SERVER:")
	rest = strings.TrimSpace(rest)
	if idx := strings.Index(rest, "("); idx >= 0 {
		rest = strings.TrimSpace(rest[:idx])
	}
	if idx := strings.Index(rest, "#"); idx >= 0 {
		rest = rest[:idx]
	}
	return rest
}

func extractQueryTime(line string) int {
	rest := strings.TrimPrefix(line, ";; Query time:")
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSuffix(rest, "msec")
	rest = strings.TrimSpace(rest)
	ms, err := strconv.Atoi(rest)
	if err != nil {
		return 0
	}
	return ms
}
