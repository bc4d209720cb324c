package measure

import (
	"context"
	"encoding/json"
	"net"
	"strconv"

	"github.com/ayuhito/globalping-probe/internal/channel"
	"github.com/ayuhito/globalping-probe/internal/enrich"
	"github.com/ayuhito/globalping-probe/internal/parse"
	"github.com/ayuhito/globalping-probe/internal/safety"
	"github.com/ayuhito/globalping-probe/pkg/types"
)

// TracerouteHandler drives the system traceroute binary (section 4.3,
// "Traceroute handler").
func TracerouteHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, ch channel.Channel, measurementID, testID string, raw json.RawMessage) {
		var opts types.TracerouteOptions
		empty := &types.PathResult{Hops: []types.Hop{}}

		if err := safety.DecodeOptions(raw, &opts); err != nil {
			emitInvalid(ch, deps.Metrics, deps.Logger, testID, measurementID, empty, err)
			return
		}
		if err := safety.ValidateTraceroute(&opts); err != nil {
			emitInvalid(ch, deps.Metrics, deps.Logger, testID, measurementID, empty, err)
			return
		}

		if err := safety.CheckTarget(ctx, net.DefaultResolver, opts.Target); err != nil {
			if err == safety.ErrPrivateDestination {
				emitPrivateDestination(ch, deps.Metrics, deps.Logger, testID, measurementID, empty)
				return
			}
			emitInvalid(ch, deps.Metrics, deps.Logger, testID, measurementID, empty, err)
			return
		}

		args := tracerouteArgs(deps, opts)
		proc, err := StartInteractiveTool(ctx, deps.Config.Tools.UnbufferPath, deps.Config.Tools.TraceroutePath, args...)
		if err != nil {
			empty.RawOutput = err.Error()
			emitResult(ch, deps.Metrics, deps.Logger, testID, measurementID, empty)
			return
		}
		defer proc.Kill()

		var state parse.TracerouteState
		readChunks(ctx, proc.Stdout, func(chunk string, isFinal bool) {
			var rendered string
			state, rendered = parse.FeedTraceroute(state, chunk, isFinal)
			if !isFinal && rendered != "" {
				emitProgress(ch, deps.Metrics, deps.Logger, testID, measurementID, true, state.Result())
			}
		})

		waitErr := proc.Wait()
		result := state.Result()

		enrichHops(ctx, deps, result.Hops)
		if result.ResolvedHostname == "" {
			result.ResolvedHostname = hostnameFor(result.Hops, result.ResolvedAddress)
		}

		if waitErr != nil && result.RawOutput == "" {
			result.RawOutput = proc.Stderr()
		}

		emitResult(ch, deps.Metrics, deps.Logger, testID, measurementID, &result)
	}
}

// hostnameFor returns the last enriched hostname matching address, so the
// top-level resolvedHostname reflects reverse-DNS run after tool completion.
func hostnameFor(hops []types.Hop, address string) string {
	if address == "" {
		return ""
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if hops[i].ResolvedAddress == address {
			return hops[i].ResolvedHostname
		}
	}
	return ""
}

func tracerouteArgs(deps Deps, opts types.TracerouteOptions) []string {
	args := []string{"--timeout", strconv.Itoa(int(deps.Config.Tools.TracerouteTimeout.Seconds()))}
	switch opts.Protocol {
	case "tcp":
		args = append(args, "-T")
	case "udp":
		args = append(args, "-U")
	}
	if opts.Port != 0 {
		args = append(args, "-p", strconv.Itoa(opts.Port))
	}
	args = append(args, opts.Target)
	return args
}

// enrichHops resolves ASN and, where the tool stream didn't already supply
// one, a hostname for every non-duplicate hop address (section 4.5).
func enrichHops(ctx context.Context, deps Deps, hops []types.Hop) {
	var addresses []string
	seen := make(map[string]bool)
	for _, hop := range hops {
		if hop.ResolvedAddress == "" || hop.Duplicate || seen[hop.ResolvedAddress] {
			continue
		}
		seen[hop.ResolvedAddress] = true
		addresses = append(addresses, hop.ResolvedAddress)
	}
	if len(addresses) == 0 {
		return
	}

	var asnByAddr map[string][]int
	if deps.ASN != nil {
		asnByAddr = enrich.LookupHops(ctx, deps.ASN, addresses)
	}

	var hostnameByAddr map[string]string
	if deps.RDNS != nil {
		hostnameByAddr = enrich.LookupHosts(ctx, deps.RDNS, addresses, map[string]string{})
	}

	for i := range hops {
		hop := &hops[i]
		if hop.ResolvedAddress == "" || hop.Duplicate {
			continue
		}
		if asns, ok := asnByAddr[hop.ResolvedAddress]; ok {
			hop.ASN = asns
		}
		if hop.ResolvedHostname == "" {
			if hostname, ok := hostnameByAddr[hop.ResolvedAddress]; ok {
				hop.ResolvedHostname = hostname
			}
		}
	}
}
