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

// MTRHandler drives `mtr --raw` (section 4.3, "MTR handler"). Addresses are
// enriched as they're newly seen and progress is emitted with overwrite=true
// since the whole hop table is rebuilt on every chunk.
func MTRHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, ch channel.Channel, measurementID, testID string, raw json.RawMessage) {
		var opts types.MTROptions
		empty := &types.PathResult{Hops: []types.Hop{}}

		if err := safety.DecodeOptions(raw, &opts); err != nil {
			emitInvalid(ch, deps.Metrics, deps.Logger, testID, measurementID, empty, err)
			return
		}
		if err := safety.ValidateMTR(&opts); err != nil {
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

		args := mtrArgs(deps, opts)
		proc, err := StartTool(ctx, deps.Config.Tools.MTRPath, args...)
		if err != nil {
			empty.RawOutput = err.Error()
			emitResult(ch, deps.Metrics, deps.Logger, testID, measurementID, empty)
			return
		}
		defer proc.Kill()

		var state parse.MTRState
		asnByAddr := make(map[string][]int)
		hostnameByAddr := make(map[string]string)
		reported := make(map[string]bool)

		readChunks(ctx, proc.Stdout, func(chunk string, isFinal bool) {
			var rendered string
			state, rendered = parse.FeedMTR(state, chunk, isFinal)

			if fresh := state.NewAddresses(reported); len(fresh) > 0 {
				for _, addr := range fresh {
					reported[addr] = true
				}
				if deps.ASN != nil {
					for addr, asns := range enrich.LookupHops(ctx, deps.ASN, fresh) {
						asnByAddr[addr] = asns
					}
				}
				if deps.RDNS != nil {
					for addr, hostname := range enrich.LookupHosts(ctx, deps.RDNS, fresh, map[string]string{}) {
						hostnameByAddr[addr] = hostname
					}
				}
			}

			if !isFinal && rendered != "" {
				emitProgress(ch, deps.Metrics, deps.Logger, testID, measurementID, true, state.Result(asnByAddr, hostnameByAddr))
			}
		})

		waitErr := proc.Wait()
		result := state.Result(asnByAddr, hostnameByAddr)

		if waitErr != nil && result.RawOutput == "" {
			result.RawOutput = proc.Stderr()
		}

		emitResult(ch, deps.Metrics, deps.Logger, testID, measurementID, &result)
	}
}

func mtrArgs(deps Deps, opts types.MTROptions) []string {
	interval := "0.5"
	if deps.Config.Tools.MTRSlowInterval {
		// NODE_ENV=development lengthens the inter-packet interval (section 6).
		interval = "1"
	}

	args := []string{
		"--raw", "-4",
		"-c", strconv.Itoa(opts.Packets),
		"-i", interval,
		"--timeout", strconv.Itoa(int(deps.Config.Tools.MTRTimeout.Seconds())),
	}
	switch opts.Protocol {
	case "tcp":
		args = append(args, "--tcp")
	case "udp":
		args = append(args, "--udp")
	}
	if opts.Port != 0 {
		args = append(args, "-P", strconv.Itoa(opts.Port))
	}
	args = append(args, opts.Target)
	return args
}
