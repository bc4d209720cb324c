package measure

import (
	"context"
	"encoding/json"
	"net"
	"strconv"

	"github.com/ayuhito/globalping-probe/internal/channel"
	"github.com/ayuhito/globalping-probe/internal/parse"
	"github.com/ayuhito/globalping-probe/internal/safety"
	"github.com/ayuhito/globalping-probe/pkg/types"
)

// DNSHandler drives dig against the requested target (section 4.3, "DNS
// handler").
func DNSHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, ch channel.Channel, measurementID, testID string, raw json.RawMessage) {
		var opts types.DNSOptions
		empty := &types.DNSResult{Answers: []types.DNSAnswer{}}

		if err := safety.DecodeOptions(raw, &opts); err != nil {
			emitInvalid(ch, deps.Metrics, deps.Logger, testID, measurementID, empty, err)
			return
		}
		if err := safety.ValidateDNS(&opts); err != nil {
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

		args := digArgs(deps, opts)
		proc, err := StartTool(ctx, deps.Config.Tools.DigPath, args...)
		if err != nil {
			empty.RawOutput = err.Error()
			emitResult(ch, deps.Metrics, deps.Logger, testID, measurementID, empty)
			return
		}

		defer proc.Kill()

		var state parse.DNSState
		readChunks(ctx, proc.Stdout, func(chunk string, isFinal bool) {
			var rendered string
			state, rendered = parse.FeedDNS(state, chunk, isFinal)
			if !isFinal && rendered != "" {
				emitProgress(ch, deps.Metrics, deps.Logger, testID, measurementID, true, state.Result())
			}
		})

		if err := proc.Wait(); err != nil {
			result := state.Result()
			if result.RawOutput == "" {
				result.RawOutput = proc.Stderr()
			}
			emitResult(ch, deps.Metrics, deps.Logger, testID, measurementID, result)
			return
		}

		emitResult(ch, deps.Metrics, deps.Logger, testID, measurementID, state.Result())
	}
}

// digArgs builds the dig invocation from section 4.3's "DNS handler" rules.
func digArgs(deps Deps, opts types.DNSOptions) []string {
	args := []string{"+tries=2", "+time=3", "-t", opts.Query.Type}

	resolver := opts.Query.Resolver
	if resolver == "" {
		resolver = deps.Config.DNS.DefaultResolver
	}
	if resolver != "" {
		args = append(args, "@"+resolver)
	}
	if opts.Query.Port != 0 {
		args = append(args, "-p", strconv.Itoa(opts.Query.Port))
	}
	if opts.Trace {
		args = append(args, "+trace")
	}
	if opts.Query.Protocol == "tcp" {
		args = append(args, "+tcp")
	}
	args = append(args, opts.Target)
	return args
}
