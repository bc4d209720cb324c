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

// PingHandler drives the system ping binary (section 4.3, "Ping handler").
func PingHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, ch channel.Channel, measurementID, testID string, raw json.RawMessage) {
		var opts types.PingOptions
		empty := &types.PingResult{Times: []float64{}}

		if err := safety.DecodeOptions(raw, &opts); err != nil {
			emitInvalid(ch, deps.Metrics, deps.Logger, testID, measurementID, empty, err)
			return
		}
		if err := safety.ValidatePing(&opts); err != nil {
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

		args := []string{"-c", strconv.Itoa(opts.Packets), opts.Target}
		proc, err := StartInteractiveTool(ctx, deps.Config.Tools.UnbufferPath, deps.Config.Tools.PingPath, args...)
		if err != nil {
			empty.RawOutput = err.Error()
			emitResult(ch, deps.Metrics, deps.Logger, testID, measurementID, empty)
			return
		}

		defer proc.Kill()

		var state parse.PingState
		readChunks(ctx, proc.Stdout, func(chunk string, isFinal bool) {
			var rendered string
			state, rendered = parse.FeedPing(state, chunk, isFinal)
			if !isFinal && rendered != "" {
				emitProgress(ch, deps.Metrics, deps.Logger, testID, measurementID, true, state.Result())
			}
		})

		waitErr := proc.Wait()
		result := state.Result()

		if result.ResolvedAddress != "" && deps.RDNS != nil {
			result.ResolvedHostname = deps.RDNS.Lookup(ctx, result.ResolvedAddress)
		}

		if waitErr != nil && result.RawOutput == "" {
			result.RawOutput = proc.Stderr()
		}

		emitResult(ch, deps.Metrics, deps.Logger, testID, measurementID, &result)
	}
}
