package measure

import (
	"encoding/json"
	"io"
	"log"
	"sync"

	"github.com/ayuhito/globalping-probe/pkg/types"
)

// fakeChannel records every emitted event for assertions, guarded by a
// mutex since handlers may emit from goroutines spawned by the dispatcher.
type fakeChannel struct {
	mu     sync.Mutex
	events []fakeEvent
	failOn string
}

type fakeEvent struct {
	Event   string
	Payload any
}

func (c *fakeChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOn != "" && c.failOn == event {
		return io.ErrClosedPipe
	}
	c.events = append(c.events, fakeEvent{Event: event, Payload: payload})
	return nil
}

func (c *fakeChannel) results() []types.ResultEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.ResultEnvelope
	for _, e := range c.events {
		if env, ok := e.Payload.(types.ResultEnvelope); ok {
			out = append(out, env)
		}
	}
	return out
}

func (c *fakeChannel) progress() []types.ProgressEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []types.ProgressEnvelope
	for _, e := range c.events {
		if env, ok := e.Payload.(types.ProgressEnvelope); ok {
			out = append(out, env)
		}
	}
	return out
}

func rawOutputOf(t any) string {
	switch r := t.(type) {
	case *types.DNSResult:
		return r.RawOutput
	case *types.PingResult:
		return r.RawOutput
	case *types.PathResult:
		return r.RawOutput
	case *types.HTTPResult:
		return r.RawOutput
	}
	return ""
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func rawMessage(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
