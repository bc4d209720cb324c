package measure

import (
	"testing"

	"github.com/ayuhito/globalping-probe/internal/config"
	"github.com/ayuhito/globalping-probe/pkg/types"
)

func TestNewRegistryRegistersAllKinds(t *testing.T) {
	registry := NewRegistry(Deps{Config: config.Config{}.WithDefaults(), Logger: testLogger()})

	for _, kind := range []types.Kind{types.KindDNS, types.KindPing, types.KindTraceroute, types.KindMTR, types.KindHTTP} {
		if _, ok := registry[kind]; !ok {
			t.Fatalf("expected registry to contain handler for kind %q", kind)
		}
	}
	if len(registry) != 5 {
		t.Fatalf("expected exactly 5 registered handlers, got %d", len(registry))
	}
}

func TestNewRegistryDefaultsNilMetrics(t *testing.T) {
	registry := NewRegistry(Deps{Config: config.Config{}.WithDefaults(), Logger: testLogger()})
	if registry[types.KindDNS] == nil {
		t.Fatalf("expected dns handler to be constructed even with nil metrics")
	}
}
