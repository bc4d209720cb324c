package enrich

import (
	"context"
	"net"
	"strings"
	"sync"
	"time"
)

// RDNSResolver resolves a hostname for an address as a fallback when a
// tool's own stream (e.g. MTR's `d` events) didn't report one.
type RDNSResolver struct {
	timeout time.Duration
}

func NewRDNSResolver(timeout time.Duration) *RDNSResolver {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RDNSResolver{timeout: timeout}
}

// Lookup returns the first PTR hostname for address, or "" if none is
// found within the resolver's short timeout. It never blocks the caller
// past that timeout.
func (r *RDNSResolver) Lookup(ctx context.Context, address string) string {
	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(lookupCtx, address)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// LookupHosts resolves hostnames for addresses concurrently, one goroutine
// per address, skipping any address already present in reported.
func LookupHosts(ctx context.Context, resolver *RDNSResolver, addresses []string, reported map[string]string) map[string]string {
	result := make(map[string]string, len(addresses))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, addr := range addresses {
		if reported[addr] != "" {
			continue
		}
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			name := resolver.Lookup(ctx, addr)
			if name == "" {
				return
			}
			mu.Lock()
			result[addr] = name
			mu.Unlock()
		}(addr)
	}
	wg.Wait()
	return result
}
