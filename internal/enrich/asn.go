// Package enrich provides best-effort ASN and reverse-DNS enrichment for
// resolved measurement hops.
package enrich

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/time/rate"

	"github.com/ayuhito/globalping-probe/internal/safety"
)

// ASNResolver looks up the announcing ASNs for a resolved IP address.
type ASNResolver interface {
	Lookup(ctx context.Context, address string) []int
}

// CymruResolver resolves ASNs via Team Cymru's DNS-based lookup service:
// the IPv4 octets are reversed and queried as a TXT record against the
// configured zone (default origin.asn.cymru.com).
type CymruResolver struct {
	zone    string
	server  string
	client  *dns.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	cache map[string][]int
}

func NewCymruResolver(zone string) *CymruResolver {
	if zone == "" {
		zone = "origin.asn.cymru.com"
	}
	return &CymruResolver{
		zone:    zone,
		server:  "8.8.8.8:53",
		client:  &dns.Client{Timeout: 3 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(20), 20),
		cache:   make(map[string][]int),
	}
}

// Lookup returns the ASNs announcing address, or nil if none could be
// determined. Failures are silent, per the enrichment contract.
func (r *CymruResolver) Lookup(ctx context.Context, address string) []int {
	ip := net.ParseIP(address)
	if ip == nil || safety.IsPrivate(ip) {
		return nil
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}

	r.mu.Lock()
	cached, ok := r.cache[address]
	r.mu.Unlock()
	if ok {
		return cached
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil
	}

	query := fmt.Sprintf("%d.%d.%d.%d.%s.", ip4[3], ip4[2], ip4[1], ip4[0], r.zone)
	msg := new(dns.Msg)
	msg.SetQuestion(query, dns.TypeTXT)

	resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil || resp == nil || resp.Rcode != dns.RcodeSuccess {
		return nil
	}

	var asns []int
	for _, rr := range resp.Answer {
		txt, ok := rr.(*dns.TXT)
		if !ok || len(txt.Txt) == 0 {
			continue
		}
		asns = parseCymruASNs(txt.Txt[0])
		break
	}

	r.mu.Lock()
	r.cache[address] = asns
	r.mu.Unlock()
	return asns
}

// parseCymruASNs parses a Team Cymru TXT response ("ASN | IP/Prefix |
// Country | Registry | Date"). The first segment is a space-delimited
// list of announcing ASNs; unparseable entries are dropped rather than
// failing the whole lookup.
func parseCymruASNs(txt string) []int {
	segments := strings.Split(txt, "|")
	if len(segments) == 0 {
		return nil
	}
	fields := strings.Fields(segments[0])
	asns := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		asns = append(asns, n)
	}
	if len(asns) == 0 {
		return nil
	}
	return asns
}

// LookupHops resolves ASNs for addresses concurrently, one goroutine per
// address, so fan-out never exceeds the number of hops in the path.
// Individual failures are silent and simply omit that address from the
// result.
func LookupHops(ctx context.Context, resolver ASNResolver, addresses []string) map[string][]int {
	result := make(map[string][]int, len(addresses))
	if len(addresses) == 0 {
		return result
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, addr := range addresses {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			asns := resolver.Lookup(ctx, addr)
			if len(asns) == 0 {
				return
			}
			mu.Lock()
			result[addr] = asns
			mu.Unlock()
		}(addr)
	}
	wg.Wait()
	return result
}
