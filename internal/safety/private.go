package safety

import (
	"context"
	"errors"
	"net"
)

// ErrPrivateDestination is the literal error surfaced to handlers so they
// can populate rawOutput with the exact wording section 4.2 requires.
var ErrPrivateDestination = errors.New("Private IP ranges are not allowed")

// reservedNetworks holds CIDR ranges IP.IsPrivate and friends don't cover.
var reservedNetworks []*net.IPNet

func init() {
	cidrs := []string{
		"100.64.0.0/10",   // carrier-grade NAT (RFC 6598)
		"192.0.0.0/24",    // IETF protocol assignments
		"192.0.2.0/24",    // TEST-NET-1
		"198.51.100.0/24", // TEST-NET-2
		"203.0.113.0/24",  // TEST-NET-3
		"240.0.0.0/4",     // reserved for future use
	}
	for _, cidr := range cidrs {
		if _, network, err := net.ParseCIDR(cidr); err == nil {
			reservedNetworks = append(reservedNetworks, network)
		}
	}
}

// IsPrivate reports whether ip falls in RFC1918, loopback, link-local,
// unique-local, multicast, or another reserved range (section 4.2, GLOSSARY).
func IsPrivate(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	if ip.IsMulticast() {
		return true
	}
	for _, network := range reservedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// Resolver is the subset of net.Resolver the filter needs; production code
// uses net.DefaultResolver, tests substitute a fake.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// CheckTarget implements the private-destination filter from section 4.2:
// if target is a literal IP it is checked directly, otherwise it is resolved
// and the first address is checked. It returns ErrPrivateDestination when
// the destination must be rejected.
func CheckTarget(ctx context.Context, resolver Resolver, target string) error {
	if ip := net.ParseIP(target); ip != nil {
		if IsPrivate(ip) {
			return ErrPrivateDestination
		}
		return nil
	}

	addrs, err := resolver.LookupIP(ctx, "ip", target)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return errors.New("no addresses resolved for target")
	}
	if IsPrivate(addrs[0]) {
		return ErrPrivateDestination
	}
	return nil
}
