package safety

import (
	"context"
	"errors"
	"net"
	"testing"
)

func TestIsPrivate(t *testing.T) {
	cases := []struct {
		ip      string
		private bool
	}{
		{"10.0.0.1", true},
		{"172.16.5.4", true},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.1.1", true},
		{"224.0.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"fc00::1", true},
		{"100.64.0.1", true},
		{"192.0.2.1", true},
		{"8.8.8.8", false},
		{"1.1.1.1", false},
		{"2606:4700:4700::1111", false},
	}
	for _, tc := range cases {
		ip := net.ParseIP(tc.ip)
		if ip == nil {
			t.Fatalf("failed to parse %s", tc.ip)
		}
		if got := IsPrivate(ip); got != tc.private {
			t.Errorf("IsPrivate(%s) = %v, want %v", tc.ip, got, tc.private)
		}
	}
}

type fakeResolver struct {
	addrs []net.IP
	err   error
}

func (f fakeResolver) LookupIP(ctx context.Context, network, host string) ([]net.IP, error) {
	return f.addrs, f.err
}

func TestCheckTargetLiteral(t *testing.T) {
	if err := CheckTarget(context.Background(), fakeResolver{}, "10.0.0.1"); !errors.Is(err, ErrPrivateDestination) {
		t.Fatalf("expected private destination error, got %v", err)
	}
	if err := CheckTarget(context.Background(), fakeResolver{}, "8.8.8.8"); err != nil {
		t.Fatalf("expected no error for public IP literal, got %v", err)
	}
}

func TestCheckTargetResolves(t *testing.T) {
	r := fakeResolver{addrs: []net.IP{net.ParseIP("192.168.1.1")}}
	if err := CheckTarget(context.Background(), r, "internal.example.com"); !errors.Is(err, ErrPrivateDestination) {
		t.Fatalf("expected private destination error, got %v", err)
	}

	r = fakeResolver{addrs: []net.IP{net.ParseIP("93.184.216.34")}}
	if err := CheckTarget(context.Background(), r, "example.com"); err != nil {
		t.Fatalf("expected no error for public resolved address, got %v", err)
	}
}

func TestCheckTargetResolveFailure(t *testing.T) {
	r := fakeResolver{err: errors.New("no such host")}
	if err := CheckTarget(context.Background(), r, "does-not-resolve.example"); err == nil {
		t.Fatalf("expected resolution error")
	}
}
