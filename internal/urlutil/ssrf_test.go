package urlutil

import (
	"context"
	"net"
	"testing"

	"distill/internal/apierr"
)

type fakeResolver map[string][]net.IPAddr

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	return f[host], nil
}

func TestValidateSSRFRejectsLiteralPrivateIP(t *testing.T) {
	err := ValidateSSRF(context.Background(), "http://127.0.0.1/admin", fakeResolver{})
	if err == nil {
		t.Fatal("expected loopback literal to be rejected")
	}
}

func TestValidateSSRFRejectsDNSRebindToPrivate(t *testing.T) {
	r := fakeResolver{
		"evil.example.com": {{IP: net.ParseIP("169.254.169.254")}},
	}
	err := ValidateSSRF(context.Background(), "http://evil.example.com/", r)
	if err == nil {
		t.Fatal("expected resolved metadata-endpoint address to be rejected")
	}
}

func TestValidateSSRFAllowsPublicAddress(t *testing.T) {
	r := fakeResolver{
		"example.com": {{IP: net.ParseIP("93.184.216.34")}},
	}
	if err := ValidateSSRF(context.Background(), "http://example.com/", r); err != nil {
		t.Fatalf("expected public address to be allowed, got %v", err)
	}
}

func TestValidateSSRFRejectsNonHTTPScheme(t *testing.T) {
	err := ValidateSSRF(context.Background(), "file:///etc/passwd", fakeResolver{})
	if err == nil {
		t.Fatal("expected non-http scheme to be rejected")
	}
}

func TestValidateSSRFErrorCodes(t *testing.T) {
	err := ValidateSSRF(context.Background(), "http://127.0.0.1/", fakeResolver{})
	ae, ok := apierr.As(err)
	if !ok || ae.Code != apierr.CodeSSRFBlocked {
		t.Fatalf("expected SSRF_BLOCKED, got %v", err)
	}

	r := fakeResolver{}
	err = ValidateSSRF(context.Background(), "http://no-such-host.example/", r)
	ae, ok = apierr.As(err)
	if !ok || ae.Code != apierr.CodeDNSResolutionFailed {
		t.Fatalf("expected DNS_RESOLUTION_FAILED, got %v", err)
	}
}
