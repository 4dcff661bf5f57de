package urlutil

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases host", "HTTP://Example.COM/Path", "http://example.com/Path"},
		{"strips www", "https://www.example.com/a", "https://example.com/a"},
		{"drops default port", "https://example.com:443/a", "https://example.com/a"},
		{"keeps nonstandard port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"drops fragment", "https://example.com/a#section", "https://example.com/a"},
		{"strips trailing slash", "https://example.com/a/", "https://example.com/a"},
		{"keeps root slash", "https://example.com/", "https://example.com/"},
		{"drops tracking params", "https://example.com/a?utm_source=x&b=2", "https://example.com/a?b=2"},
		{"drops tracking params by prefix", "https://example.com/a?utm_id=x&mc_cid=y&b=2", "https://example.com/a?b=2"},
		{"sorts query keys", "https://example.com/a?z=1&a=2", "https://example.com/a?a=2&z=1"},
		{"spec example", "HTTP://Www.Example.COM:80/a/b/?utm_source=x&q=1#frag", "http://example.com/a/b?q=1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in, nil)
			if err != nil {
				t.Fatalf("Normalize(%q) returned error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeRejectsMissingHost(t *testing.T) {
	if _, err := Normalize("/relative/path", nil); err == nil {
		t.Fatal("expected error for URL with no host and no base")
	}
}

func TestHashIsStableAndDistinct(t *testing.T) {
	a := Hash("https://example.com/a")
	b := Hash("https://example.com/a")
	c := Hash("https://example.com/b")
	if a != b {
		t.Fatal("Hash is not stable for identical input")
	}
	if a == c {
		t.Fatal("Hash collided for distinct input")
	}
}

func TestSameHostIgnoresWWW(t *testing.T) {
	if !SameHost("https://www.example.com/a", "https://example.com/b") {
		t.Fatal("expected www. and bare host to match")
	}
	if SameHost("https://example.com", "https://other.com") {
		t.Fatal("expected distinct hosts to not match")
	}
}
