package bridgesup

import "testing"

func TestVersionRegexParsesBanner(t *testing.T) {
	cases := []struct {
		banner string
		want   string
		ok     bool
	}{
		{"ubridge version 0.9.18\n", "0.9.18", true},
		{"some prefix ubridge version 1.0.0-rc1 trailer", "1.0.0-rc1", true},
		{"not a version banner at all", "", false},
	}
	for _, c := range cases {
		m := versionRe.FindStringSubmatch(c.banner)
		if c.ok && (m == nil || m[1] != c.want) {
			t.Fatalf("banner %q: got %v, want %q", c.banner, m, c.want)
		}
		if !c.ok && m != nil {
			t.Fatalf("banner %q: expected no match, got %v", c.banner, m)
		}
	}
}

func TestPickPortReturnsUsablePort(t *testing.T) {
	port, err := pickPort("127.0.0.1")
	if err != nil {
		t.Fatalf("pickPort: %v", err)
	}
	if port <= 0 || port > 65535 {
		t.Fatalf("pickPort returned out-of-range port %d", port)
	}
}

func TestMinVersionIsPlatformAware(t *testing.T) {
	v := minVersion()
	if v != "0.9.12" && v != "0.9.14" {
		t.Fatalf("minVersion() = %q, want 0.9.12 or 0.9.14", v)
	}
}
