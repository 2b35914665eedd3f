package cidr

import (
	"bytes"
	"strings"
	"testing"

	"auditgate.io/internal/obs"
)

func TestValid(t *testing.T) {
	valid := []string{
		"0.0.0.0",
		"255.255.255.255",
		"10.0.0.1",
		"10.0.0.0/24",
		"0.0.0.0/0",
		"192.168.1.1/32",
	}
	for _, s := range valid {
		if !Valid(s) {
			t.Errorf("Valid(%q) = false, want true", s)
		}
	}

	invalid := []string{
		"",
		"   ",
		"10.0.0",
		"10.0.0.0.1",
		"256.0.0.1",
		"10.0.0.-1",
		"10.0.0.0/33",
		"10.0.0.0/-1",
		"10.0.0.0/",
		"10.0.0.0/abc",
		"a.b.c.d",
		"10.0.0.1/24/8",
		"2001:db8::1",
	}
	for _, s := range invalid {
		if Valid(s) {
			t.Errorf("Valid(%q) = true, want false", s)
		}
	}
}

func TestValidateList(t *testing.T) {
	if err := ValidateList([]string{"10.0.0.0/24", "192.168.1.1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateList([]string{"10.0.0.0/24", "bogus", "300.1.1.1"})
	if err == nil {
		t.Fatal("expected error for invalid entries")
	}
	for _, want := range []string{"bogus", "300.1.1.1"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not name invalid entry %q", err, want)
		}
	}
}

func TestContainsZeroPrefixMatchesEverything(t *testing.T) {
	for _, ip := range []string{"0.0.0.0", "10.1.2.3", "255.255.255.255", "192.168.34.1"} {
		if !Contains(ip, "0.0.0.0/0") {
			t.Errorf("Contains(%q, 0.0.0.0/0) = false, want true", ip)
		}
		if !Contains(ip, "99.99.99.99/0") {
			t.Errorf("Contains(%q, 99.99.99.99/0) = false, want true", ip)
		}
	}
}

func TestContainsFullPrefixIsExactMatch(t *testing.T) {
	if !Contains("10.0.0.5", "10.0.0.5/32") {
		t.Error("expected /32 to match identical address")
	}
	if Contains("10.0.0.6", "10.0.0.5/32") {
		t.Error("expected /32 to reject different address")
	}
}

func TestContainsSingleIPRange(t *testing.T) {
	if !Contains("172.16.0.9", "172.16.0.9") {
		t.Error("expected single-IP range to match identical address")
	}
	if Contains("172.16.0.10", "172.16.0.9") {
		t.Error("expected single-IP range to reject different address")
	}
}

func TestContainsSubnetBoundaries(t *testing.T) {
	cases := []struct {
		ip, cidr string
		want     bool
	}{
		{"10.0.0.0", "10.0.0.0/24", true},
		{"10.0.0.255", "10.0.0.0/24", true},
		{"10.0.1.0", "10.0.0.0/24", false},
		{"10.0.1.5", "10.0.0.0/24", false},
		{"10.0.0.5", "10.0.0.0/24", true},
		{"192.168.17.3", "192.168.16.0/20", true},
		{"192.168.32.1", "192.168.16.0/20", false},
		{"128.0.0.1", "128.0.0.0/1", true},
		{"127.255.255.255", "128.0.0.0/1", false},
	}
	for _, c := range cases {
		if got := Contains(c.ip, c.cidr); got != c.want {
			t.Errorf("Contains(%q, %q) = %v, want %v", c.ip, c.cidr, got, c.want)
		}
	}
}

func TestContainsMalformedInput(t *testing.T) {
	if Contains("not-an-ip", "10.0.0.0/24") {
		t.Error("malformed ip must not match")
	}
	if Contains("10.0.0.1", "garbage/24") {
		t.Error("malformed cidr must not match")
	}
}

func TestAllowed(t *testing.T) {
	ranges := []string{"garbage", "10.0.0.0/24", "172.16.1.5"}

	if !Allowed("10.0.0.5", ranges) {
		t.Error("expected 10.0.0.5 to be allowed by 10.0.0.0/24")
	}
	if !Allowed("172.16.1.5", ranges) {
		t.Error("expected exact single-IP match to be allowed")
	}
	if Allowed("10.0.1.5", ranges) {
		t.Error("expected 10.0.1.5 to be rejected")
	}
	if Allowed("bogus", ranges) {
		t.Error("malformed caller ip must never be allowed")
	}
	if Allowed("10.0.0.5", nil) {
		t.Error("empty range list allows nothing")
	}
	if Allowed("10.0.0.5", []string{"garbage"}) {
		t.Error("list of only malformed ranges allows nothing")
	}
}

func TestAllowedLogsSkippedRanges(t *testing.T) {
	logger := obs.Logger()
	origWriter := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(origWriter)

	if !Allowed("10.0.0.5", []string{"not-a-range", "10.0.0.0/24"}) {
		t.Fatal("valid range must still match")
	}
	line := buf.String()
	if !strings.Contains(line, "malformed ip range") || !strings.Contains(line, "not-a-range") {
		t.Fatalf("expected skipped range to be logged, got %q", line)
	}
}
