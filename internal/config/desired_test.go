package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

func setStrings(sets []rrset.RecordSet) []string {
	out := make([]string, len(sets))
	for i, s := range sets {
		out[i] = s.String()
	}
	return out
}

func TestLoadDesired(t *testing.T) {
	t.Setenv("TEST_ORIGIN_IP", "192.0.2.10")

	path := writeFile(t, "desired.yaml", `
zones:
  - provider: edge
    zone: Example.com
    mode: authoritative
    include: ["*.example.com"]
    exclude: ["legacy.example.com"]
    records:
      - name: "@"
        type: mx
        ttl: 3600
        values:
          - "10 mail.example.com."
          - {exchange: mail2.example.com., preference: 20}
      - name: www
        type: A
        values: ["${TEST_ORIGIN_IP}"]
      - name: www
        type: CNAME
        qualifier: us
        geo:
          US: [NY, CA, NY]
        values: [us.cdn.example.net.]
      - name: api.example.com
        type: A
        qualifier: green
        weight: 20
        values: [{address: 10.0.0.2}]
  - provider: local
    zone: internal.test.
`)

	state, err := LoadDesired(path)
	if err != nil {
		t.Fatalf("LoadDesired() error: %v", err)
	}
	if len(state.Zones) != 2 {
		t.Fatalf("len(Zones) = %d, want 2", len(state.Zones))
	}

	z := state.Zones[0]
	if z.Provider != "edge" || z.Zone != "example.com." {
		t.Errorf("zone = %s/%s, want edge/example.com.", z.Provider, z.Zone)
	}
	if z.Mode != provider.ModeAuthoritative {
		t.Errorf("Mode = %q, want authoritative", z.Mode)
	}

	want := []string{
		"example.com./MX ttl=3600 {preference=10 exchange=mail.example.com.} {preference=20 exchange=mail2.example.com.}",
		"www.example.com./A {address=192.0.2.10}",
		"www.example.com./CNAME/us geo{US:[CA,NY]} {cname=us.cdn.example.net.}",
		"api.example.com./A/green weighted{20} {address=10.0.0.2}",
	}
	if diff := cmp.Diff(want, setStrings(z.RecordSets)); diff != "" {
		t.Errorf("record sets mismatch (-want +got):\n%s", diff)
	}

	m, err := z.Matcher()
	if err != nil {
		t.Fatalf("Matcher() error: %v", err)
	}
	if !m.Matches("www.example.com.") || m.Matches("legacy.example.com.") {
		t.Errorf("matcher %s scoped incorrectly", m)
	}

	local := state.Zones[1]
	if local.Zone != "internal.test." || len(local.RecordSets) != 0 {
		t.Errorf("local zone = %+v", local)
	}
	if local.ModeOr(provider.ModeAdditive) != provider.ModeAdditive {
		t.Errorf("ModeOr() should fall back when no mode is set")
	}
	lm, _ := local.Matcher()
	if !lm.Matches("internal.test.") {
		t.Error("default scope should include the apex")
	}
}

func TestLoadDesiredTOML(t *testing.T) {
	path := writeFile(t, "desired.toml", `
[[zones]]
provider = "edge"
zone = "example.com"

[[zones.records]]
name = "www"
type = "A"
ttl = 60
values = ["1.1.1.1", "2.2.2.2"]
`)

	state, err := LoadDesired(path)
	if err != nil {
		t.Fatalf("LoadDesired() error: %v", err)
	}
	want := []string{"www.example.com./A ttl=60 {address=1.1.1.1} {address=2.2.2.2}"}
	if diff := cmp.Diff(want, setStrings(state.Zones[0].RecordSets)); diff != "" {
		t.Errorf("record sets mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDesired_Errors(t *testing.T) {
	path := writeFile(t, "desired.yaml", `
zones:
  - zone: example.com
  - provider: edge
    zone: example.com
    mode: sometimes
  - provider: edge
    zone: other.com
    records:
      - name: www
        type: A
        values: []
      - name: www
        type: CNAME
        qualifier: eu
        geo: {EU: [DE]}
        weight: 5
        values: [eu.example.net.]
      - name: mx
        type: MX
        values: [{preference: 10}]
      - name: dup
        type: A
        values: [1.1.1.1]
      - name: dup
        type: A
        values: [2.2.2.2]
`)

	_, err := LoadDesired(path)
	if err == nil {
		t.Fatal("LoadDesired() should fail")
	}
	var valErr *ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("error should be *ValidationError, got %T", err)
	}

	for _, want := range []string{
		"zones[0]: provider is required",
		"zones[1]: invalid operational mode",
		"zones[2]: records[0]",
		"mutually exclusive",
		`missing field "exchange"`,
		"zones[2]: records[4]: dup.other.com./A declared twice",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got:\n%v", want, err)
		}
	}
}

func TestLoadDesired_DuplicateZone(t *testing.T) {
	path := writeFile(t, "desired.yaml", `
zones:
  - provider: edge
    zone: example.com
  - provider: edge
    zone: EXAMPLE.com.
`)

	_, err := LoadDesired(path)
	if err == nil || !strings.Contains(err.Error(), "declared twice") {
		t.Errorf("LoadDesired() = %v, want duplicate zone error", err)
	}
}

func TestQualifyName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"@", "example.com."},
		{"", "example.com."},
		{"www", "www.example.com."},
		{"WWW.Example.com", "www.example.com."},
		{"a.b", "a.b.example.com."},
		{"cdn.example.net.", "cdn.example.net."},
	}

	for _, tt := range tests {
		if got := QualifyName(tt.name, "example.com."); got != tt.want {
			t.Errorf("QualifyName(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
