package dnsupdate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/dnsupdate/dnstest"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
)

const testSecret = "c2VjcmV0c2VjcmV0c2VjcmV0" // base64 of "secretsecretsecret"

func newTestClient(t *testing.T, srv *dnstest.Server, mutate func(*Config)) *Client {
	t.Helper()
	cfg := &Config{Server: srv.Addr, UseTCP: true, Timeout: 2 * time.Second}
	if mutate != nil {
		mutate(cfg)
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func mustRR(t *testing.T, s string) dns.RR {
	t.Helper()
	rr, err := dns.NewRR(s)
	if err != nil {
		t.Fatalf("parsing %q: %v", s, err)
	}
	return rr
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "missing server", config: &Config{}, wantErr: true},
		{name: "plain", config: &Config{Server: "ns1.example.com"}},
		{name: "tcp", config: &Config{Server: "ns1.example.com", UseTCP: true}},
		{
			name: "TSIG",
			config: &Config{
				Server:      "ns1.example.com",
				TSIGKeyName: "zoneweaver.",
				TSIGSecret:  "c2VjcmV0",
			},
		},
		{
			name: "bad TSIG secret",
			config: &Config{
				Server:      "ns1.example.com",
				TSIGKeyName: "zoneweaver.",
				TSIGSecret:  "not base64!",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(tt.config)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c.Server() != tt.config.GetServer() {
				t.Errorf("Server() = %q, want %q", c.Server(), tt.config.GetServer())
			}
		})
	}
}

func TestClient_SOAAndPing(t *testing.T) {
	srv := dnstest.NewServer(t)
	srv.AddZone("example.com")
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	soa, err := c.SOA(ctx, "Example.COM")
	if err != nil {
		t.Fatalf("SOA() error = %v", err)
	}
	if soa.Hdr.Name != "example.com." || soa.Serial != 1 {
		t.Errorf("SOA() = %v", soa)
	}

	if err := c.Ping(ctx, "example.com"); err != nil {
		t.Errorf("Ping(zone) error = %v", err)
	}
	if err := c.Ping(ctx, ""); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	_, err = c.SOA(ctx, "other.org")
	if !errors.Is(err, ErrZoneNotFound) || !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("SOA(unserved) error = %v, want ErrZoneNotFound", err)
	}
}

func TestClient_UpdateQueryTransfer(t *testing.T) {
	srv := dnstest.NewServer(t)
	srv.AddZone("example.com")
	srv.Add(t, "old.example.com. 300 IN A 192.0.2.1")
	c := newTestClient(t, srv, nil)
	ctx := context.Background()

	old := mustRR(t, "old.example.com. 300 IN A 192.0.2.1")
	err := c.Update(ctx, "example.com", Change{
		Require: []dns.RR{old},
		Remove:  []dns.RR{old},
		Insert: []dns.RR{
			mustRR(t, "www.example.com. 120 IN A 192.0.2.10"),
			mustRR(t, "www.example.com. 120 IN A 192.0.2.11"),
		},
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if srv.Serial("example.com") != 2 {
		t.Errorf("serial = %d, want 2", srv.Serial("example.com"))
	}
	if old.Header().Class != dns.ClassINET || old.Header().Ttl != 300 {
		t.Errorf("Update() modified its argument: %v", old)
	}

	err = c.Update(ctx, "example.com", Change{Require: []dns.RR{old}, Remove: []dns.RR{old}})
	if !errors.Is(err, ErrPrerequisiteFailed) || !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("Update(missing prerequisite) error = %v, want ErrPrerequisiteFailed", err)
	}
	if srv.Updates() != 1 {
		t.Errorf("server applied %d updates, want 1", srv.Updates())
	}

	answers, err := c.Query(ctx, "www.example.com", dns.TypeA)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(answers) != 2 {
		t.Errorf("Query() returned %d records, want 2", len(answers))
	}

	answers, err = c.Query(ctx, "old.example.com", dns.TypeA)
	if err != nil {
		t.Fatalf("Query(removed) error = %v", err)
	}
	if len(answers) != 0 {
		t.Errorf("removed record still answered: %v", answers)
	}

	records, err := c.Transfer(ctx, "example.com")
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	var soas, as int
	for _, rr := range records {
		switch rr.Header().Rrtype {
		case dns.TypeSOA:
			soas++
		case dns.TypeA:
			as++
		}
	}
	if soas != 1 || as != 2 {
		t.Errorf("Transfer() = %d SOA and %d A records, want 1 and 2", soas, as)
	}
}

func TestClient_UpdateOutsideZone(t *testing.T) {
	srv := dnstest.NewServer(t)
	srv.AddZone("example.com")
	c := newTestClient(t, srv, nil)

	err := c.Update(context.Background(), "example.com", Change{
		Insert: []dns.RR{mustRR(t, "www.example.org. 300 IN A 192.0.2.1")},
	})
	if !errors.Is(err, ErrZoneNotFound) {
		t.Errorf("Update() error = %v, want ErrZoneNotFound", err)
	}
	if srv.Updates() != 0 {
		t.Errorf("server applied %d updates, want 0", srv.Updates())
	}

	err = c.Update(context.Background(), "other.org", Change{
		Insert: []dns.RR{mustRR(t, "www.other.org. 300 IN A 192.0.2.1")},
	})
	if !errors.Is(err, ErrZoneNotFound) {
		t.Errorf("Update(unserved) error = %v, want ErrZoneNotFound", err)
	}
}

func TestClient_TSIG(t *testing.T) {
	srv := dnstest.NewServer(t, dnstest.WithTSIG("zoneweaver", testSecret))
	srv.AddZone("example.com")
	ctx := context.Background()
	insert := Change{Insert: []dns.RR{mustRR(t, "www.example.com. 300 IN A 192.0.2.1")}}

	unsigned := newTestClient(t, srv, nil)
	err := unsigned.Update(ctx, "example.com", insert)
	if !errors.Is(err, ErrAuthenticationFailed) || !errors.Is(err, provider.ErrUnauthorized) {
		t.Errorf("unsigned Update() error = %v, want ErrAuthenticationFailed", err)
	}

	signed := newTestClient(t, srv, func(cfg *Config) {
		cfg.TSIGKeyName = "zoneweaver"
		cfg.TSIGSecret = testSecret
	})
	if err := signed.Update(ctx, "example.com", insert); err != nil {
		t.Fatalf("signed Update() error = %v", err)
	}
	records, err := signed.Transfer(ctx, "example.com")
	if err != nil {
		t.Fatalf("signed Transfer() error = %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Transfer() returned %d records, want SOA and A", len(records))
	}

	if _, err := unsigned.Transfer(ctx, "example.com"); !errors.Is(err, ErrAXFRFailed) {
		t.Errorf("unsigned Transfer() error = %v, want ErrAXFRFailed", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	c, err := NewClient(&Config{Server: "127.0.0.1:1", UseTCP: true, Timeout: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	err = c.Ping(context.Background(), "example.com")
	if !errors.Is(err, ErrConnectionFailed) || !errors.Is(err, provider.ErrProviderUnavailable) {
		t.Errorf("Ping() error = %v, want ErrConnectionFailed", err)
	}
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		rcode int
		want  error
	}{
		{dns.RcodeSuccess, nil},
		{dns.RcodeRefused, ErrAuthenticationFailed},
		{dns.RcodeNotAuth, ErrZoneNotFound},
		{dns.RcodeNotZone, ErrZoneNotFound},
		{dns.RcodeNXRrset, provider.ErrNotFound},
		{dns.RcodeServerFailure, provider.ErrProviderUnavailable},
		{dns.RcodeYXDomain, ErrUpdateFailed},
	}

	for _, tt := range tests {
		t.Run(dns.RcodeToString[tt.rcode], func(t *testing.T) {
			resp := new(dns.Msg)
			resp.Rcode = tt.rcode
			err := checkResponse("example.com.", resp)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("checkResponse() = %v, want %v", err, tt.want)
			}
		})
	}
}
