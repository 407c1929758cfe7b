package dnsupdate

import (
	"testing"

	"github.com/miekg/dns"
)

func TestNewTSIG(t *testing.T) {
	tests := []struct {
		name      string
		keyName   string
		secret    string
		algorithm string
		wantErr   bool
		wantName  string
		wantAlg   string
	}{
		{
			name:      "fully qualified name",
			keyName:   "zoneweaver.",
			secret:    "c2VjcmV0", // base64 of "secret"
			algorithm: "hmac-sha256",
			wantName:  "zoneweaver.",
			wantAlg:   dns.HmacSHA256,
		},
		{
			name:      "relative mixed-case name",
			keyName:   "ZoneWeaver",
			secret:    "c2VjcmV0",
			algorithm: "hmac-sha512",
			wantName:  "zoneweaver.",
			wantAlg:   dns.HmacSHA512,
		},
		{
			name:     "default algorithm",
			keyName:  "zoneweaver",
			secret:   "c2VjcmV0",
			wantName: "zoneweaver.",
			wantAlg:  dns.HmacSHA256,
		},
		{
			name:      "md5 alias",
			keyName:   "zoneweaver",
			secret:    "c2VjcmV0",
			algorithm: "md5",
			wantName:  "zoneweaver.",
			wantAlg:   dns.HmacMD5,
		},
		{
			name:    "empty name",
			secret:  "c2VjcmV0",
			wantErr: true,
		},
		{
			name:    "invalid base64 secret",
			keyName: "zoneweaver.",
			secret:  "not-valid-base64!!!",
			wantErr: true,
		},
		{
			name:      "unsupported algorithm",
			keyName:   "zoneweaver.",
			secret:    "c2VjcmV0",
			algorithm: "invalid-algo",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tsig, err := NewTSIG(tt.keyName, tt.secret, tt.algorithm)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tsig.Name != tt.wantName {
				t.Errorf("Name = %v, want %v", tsig.Name, tt.wantName)
			}
			if tsig.Algorithm != tt.wantAlg {
				t.Errorf("Algorithm = %v, want %v", tsig.Algorithm, tt.wantAlg)
			}
		})
	}
}

func TestTSIGFromConfig(t *testing.T) {
	tsig, err := TSIGFromConfig(&Config{Server: "ns1.example.com"})
	if err != nil || tsig != nil {
		t.Errorf("TSIGFromConfig(no key) = %v, %v; want nil, nil", tsig, err)
	}

	tsig, err = TSIGFromConfig(&Config{
		Server:      "ns1.example.com",
		TSIGKeyName: "zoneweaver",
		TSIGSecret:  "c2VjcmV0",
	})
	if err != nil {
		t.Fatalf("TSIGFromConfig() error = %v", err)
	}
	if tsig == nil || tsig.Name != "zoneweaver." {
		t.Errorf("TSIGFromConfig() = %+v", tsig)
	}
}

func TestTSIGSign(t *testing.T) {
	var none *TSIG
	msg := new(dns.Msg)
	msg.SetQuestion("example.com.", dns.TypeSOA)
	none.Sign(msg)
	if msg.IsTsig() != nil {
		t.Error("nil TSIG signed the message")
	}
	if none.secrets() != nil {
		t.Error("nil TSIG returned secrets")
	}

	tsig, err := NewTSIG("zoneweaver", "c2VjcmV0", "")
	if err != nil {
		t.Fatalf("NewTSIG() error = %v", err)
	}
	tsig.Sign(msg)
	rr := msg.IsTsig()
	if rr == nil {
		t.Fatal("message not marked for signing")
	}
	if rr.Hdr.Name != "zoneweaver." || rr.Algorithm != dns.HmacSHA256 || rr.Fudge != tsigFudge {
		t.Errorf("TSIG = %+v", rr)
	}
	if got := tsig.secrets()["zoneweaver."]; got != "c2VjcmV0" {
		t.Errorf("secrets() = %v", tsig.secrets())
	}
}
