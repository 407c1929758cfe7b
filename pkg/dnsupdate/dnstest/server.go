// Package dnstest provides an in-memory authoritative DNS server for tests.
// It answers queries, applies RFC 2136 updates and serves zone transfers
// over TCP on a loopback port.
package dnstest

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// Server is an authoritative server holding zones in memory.
type Server struct {
	// Addr is the host:port the server listens on.
	Addr string

	tsigName   string
	tsigSecret string

	mu      sync.Mutex
	zones   map[string]*zone
	updates int

	srv *dns.Server
}

type zone struct {
	soa     *dns.SOA
	records []dns.RR
}

// Option configures a Server.
type Option func(*Server)

// WithTSIG requires every update and transfer to be signed with the key.
func WithTSIG(name, secret string) Option {
	return func(s *Server) {
		s.tsigName = dns.CanonicalName(name)
		s.tsigSecret = secret
	}
}

// NewServer starts a server and stops it when the test ends.
func NewServer(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{zones: make(map[string]*zone)}
	for _, opt := range opts {
		opt(s)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("dnstest: listen: %v", err)
	}
	s.Addr = ln.Addr().String()

	started := make(chan struct{})
	s.srv = &dns.Server{
		Listener:          ln,
		Handler:           s,
		NotifyStartedFunc: func() { close(started) },
		// The default filter rejects UPDATE messages.
		MsgAcceptFunc: func(dns.Header) dns.MsgAcceptAction { return dns.MsgAccept },
	}
	if s.tsigName != "" {
		s.srv.TsigSecret = map[string]string{s.tsigName: s.tsigSecret}
	}

	go func() {
		_ = s.srv.ActivateAndServe()
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dnstest: server did not start")
	}

	t.Cleanup(func() {
		_ = s.srv.Shutdown()
	})
	return s
}

// AddZone makes the server authoritative for name with a fresh SOA.
func (s *Server) AddZone(name string) {
	name = dns.CanonicalName(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[name] = &zone{soa: &dns.SOA{
		Hdr:     dns.RR_Header{Name: name, Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 3600},
		Ns:      "ns1." + name,
		Mbox:    "hostmaster." + name,
		Serial:  1,
		Refresh: 3600,
		Retry:   600,
		Expire:  86400,
		Minttl:  300,
	}}
}

// Add seeds records given in zone-file form into the zone that holds them.
func (s *Server) Add(t testing.TB, records ...string) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, text := range records {
		rr, err := dns.NewRR(text)
		if err != nil || rr == nil {
			t.Fatalf("dnstest: parsing %q: %v", text, err)
		}
		z := s.zoneFor(rr.Header().Name)
		if z == nil {
			t.Fatalf("dnstest: no zone for %q", text)
		}
		z.insert(rr)
	}
}

// Records returns a copy of the records in zone, without the SOA.
func (s *Server) Records(name string) []dns.RR {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[dns.CanonicalName(name)]
	if !ok {
		return nil
	}
	out := make([]dns.RR, len(z.records))
	for i, rr := range z.records {
		out[i] = dns.Copy(rr)
	}
	return out
}

// Serial returns the SOA serial of zone, or 0 when it is not served.
func (s *Server) Serial(name string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if z, ok := s.zones[dns.CanonicalName(name)]; ok {
		return z.soa.Serial
	}
	return 0
}

// Updates returns how many UPDATE messages were applied.
func (s *Server) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// ServeDNS implements dns.Handler.
func (s *Server) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.Authoritative = true

	switch {
	case len(r.Question) != 1:
		m.Rcode = dns.RcodeFormatError
	case r.Opcode == dns.OpcodeUpdate:
		m.Rcode = s.update(w, r)
	case r.Question[0].Qtype == dns.TypeAXFR:
		s.transfer(w, r, m)
	default:
		s.query(r, m)
	}

	if r.IsTsig() != nil && w.TsigStatus() == nil {
		m.SetTsig(s.tsigName, r.IsTsig().Algorithm, 300, time.Now().Unix())
	}
	_ = w.WriteMsg(m)
}

func (s *Server) authorized(w dns.ResponseWriter, r *dns.Msg) bool {
	if s.tsigName == "" {
		return true
	}
	return r.IsTsig() != nil && w.TsigStatus() == nil
}

func (s *Server) query(r *dns.Msg, m *dns.Msg) {
	q := r.Question[0]
	name := dns.CanonicalName(q.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	z := s.zoneFor(name)
	if z == nil {
		m.Rcode = dns.RcodeRefused
		return
	}
	if q.Qtype == dns.TypeSOA && name == z.soa.Hdr.Name {
		m.Answer = append(m.Answer, dns.Copy(z.soa))
		return
	}

	exists := name == z.soa.Hdr.Name
	for _, rr := range z.records {
		if dns.CanonicalName(rr.Header().Name) != name {
			continue
		}
		exists = true
		if rr.Header().Rrtype == q.Qtype {
			m.Answer = append(m.Answer, dns.Copy(rr))
		}
	}
	if !exists {
		m.Rcode = dns.RcodeNameError
		m.Ns = append(m.Ns, dns.Copy(z.soa))
	}
}

func (s *Server) transfer(w dns.ResponseWriter, r *dns.Msg, m *dns.Msg) {
	if !s.authorized(w, r) {
		m.Rcode = dns.RcodeRefused
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zones[dns.CanonicalName(r.Question[0].Name)]
	if !ok {
		m.Rcode = dns.RcodeNotAuth
		return
	}
	m.Answer = append(m.Answer, dns.Copy(z.soa))
	for _, rr := range z.records {
		m.Answer = append(m.Answer, dns.Copy(rr))
	}
	m.Answer = append(m.Answer, dns.Copy(z.soa))
}

func (s *Server) update(w dns.ResponseWriter, r *dns.Msg) int {
	if !s.authorized(w, r) {
		return dns.RcodeRefused
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	z, ok := s.zones[dns.CanonicalName(r.Question[0].Name)]
	if !ok {
		return dns.RcodeNotAuth
	}
	for _, rr := range append(append([]dns.RR(nil), r.Answer...), r.Ns...) {
		if !dns.IsSubDomain(z.soa.Hdr.Name, dns.CanonicalName(rr.Header().Name)) {
			return dns.RcodeNotZone
		}
	}
	if rcode := z.checkPrerequisites(r.Answer); rcode != dns.RcodeSuccess {
		return rcode
	}

	for _, rr := range r.Ns {
		hdr := rr.Header()
		switch hdr.Class {
		case dns.ClassINET:
			z.insert(rr)
		case dns.ClassNONE:
			c := dns.Copy(rr)
			c.Header().Class = dns.ClassINET
			z.remove(func(have dns.RR) bool { return dns.IsDuplicate(have, c) })
		case dns.ClassANY:
			name := dns.CanonicalName(hdr.Name)
			z.remove(func(have dns.RR) bool {
				return dns.CanonicalName(have.Header().Name) == name &&
					(hdr.Rrtype == dns.TypeANY || have.Header().Rrtype == hdr.Rrtype)
			})
		default:
			return dns.RcodeFormatError
		}
	}

	z.soa.Serial++
	s.updates++
	return dns.RcodeSuccess
}

// zoneFor returns the closest enclosing zone of name.
func (s *Server) zoneFor(name string) *zone {
	name = dns.CanonicalName(name)
	var best *zone
	for origin, z := range s.zones {
		if !dns.IsSubDomain(origin, name) {
			continue
		}
		if best == nil || len(origin) > len(best.soa.Hdr.Name) {
			best = z
		}
	}
	return best
}

// checkPrerequisites evaluates the prerequisite section of an update.
func (z *zone) checkPrerequisites(prereqs []dns.RR) int {
	for _, rr := range prereqs {
		hdr := rr.Header()
		name := dns.CanonicalName(hdr.Name)
		inUse := func(typ uint16) bool {
			for _, have := range z.records {
				if dns.CanonicalName(have.Header().Name) == name && (typ == dns.TypeANY || have.Header().Rrtype == typ) {
					return true
				}
			}
			return false
		}

		switch hdr.Class {
		case dns.ClassINET:
			found := false
			for _, have := range z.records {
				if dns.IsDuplicate(have, rr) {
					found = true
					break
				}
			}
			if !found {
				return dns.RcodeNXRrset
			}
		case dns.ClassANY:
			if !inUse(hdr.Rrtype) {
				if hdr.Rrtype == dns.TypeANY {
					return dns.RcodeNameError
				}
				return dns.RcodeNXRrset
			}
		case dns.ClassNONE:
			if inUse(hdr.Rrtype) {
				if hdr.Rrtype == dns.TypeANY {
					return dns.RcodeYXDomain
				}
				return dns.RcodeYXRrset
			}
		default:
			return dns.RcodeFormatError
		}
	}
	return dns.RcodeSuccess
}

// insert adds rr, refreshing the TTL of an identical record.
func (z *zone) insert(rr dns.RR) {
	rr = dns.Copy(rr)
	rr.Header().Name = strings.ToLower(rr.Header().Name)
	for i, have := range z.records {
		if dns.IsDuplicate(have, rr) {
			z.records[i] = rr
			return
		}
	}
	z.records = append(z.records, rr)
}

func (z *zone) remove(match func(dns.RR) bool) {
	kept := z.records[:0]
	for _, rr := range z.records {
		if !match(rr) {
			kept = append(kept, rr)
		}
	}
	z.records = kept
}

// String lists the zones served, for test failure messages.
func (s *Server) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.zones))
	for name := range s.zones {
		names = append(names, name)
	}
	return fmt.Sprintf("dnstest.Server(%s, zones %v)", s.Addr, names)
}
