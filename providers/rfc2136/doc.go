// Package rfc2136 implements a provider for authoritative DNS servers that
// accept RFC 2136 dynamic updates, such as BIND, Knot DNS, PowerDNS and
// Windows DNS.
//
// One instance talks to one server and manages every zone it is configured
// for. Records are listed with a zone transfer (AXFR), so the server must
// allow transfers to the client; the SOA, the apex NS set and DNSSEC
// records are left to the server and never listed. Name and type lookups
// use ordinary queries.
//
// Writes are single UPDATE messages. Updates and deletes carry the old
// record as a prerequisite, so a record changed behind the provider's back
// surfaces as provider.ErrNotFound instead of being clobbered. Record IDs
// are derived from the record's name, type, priority and data; the TTL is
// not part of the ID.
//
// # Configuration
//
//	providers:
//	  - name: bind
//	    type: rfc2136
//	    zones: [example.com]
//	    config:
//	      server: ns1.example.com:53
//	      zones: example.com
//	      tsig_key_name: zoneweaver
//	      tsig_secret_file: /run/secrets/tsig-key
//	      tsig_algorithm: hmac-sha256
//	      use_tcp: "true"
//
// Routing profiles are not supported; only basic record sets can be written.
package rfc2136
