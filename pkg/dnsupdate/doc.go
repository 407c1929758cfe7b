// Package dnsupdate talks to authoritative DNS servers with the standard
// protocol: RFC 2136 dynamic updates to change records, AXFR to list a
// zone, and plain queries to look up one name and type.
//
// A Client is bound to one server and serves every zone on it; the zone is
// a parameter of each call. Updates are sent as a single UPDATE message
// that removes and then inserts records, so a replace is atomic on the
// server.
//
// Records cross the package boundary as flat provider records. ToRR and
// FromRR convert between them and miekg/dns resource records using the
// record-type codecs, so MX preference and SRV priority travel in the
// record's Priority and everything else in Data.
//
// # TSIG Authentication
//
// TSIG (RFC 8945) is the usual authentication for dynamic updates and zone
// transfers. Generate a key with BIND's tsig-keygen:
//
//	tsig-keygen -a hmac-sha256 zoneweaver > zoneweaver.key
//
// Configure the key on the server and give its name and secret to the
// client configuration.
package dnsupdate
