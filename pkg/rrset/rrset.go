// Package rrset defines logical DNS record sets: one name and type, an ordered
// list of values, an optional TTL and an optional traffic routing profile.
package rrset

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// DefaultTTL is used when a record set is written without a TTL.
const DefaultTTL = 300

// Field is a single named component of a value, such as "address" or "preference".
type Field struct {
	Key   string
	Value string
}

// Value is one value-record of a record set, e.g. {address: "1.2.3.4"} for A
// or {preference: "10", exchange: "mail.example.com."} for MX.
// Field order is significant.
type Value []Field

// V builds a Value from alternating key/value arguments.
// An odd trailing key is ignored.
func V(kv ...string) Value {
	v := make(Value, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		v = append(v, Field{Key: kv[i], Value: kv[i+1]})
	}
	return v
}

// Get returns the value stored under key.
func (v Value) Get(key string) (string, bool) {
	for _, f := range v {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// Equal reports whether both values hold the same fields in the same order.
func (v Value) Equal(o Value) bool {
	if len(v) != len(o) {
		return false
	}
	for i := range v {
		if v[i] != o[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no memory with v.
func (v Value) Clone() Value {
	if v == nil {
		return nil
	}
	out := make(Value, len(v))
	copy(out, v)
	return out
}

// Map returns the fields as a map. Field order is lost.
func (v Value) Map() map[string]string {
	m := make(map[string]string, len(v))
	for _, f := range v {
		m[f.Key] = f.Value
	}
	return m
}

func (v Value) String() string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = f.Key + "=" + f.Value
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Key identifies a record set inside a zone.
// Name is always canonical (lowercase, fully qualified).
type Key struct {
	Name      string
	Type      string
	Qualifier string
}

// NewKey returns the canonical key for name, type and qualifier.
func NewKey(name, typ, qualifier string) Key {
	return Key{Name: CanonicalName(name), Type: strings.ToUpper(typ), Qualifier: qualifier}
}

// Group returns the key with the qualifier removed.
func (k Key) Group() Key {
	return Key{Name: k.Name, Type: k.Type}
}

func (k Key) String() string {
	if k.Qualifier == "" {
		return k.Name + "/" + k.Type
	}
	return k.Name + "/" + k.Type + "/" + k.Qualifier
}

// CanonicalName lowercases name and makes it fully qualified.
func CanonicalName(name string) string {
	if name == "" {
		return ""
	}
	return dns.CanonicalName(name)
}

// EqualNames compares two DNS names case-insensitively, ignoring a missing trailing dot.
func EqualNames(a, b string) bool {
	return CanonicalName(a) == CanonicalName(b)
}

// RecordSet is the logical unit of DNS data: every value for one name and type
// (and qualifier, when a routing profile is attached).
type RecordSet struct {
	Name      string
	Type      string
	TTL       *int
	Qualifier string
	Profile   Profile
	Records   []Value
}

// Key returns the canonical key of the record set.
func (r RecordSet) Key() Key {
	return NewKey(r.Name, r.Type, r.Qualifier)
}

// TTLOr returns the TTL when set, otherwise def.
func (r RecordSet) TTLOr(def int) int {
	if r.TTL == nil {
		return def
	}
	return *r.TTL
}

// Contains reports whether v is one of the record set's values.
func (r RecordSet) Contains(v Value) bool {
	return indexOf(r.Records, v) >= 0
}

// Clone returns a deep copy of the record set.
func (r RecordSet) Clone() RecordSet {
	out := r
	if r.TTL != nil {
		ttl := *r.TTL
		out.TTL = &ttl
	}
	if r.Profile != nil {
		out.Profile = r.Profile.Clone()
	}
	if r.Records != nil {
		out.Records = make([]Value, len(r.Records))
		for i, v := range r.Records {
			out.Records[i] = v.Clone()
		}
	}
	return out
}

// WithProfile returns a copy of r carrying p instead of its current profile.
func (r RecordSet) WithProfile(p Profile) RecordSet {
	out := r.Clone()
	out.Profile = p
	return out
}

// Equal compares record sets by key, TTL, profile and values (in order).
func (r RecordSet) Equal(o RecordSet) bool {
	if r.Key() != o.Key() {
		return false
	}
	if (r.TTL == nil) != (o.TTL == nil) || (r.TTL != nil && *r.TTL != *o.TTL) {
		return false
	}
	if !ProfilesEqual(r.Profile, o.Profile) {
		return false
	}
	if len(r.Records) != len(o.Records) {
		return false
	}
	for i := range r.Records {
		if !r.Records[i].Equal(o.Records[i]) {
			return false
		}
	}
	return true
}

func (r RecordSet) String() string {
	var b strings.Builder
	b.WriteString(r.Key().String())
	if r.TTL != nil {
		fmt.Fprintf(&b, " ttl=%d", *r.TTL)
	}
	if r.Profile != nil {
		fmt.Fprintf(&b, " %s", r.Profile)
	}
	for _, v := range r.Records {
		b.WriteString(" ")
		b.WriteString(v.String())
	}
	return b.String()
}

// ValidateForWrite checks the invariants a record set must hold before any
// provider call is made on its behalf.
func (r RecordSet) ValidateForWrite() error {
	if err := ValidateQuery(r.Name, r.Type); err != nil {
		return err
	}
	if len(r.Records) == 0 {
		return &ArgumentError{Field: "records", Message: "at least one value is required"}
	}
	if r.TTL != nil && *r.TTL < 0 {
		return &ArgumentError{Field: "ttl", Message: fmt.Sprintf("must be non-negative, got %d", *r.TTL)}
	}
	if r.Profile != nil && r.Qualifier == "" {
		return &ArgumentError{Field: "qualifier", Message: "required when a profile is present"}
	}
	if r.Profile == nil && r.Qualifier != "" {
		return &ArgumentError{Field: "profile", Message: "required when a qualifier is present"}
	}
	if r.Profile != nil {
		if err := r.Profile.validate(); err != nil {
			return err
		}
	}
	codec := Lookup(r.Type)
	for _, v := range r.Records {
		if err := codec.Validate(r.Name, v); err != nil {
			return &ArgumentError{Field: "records", Message: err.Error()}
		}
	}
	return nil
}

// ValidateQuery checks the name and type arguments of a query.
func ValidateQuery(name, typ string) error {
	if name == "" {
		return &ArgumentError{Field: "name", Message: "required"}
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return &ArgumentError{Field: "name", Message: fmt.Sprintf("%q is not a valid domain name", name)}
	}
	if typ == "" {
		return &ArgumentError{Field: "type", Message: "required"}
	}
	return nil
}

// Int returns a pointer to v, for optional TTLs and priorities.
func Int(v int) *int {
	return &v
}

func indexOf(values []Value, v Value) int {
	for i, candidate := range values {
		if candidate.Equal(v) {
			return i
		}
	}
	return -1
}
