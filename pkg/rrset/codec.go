package rrset

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/miekg/dns"
)

// RawField is the single field of record types without a registered codec.
const RawField = "rdata"

// Codec converts between a Value and the flat (data, priority) form stored by
// providers. Fields lists the value's components in declared order; the last
// field absorbs any remaining text when decoding.
type Codec struct {
	Type   string
	Fields []string

	// PriorityField is carried in the flat record's Priority instead of Data.
	PriorityField string

	// Strict codecs are validated by parsing the value as an RR with miekg/dns.
	Strict bool
}

var (
	codecMu sync.RWMutex
	codecs  = map[string]*Codec{}
)

func init() {
	for _, c := range []Codec{
		{Type: "A", Fields: []string{"address"}, Strict: true},
		{Type: "AAAA", Fields: []string{"address"}, Strict: true},
		{Type: "CNAME", Fields: []string{"cname"}, Strict: true},
		{Type: "NS", Fields: []string{"nsdname"}, Strict: true},
		{Type: "PTR", Fields: []string{"ptrdname"}, Strict: true},
		{Type: "TXT", Fields: []string{"txtdata"}},
		{Type: "SPF", Fields: []string{"txtdata"}},
		{Type: "MX", Fields: []string{"preference", "exchange"}, PriorityField: "preference", Strict: true},
		{Type: "SRV", Fields: []string{"priority", "weight", "port", "target"}, PriorityField: "priority", Strict: true},
		{Type: "CAA", Fields: []string{"flags", "tag", "value"}},
		{Type: "SSHFP", Fields: []string{"algorithm", "fptype", "fingerprint"}, Strict: true},
		{Type: "NAPTR", Fields: []string{"order", "preference", "flags", "service", "regexp", "replacement"}},
		{Type: "DS", Fields: []string{"key_tag", "algorithm", "digest_type", "digest"}, Strict: true},
		{Type: "TLSA", Fields: []string{"usage", "selector", "matching_type", "certificate"}, Strict: true},
		{Type: "CERT", Fields: []string{"cert_type", "key_tag", "algorithm", "certificate"}},
		{Type: "SOA", Fields: []string{"mname", "rname", "serial", "refresh", "retry", "expire", "minimum"}, Strict: true},
	} {
		Register(c)
	}
}

// Register installs or replaces the codec for c.Type.
func Register(c Codec) {
	codecMu.Lock()
	defer codecMu.Unlock()
	c.Type = strings.ToUpper(c.Type)
	codecs[c.Type] = &c
}

// Lookup returns the codec for typ. Unknown types get a pass-through codec
// with the single field "rdata".
func Lookup(typ string) *Codec {
	typ = strings.ToUpper(typ)
	codecMu.RLock()
	c, ok := codecs[typ]
	codecMu.RUnlock()
	if ok {
		return c
	}
	return &Codec{Type: typ, Fields: []string{RawField}}
}

// KnownTypes returns the sorted list of registered record types.
func KnownTypes() []string {
	codecMu.RLock()
	defer codecMu.RUnlock()
	types := make([]string, 0, len(codecs))
	for t := range codecs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// dataFields returns the declared fields that are flattened into Data.
func (c *Codec) dataFields() []string {
	if c.PriorityField == "" {
		return c.Fields
	}
	out := make([]string, 0, len(c.Fields)-1)
	for _, f := range c.Fields {
		if f != c.PriorityField {
			out = append(out, f)
		}
	}
	return out
}

// Normalize reorders v into declared field order. Missing or unknown fields
// are an error.
func (c *Codec) Normalize(v Value) (Value, error) {
	m := make(map[string]string, len(v))
	for _, f := range v {
		if !slices.Contains(c.Fields, f.Key) {
			return nil, fmt.Errorf("%s: unknown field %q", c.Type, f.Key)
		}
		if _, dup := m[f.Key]; dup {
			return nil, fmt.Errorf("%s: duplicate field %q", c.Type, f.Key)
		}
		m[f.Key] = f.Value
	}
	return c.FromMap(m)
}

// Canonical returns v normalized and, for strict codecs, re-rendered the way
// miekg/dns prints the parsed record: compressed IPv6 addresses, fully
// qualified names. Values that do not parse are returned normalized.
func (c *Codec) Canonical(v Value) (Value, error) {
	nv, err := c.Normalize(v)
	if err != nil {
		return nil, err
	}
	if !c.Strict {
		return nv, nil
	}
	if _, ok := dns.StringToType[c.Type]; !ok {
		return nv, nil
	}
	rr, err := dns.NewRR(fmt.Sprintf(". %d IN %s %s", DefaultTTL, c.Type, c.Format(nv)))
	if err != nil || rr == nil {
		return nv, nil
	}
	cv, err := c.Parse(strings.TrimPrefix(rr.String(), rr.Header().String()))
	if err != nil {
		return nv, nil
	}
	return cv, nil
}

// FromMap builds a Value in declared field order.
func (c *Codec) FromMap(m map[string]string) (Value, error) {
	out := make(Value, 0, len(c.Fields))
	for _, key := range c.Fields {
		val, ok := m[key]
		if !ok {
			return nil, fmt.Errorf("%s: missing field %q", c.Type, key)
		}
		out = append(out, Field{Key: key, Value: val})
	}
	if len(m) > len(c.Fields) {
		for key := range m {
			if !slices.Contains(c.Fields, key) {
				return nil, fmt.Errorf("%s: unknown field %q", c.Type, key)
			}
		}
	}
	return out, nil
}

// Encode flattens v into a provider data string and an optional priority.
func (c *Codec) Encode(v Value) (string, *int, error) {
	v, err := c.Normalize(v)
	if err != nil {
		return "", nil, err
	}
	var priority *int
	parts := make([]string, 0, len(v))
	for _, f := range v {
		if c.PriorityField != "" && f.Key == c.PriorityField {
			p, err := strconv.Atoi(f.Value)
			if err != nil || p < 0 {
				return "", nil, fmt.Errorf("%s: %s must be a non-negative integer, got %q", c.Type, f.Key, f.Value)
			}
			priority = &p
			continue
		}
		parts = append(parts, f.Value)
	}
	return strings.Join(parts, " "), priority, nil
}

// Decode rebuilds a Value from flat data and priority. When priority is nil
// for a codec with a priority field, the priority is read from the data.
func (c *Codec) Decode(data string, priority *int) (Value, error) {
	if c.PriorityField == "" || priority == nil {
		return c.split(c.Fields, data)
	}
	rest, err := c.split(c.dataFields(), data)
	if err != nil {
		return nil, err
	}
	out := make(Value, 0, len(c.Fields))
	for _, key := range c.Fields {
		if key == c.PriorityField {
			out = append(out, Field{Key: key, Value: strconv.Itoa(*priority)})
			continue
		}
		val, _ := rest.Get(key)
		out = append(out, Field{Key: key, Value: val})
	}
	return out, nil
}

// Parse reads a value in presentation form, e.g. "10 mail.example.com." for MX.
func (c *Codec) Parse(text string) (Value, error) {
	return c.split(c.Fields, strings.TrimSpace(text))
}

// Format renders v in presentation form.
func (c *Codec) Format(v Value) string {
	parts := make([]string, 0, len(v))
	for _, key := range c.Fields {
		if val, ok := v.Get(key); ok {
			parts = append(parts, val)
		}
	}
	return strings.Join(parts, " ")
}

func (c *Codec) split(fields []string, data string) (Value, error) {
	if len(fields) == 1 {
		return Value{{Key: fields[0], Value: data}}, nil
	}
	parts := strings.SplitN(strings.TrimSpace(data), " ", len(fields))
	if len(parts) != len(fields) {
		return nil, fmt.Errorf("%s: expected %d fields in %q, got %d", c.Type, len(fields), data, len(parts))
	}
	out := make(Value, len(fields))
	for i, key := range fields {
		out[i] = Field{Key: key, Value: strings.TrimSpace(parts[i])}
	}
	return out, nil
}

// Validate checks that v is a well-formed value for the codec's type. Strict
// types are parsed as a full resource record.
func (c *Codec) Validate(name string, v Value) error {
	nv, err := c.Normalize(v)
	if err != nil {
		return err
	}
	for _, f := range nv {
		if f.Value == "" {
			return fmt.Errorf("%s: field %q is empty", c.Type, f.Key)
		}
	}
	if !c.Strict {
		return nil
	}
	if _, ok := dns.StringToType[c.Type]; !ok {
		return nil
	}
	rr, err := dns.NewRR(fmt.Sprintf("%s %d IN %s %s", dns.Fqdn(name), DefaultTTL, c.Type, c.Format(nv)))
	if err != nil {
		return fmt.Errorf("%s: %w", c.Type, err)
	}
	if rr == nil {
		return fmt.Errorf("%s: empty record", c.Type)
	}
	return nil
}
