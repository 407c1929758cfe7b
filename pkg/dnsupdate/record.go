package dnsupdate

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// maxTXTString is the longest character-string a TXT record can carry.
const maxTXTString = 255

// supportedTypes are the record types ToRR can build.
var supportedTypes = []string{"A", "AAAA", "CAA", "CNAME", "MX", "NS", "PTR", "SRV", "SSHFP", "TLSA", "TXT"}

// SupportedTypes returns the record types that can be written.
func SupportedTypes() []string {
	return append([]string(nil), supportedTypes...)
}

// Managed reports whether rrtype is listed and written as an ordinary
// record. The SOA and DNSSEC records are maintained by the server.
func Managed(rrtype uint16) bool {
	switch rrtype {
	case dns.TypeSOA, dns.TypeRRSIG, dns.TypeNSEC, dns.TypeNSEC3, dns.TypeNSEC3PARAM,
		dns.TypeDNSKEY, dns.TypeCDS, dns.TypeCDNSKEY, dns.TypeZONEMD, dns.TypeTSIG, dns.TypeOPT:
		return false
	}
	return true
}

// ToRR builds the resource record holding a flat record.
func ToRR(r provider.Record) (dns.RR, error) {
	typ := strings.ToUpper(r.Type)
	if _, ok := dns.StringToType[typ]; !ok {
		return nil, fmt.Errorf("unknown record type: %s", r.Type)
	}
	codec := rrset.Lookup(typ)
	v, err := codec.Decode(r.Data, r.Priority)
	if err != nil {
		return nil, err
	}

	rr, err := dns.NewRR(fmt.Sprintf("%s %d IN %s %s", dns.Fqdn(r.Name), r.TTL, typ, presentation(codec, v)))
	if err != nil {
		return nil, fmt.Errorf("invalid %s record %s: %w", typ, r.Name, err)
	}
	if rr == nil {
		return nil, fmt.Errorf("invalid %s record %s: empty data", typ, r.Name)
	}
	return rr, nil
}

// FromRR flattens rr into a record without an ID.
func FromRR(rr dns.RR) (provider.Record, error) {
	hdr := rr.Header()
	typ, ok := dns.TypeToString[hdr.Rrtype]
	if !ok {
		typ = fmt.Sprintf("TYPE%d", hdr.Rrtype)
	}

	var text string
	switch v := rr.(type) {
	case *dns.TXT:
		text = joinTXT(v.Txt)
	case *dns.SPF:
		text = joinTXT(v.Txt)
	case *dns.CAA:
		// Value is escaped when parsed from text but raw when unpacked from
		// the wire; the printed form is escaped either way.
		quoted := ""
		if parts := strings.SplitN(strings.TrimPrefix(rr.String(), hdr.String()), " ", 3); len(parts) == 3 {
			quoted = strings.TrimSuffix(strings.TrimPrefix(parts[2], `"`), `"`)
		}
		text = fmt.Sprintf("%d %s %s", v.Flag, v.Tag, unescape(quoted))
	default:
		text = strings.TrimSpace(strings.TrimPrefix(rr.String(), hdr.String()))
	}

	codec := rrset.Lookup(typ)
	value, err := codec.Parse(text)
	if err != nil {
		return provider.Record{}, err
	}
	data, priority, err := codec.Encode(value)
	if err != nil {
		return provider.Record{}, err
	}

	return provider.Record{
		Name:     rrset.CanonicalName(hdr.Name),
		Type:     typ,
		TTL:      int(hdr.Ttl),
		Priority: priority,
		Data:     data,
	}, nil
}

// presentation renders v as zone-file RDATA. Text fields are quoted, and
// TXT data is split into character-strings.
func presentation(codec *rrset.Codec, v rrset.Value) string {
	switch codec.Type {
	case "TXT", "SPF":
		text, _ := v.Get("txtdata")
		return quoteTXT(text)
	case "CAA":
		flags, _ := v.Get("flags")
		tag, _ := v.Get("tag")
		value, _ := v.Get("value")
		return flags + " " + tag + " " + quote(value)
	}
	return codec.Format(v)
}

func quoteTXT(text string) string {
	if text == "" {
		return `""`
	}
	var parts []string
	for len(text) > maxTXTString {
		parts = append(parts, quote(text[:maxTXTString]))
		text = text[maxTXTString:]
	}
	parts = append(parts, quote(text))
	return strings.Join(parts, " ")
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// joinTXT concatenates character-strings held in miekg/dns escaped form.
func joinTXT(txt []string) string {
	var b strings.Builder
	for _, s := range txt {
		b.WriteString(unescape(s))
	}
	return b.String()
}

// unescape reverses presentation escaping: \DDD is a decimal byte and \X
// stands for X.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		if i+3 < len(s) && isDigit(s[i+1]) && isDigit(s[i+2]) && isDigit(s[i+3]) {
			n := int(s[i+1]-'0')*100 + int(s[i+2]-'0')*10 + int(s[i+3]-'0')
			if n <= 255 {
				b.WriteByte(byte(n))
				i += 3
				continue
			}
		}
		i++
		b.WriteByte(s[i])
	}
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
