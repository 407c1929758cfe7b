package config

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/zoneweaver/internal/matcher"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// DesiredState is the parsed desired-state file: the record sets each zone
// should hold on each provider.
type DesiredState struct {
	Zones []DesiredZone
}

// DesiredZone is one zone on one provider instance.
type DesiredZone struct {
	Provider string
	Zone     string // canonical, with trailing dot

	// Mode is empty when the file does not set one; the sync default applies.
	Mode provider.OperationalMode

	// Scope of authoritative deletes.
	Include []string
	Exclude []string
	Regex   bool

	RecordSets []rrset.RecordSet
}

// ModeOr returns the zone's mode, or def when none is set.
func (z DesiredZone) ModeOr(def provider.OperationalMode) provider.OperationalMode {
	if z.Mode == "" {
		return def
	}
	return z.Mode
}

// Matcher compiles the zone's scope. With no include patterns every name in
// the zone is in scope.
func (z DesiredZone) Matcher() (*matcher.DomainMatcher, error) {
	includes := z.Include
	if len(includes) == 0 {
		includes = []string{"*"}
		if z.Regex {
			includes = []string{".*"}
		}
	}
	return matcher.NewDomainMatcher(matcher.DomainMatcherConfig{
		Includes: includes,
		Excludes: z.Exclude,
		UseRegex: z.Regex,
	})
}

type desiredFile struct {
	Zones []desiredZoneFile `yaml:"zones" toml:"zones"`
}

type desiredZoneFile struct {
	Provider string           `yaml:"provider" toml:"provider"`
	Zone     string           `yaml:"zone" toml:"zone"`
	Mode     string           `yaml:"mode,omitempty" toml:"mode,omitempty"`
	Include  []string         `yaml:"include,omitempty" toml:"include,omitempty"`
	Exclude  []string         `yaml:"exclude,omitempty" toml:"exclude,omitempty"`
	Regex    bool             `yaml:"regex,omitempty" toml:"regex,omitempty"`
	Records  []desiredSetFile `yaml:"records,omitempty" toml:"records,omitempty"`
}

type desiredSetFile struct {
	Name      string              `yaml:"name" toml:"name"`
	Type      string              `yaml:"type" toml:"type"`
	TTL       *int                `yaml:"ttl,omitempty" toml:"ttl,omitempty"`
	Qualifier string              `yaml:"qualifier,omitempty" toml:"qualifier,omitempty"`
	Geo       map[string][]string `yaml:"geo,omitempty" toml:"geo,omitempty"`
	Weight    *int                `yaml:"weight,omitempty" toml:"weight,omitempty"`

	// Each value is presentation text ("10 mail.example.com.") or a map of
	// codec fields ({preference: 10, exchange: mail.example.com.}).
	Values []any `yaml:"values" toml:"values"`
}

// LoadDesired reads a desired-state file, YAML or TOML by extension.
// Environment variables in ${VAR} format are interpolated in names and
// values. Every problem found is reported in a single *ValidationError.
func LoadDesired(path string) (*DesiredState, error) {
	var file desiredFile
	if err := decodeFile(path, &file); err != nil {
		return nil, &ValidationError{Errors: []string{"desired state: " + err.Error()}}
	}

	var errs []string
	state := &DesiredState{}
	seen := make(map[string]bool)

	for i, zf := range file.Zones {
		zone, zErrs := convertDesiredZone(zf)
		if len(zErrs) > 0 {
			for _, e := range zErrs {
				errs = append(errs, fmt.Sprintf("zones[%d]: %s", i, e))
			}
			continue
		}
		id := zone.Provider + "|" + zone.Zone
		if seen[id] {
			errs = append(errs, fmt.Sprintf("zones[%d]: zone %s declared twice for provider %s", i, zone.Zone, zone.Provider))
			continue
		}
		seen[id] = true
		state.Zones = append(state.Zones, zone)
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return state, nil
}

func convertDesiredZone(zf desiredZoneFile) (DesiredZone, []string) {
	var errs []string

	zone := DesiredZone{
		Provider: InterpolateEnvVars(zf.Provider),
		Include:  zf.Include,
		Exclude:  zf.Exclude,
		Regex:    zf.Regex,
	}
	if zone.Provider == "" {
		errs = append(errs, "provider is required")
	}

	name := InterpolateEnvVars(zf.Zone)
	if _, ok := dns.IsDomainName(name); !ok || name == "" {
		errs = append(errs, fmt.Sprintf("invalid zone %q", zf.Zone))
	} else {
		zone.Zone = rrset.CanonicalName(name)
	}

	if zf.Mode != "" {
		mode, err := provider.ParseOperationalMode(zf.Mode)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			zone.Mode = mode
		}
	}

	if _, err := zone.Matcher(); err != nil {
		errs = append(errs, "scope: "+err.Error())
	}

	keys := make(map[rrset.Key]bool)
	for j, sf := range zf.Records {
		set, err := convertDesiredSet(zone.Zone, sf)
		if err != nil {
			errs = append(errs, fmt.Sprintf("records[%d]: %v", j, err))
			continue
		}
		if keys[set.Key()] {
			errs = append(errs, fmt.Sprintf("records[%d]: %s declared twice", j, set.Key()))
			continue
		}
		keys[set.Key()] = true
		zone.RecordSets = append(zone.RecordSets, set)
	}

	return zone, errs
}

func convertDesiredSet(zone string, sf desiredSetFile) (rrset.RecordSet, error) {
	typ := strings.ToUpper(sf.Type)
	if typ == "" {
		return rrset.RecordSet{}, fmt.Errorf("%s: type is required", sf.Name)
	}
	codec := rrset.Lookup(typ)

	set := rrset.RecordSet{
		Name:      QualifyName(InterpolateEnvVars(sf.Name), zone),
		Type:      typ,
		TTL:       sf.TTL,
		Qualifier: sf.Qualifier,
	}

	switch {
	case sf.Geo != nil && sf.Weight != nil:
		return rrset.RecordSet{}, fmt.Errorf("%s: geo and weight are mutually exclusive", set.Key())
	case sf.Geo != nil:
		set.Profile = &rrset.Geo{Regions: rrset.Regions(sf.Geo).Normalize()}
	case sf.Weight != nil:
		set.Profile = &rrset.Weighted{Weight: *sf.Weight}
	}

	for _, raw := range sf.Values {
		v, err := parseDesiredValue(codec, raw)
		if err != nil {
			return rrset.RecordSet{}, fmt.Errorf("%s: %w", set.Key(), err)
		}
		set.Records = append(set.Records, v)
	}

	if err := set.ValidateForWrite(); err != nil {
		return rrset.RecordSet{}, fmt.Errorf("%s: %w", set.Key(), err)
	}
	return set, nil
}

// parseDesiredValue accepts presentation text or a field map.
func parseDesiredValue(codec *rrset.Codec, raw any) (rrset.Value, error) {
	switch v := raw.(type) {
	case string:
		return codec.Parse(InterpolateEnvVars(v))
	case map[string]any:
		fields := make(map[string]string, len(v))
		for k, val := range v {
			fields[k] = InterpolateEnvVars(fmt.Sprint(val))
		}
		return codec.FromMap(fields)
	default:
		return nil, fmt.Errorf("value %v: want text or a map of fields", raw)
	}
}

// QualifyName resolves a record name relative to zone: "@" is the apex, a
// name ending in a dot is absolute, and anything else not already inside the
// zone gets the zone appended.
func QualifyName(name, zone string) string {
	switch {
	case name == "@" || name == "":
		return zone
	case strings.HasSuffix(name, "."):
		return rrset.CanonicalName(name)
	case dns.IsSubDomain(zone, dns.Fqdn(name)):
		return rrset.CanonicalName(name)
	default:
		return rrset.CanonicalName(name + "." + zone)
	}
}
