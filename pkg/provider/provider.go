// Package provider defines the interface that all DNS providers must implement.
//
// Providers store DNS data as flat records: one name, type and value per
// entry, addressed by a provider-assigned ID and listed one page at a time.
package provider

import (
	"context"
	"slices"
	"strings"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// Record is the provider-native storage unit.
type Record struct {
	// ID is assigned by the provider and empty until the record is created.
	ID string

	Name string
	Type string

	// Qualifier is empty for basic records and set for profiled ones.
	Qualifier string

	TTL int

	// Priority carries the MX preference or SRV priority when the provider
	// stores it outside Data.
	Priority *int

	// Data is one value flattened into a provider-specific string.
	Data string
}

// Key returns the logical key the record belongs to.
func (r Record) Key() rrset.Key {
	return rrset.NewKey(r.Name, r.Type, r.Qualifier)
}

// Page is one slice of a listing. An empty Cursor means there are no more pages.
type Page struct {
	Records []Record
	Cursor  string
}

// Capabilities describes optional behavior of a record store.
type Capabilities struct {
	// SortedListing is true when List returns records ordered by name, type,
	// qualifier and data, so equal keys are contiguous.
	SortedListing bool

	// SupportedRecordTypes lists the record types the store accepts.
	// Empty means any type.
	SupportedRecordTypes []string
}

// SupportsType reports whether typ is accepted by the store.
func (c Capabilities) SupportsType(typ string) bool {
	if len(c.SupportedRecordTypes) == 0 {
		return true
	}
	return slices.Contains(c.SupportedRecordTypes, strings.ToUpper(typ))
}

// RecordStore is the flat record API shared by providers and profile backends.
type RecordStore interface {
	// Capabilities reports listing order and accepted record types.
	Capabilities() Capabilities

	// List returns one page of records in zone. An empty cursor requests the
	// first page. ErrNotFound means the zone does not exist.
	List(ctx context.Context, zone, cursor string) (Page, error)

	// Create adds a record. A nil Job means the write completed synchronously.
	Create(ctx context.Context, zone string, record Record) (*Job, error)

	// Update changes the TTL and data of an existing record.
	Update(ctx context.Context, zone, id string, ttl int, data string) (*Job, error)

	// Delete removes a record by ID.
	Delete(ctx context.Context, zone, id string) (*Job, error)
}

// Provider defines the interface for DNS providers.
// Each provider implementation (Cloudflare, webhook, etc.) must satisfy this interface.
type Provider interface {
	// Name returns the provider instance name (e.g., "edge-dns").
	Name() string

	// Type returns the provider type (e.g., "cloudflare", "memory").
	Type() string

	// Ping checks connectivity to the provider.
	Ping(ctx context.Context) error

	RecordStore
}

// NameTypeLister is implemented by stores that can filter a listing by name
// and type on the server side.
type NameTypeLister interface {
	ListByNameAndType(ctx context.Context, zone, name, typ, cursor string) (Page, error)
}

// ProfileBackend stores qualified records together with one kind of routing
// profile per (name, type, qualifier).
type ProfileBackend interface {
	RecordStore

	// ProfileKind returns the profile kind stored by the backend.
	ProfileKind() rrset.Kind

	// Profile returns the stored profile for key, or ErrNotFound.
	Profile(ctx context.Context, zone string, key rrset.Key) (rrset.Profile, error)

	// SetProfile stores p for key, replacing any previous profile.
	SetProfile(ctx context.Context, zone string, key rrset.Key, p rrset.Profile) (*Job, error)

	// DeleteProfile removes the profile stored for key.
	DeleteProfile(ctx context.Context, zone string, key rrset.Key) (*Job, error)
}

// ProfileProvider is implemented by providers that support routing profiles.
type ProfileProvider interface {
	ProfileBackends() []ProfileBackend
}

// RegionLister is implemented by geo backends that declare the regions they serve.
type RegionLister interface {
	SupportedRegions() rrset.Regions
}

// WeightLister is implemented by weighted backends that declare the weights they accept.
type WeightLister interface {
	SupportedWeights() []int
}

// RecordEquals returns true if two records hold the same key, TTL, priority and data.
// Provider-specific IDs are not compared.
func RecordEquals(a, b Record) bool {
	if (a.Priority == nil) != (b.Priority == nil) || (a.Priority != nil && *a.Priority != *b.Priority) {
		return false
	}
	return a.Key() == b.Key() && a.TTL == b.TTL && a.Data == b.Data
}

// CompareRecords orders records by canonical name, type, qualifier, priority,
// data and finally ID. Stores that declare SortedListing list in this order.
func CompareRecords(a, b Record) int {
	ka, kb := a.Key(), b.Key()
	if c := strings.Compare(ka.Name, kb.Name); c != 0 {
		return c
	}
	if c := strings.Compare(ka.Type, kb.Type); c != 0 {
		return c
	}
	if c := strings.Compare(ka.Qualifier, kb.Qualifier); c != 0 {
		return c
	}
	if c := comparePriority(a.Priority, b.Priority); c != 0 {
		return c
	}
	if c := strings.Compare(a.Data, b.Data); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func comparePriority(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}
