package cloudflare

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/internal/rrapi"
	"gitlab.bluewillows.net/root/zoneweaver/internal/stream"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

const zone = "example.com."

// fakeAPI serves a small in-memory subset of the Cloudflare DNS API. Like the
// real service it strips trailing dots and lists records in no stable order.
type fakeAPI struct {
	mu      sync.Mutex
	zones   map[string]string
	records map[string][]dnsRecord
	nextID  int
	lookups int
	writes  int
	lastReq dnsRecord
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		zones:   map[string]string{"example.com": "zone-1"},
		records: map[string][]dnsRecord{},
	}
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/tokens/verify", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, successResponse(map[string]any{"status": "active"}))
	})
	mux.HandleFunc("GET /zones", f.listZones)
	mux.HandleFunc("GET /zones/{zone}/dns_records", f.listRecords)
	mux.HandleFunc("POST /zones/{zone}/dns_records", f.createRecord)
	mux.HandleFunc("PATCH /zones/{zone}/dns_records/{id}", f.patchRecord)
	mux.HandleFunc("DELETE /zones/{zone}/dns_records/{id}", f.deleteRecord)
	return mux
}

func (f *fakeAPI) listZones(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	name := r.URL.Query().Get("name")
	result := []map[string]any{}
	if id, ok := f.zones[name]; ok {
		result = append(result, map[string]any{"id": id, "name": name, "status": "active"})
	}
	writeJSON(w, http.StatusOK, successResponse(result))
}

func (f *fakeAPI) listRecords(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))

	var matched []dnsRecord
	all := f.records[r.PathValue("zone")]
	// Newest first.
	for i := len(all) - 1; i >= 0; i-- {
		rec := all[i]
		if n := q.Get("name"); n != "" && n != rec.Name {
			continue
		}
		if t := q.Get("type"); t != "" && t != rec.Type {
			continue
		}
		matched = append(matched, rec)
	}

	totalPages := (len(matched) + perPage - 1) / perPage
	start := min((page-1)*perPage, len(matched))
	end := min(start+perPage, len(matched))
	resp := successResponse(matched[start:end])
	resp["result_info"] = map[string]any{
		"page": page, "per_page": perPage, "total_pages": totalPages,
		"count": end - start, "total_count": len(matched),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (f *fakeAPI) createRecord(w http.ResponseWriter, r *http.Request) {
	var rec dnsRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(1004, err.Error()))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastReq = rec
	zoneID := r.PathValue("zone")
	for _, existing := range f.records[zoneID] {
		if existing.Name == rec.Name && existing.Type == rec.Type && existing.Content == strings.TrimSuffix(rec.Content, ".") {
			writeJSON(w, http.StatusBadRequest, errorResponse(81058, "An identical record already exists."))
			return
		}
	}
	f.nextID++
	f.writes++
	rec.ID = "rec-" + strconv.Itoa(f.nextID)
	rec.Content = strings.TrimSuffix(rec.Content, ".")
	if rec.Type == "SRV" {
		rec.Content = strings.ReplaceAll(rec.Content, ". ", " ")
	}
	f.records[zoneID] = append(f.records[zoneID], rec)
	writeJSON(w, http.StatusOK, successResponse(rec))
}

func (f *fakeAPI) patchRecord(w http.ResponseWriter, r *http.Request) {
	var req patchRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse(1004, err.Error()))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	records := f.records[r.PathValue("zone")]
	for i := range records {
		if records[i].ID == r.PathValue("id") {
			f.writes++
			records[i].Content = strings.TrimSuffix(req.Content, ".")
			records[i].TTL = req.TTL
			writeJSON(w, http.StatusOK, successResponse(records[i]))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorResponse(81044, "Record does not exist."))
}

func (f *fakeAPI) deleteRecord(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	zoneID := r.PathValue("zone")
	records := f.records[zoneID]
	for i := range records {
		if records[i].ID == r.PathValue("id") {
			f.writes++
			f.records[zoneID] = slices.Delete(records, i, i+1)
			writeJSON(w, http.StatusOK, successResponse(map[string]any{"id": r.PathValue("id")}))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, errorResponse(81044, "Record does not exist."))
}

func (f *fakeAPI) seed(recs ...dnsRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range recs {
		f.nextID++
		rec.ID = "rec-" + strconv.Itoa(f.nextID)
		f.records["zone-1"] = append(f.records["zone-1"], rec)
	}
}

func (f *fakeAPI) lastRequest() dnsRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func (f *fakeAPI) stats() (lookups, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups, f.writes
}

func newTestProvider(t *testing.T, api *fakeAPI, extra map[string]string) *Provider {
	t.Helper()
	server := httptest.NewServer(api.handler())
	t.Cleanup(server.Close)

	cfg := map[string]string{
		"token":        "test-token",
		"api_endpoint": server.URL,
		"page_size":    "2",
		"retries":      "0",
	}
	for k, v := range extra {
		cfg[k] = v
	}
	p, err := NewFromMap("edge", cfg, WithProviderLogger(testLogger()))
	if err != nil {
		t.Fatalf("NewFromMap() error = %v", err)
	}
	return p
}

func collect(t *testing.T, list func(cursor string) (provider.Page, error)) []provider.Record {
	t.Helper()
	var out []provider.Record
	cursor := ""
	for pages := 0; ; pages++ {
		if pages > 10 {
			t.Fatal("listing did not terminate")
		}
		page, err := list(cursor)
		if err != nil {
			t.Fatalf("list error = %v", err)
		}
		out = append(out, page.Records...)
		if page.Cursor == "" {
			return out
		}
		cursor = page.Cursor
	}
}

func TestProvider_NameTypeCapabilities(t *testing.T) {
	p := newTestProvider(t, newFakeAPI(), nil)

	if p.Name() != "edge" {
		t.Errorf("Name() = %q, want edge", p.Name())
	}
	if p.Type() != TypeName {
		t.Errorf("Type() = %q, want %q", p.Type(), TypeName)
	}
	caps := p.Capabilities()
	if caps.SortedListing {
		t.Error("Cloudflare listings should be reported as unsorted")
	}
	if !caps.SupportsType("srv") || caps.SupportsType("SOA") {
		t.Errorf("unexpected supported types: %v", caps.SupportedRecordTypes)
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestProvider_ListPagesAndQualifies(t *testing.T) {
	api := newFakeAPI()
	api.seed(
		dnsRecord{Type: "A", Name: "www.example.com", Content: "1.1.1.1", TTL: 300},
		dnsRecord{Type: "CNAME", Name: "blog.example.com", Content: "www.example.com", TTL: 1},
		dnsRecord{Type: "MX", Name: "example.com", Content: "mail.example.com", TTL: 300, Priority: rrset.Int(10)},
		dnsRecord{Type: "SRV", Name: "_sip._tcp.example.com", Content: "5 5060 sip.example.com", TTL: 300, Priority: rrset.Int(1)},
		dnsRecord{Type: "SOA", Name: "example.com", Content: "ns.cloudflare.com dns.cloudflare.com 1 2 3 4 5", TTL: 3600},
	)
	p := newTestProvider(t, api, nil)
	ctx := context.Background()

	var pages int
	got := collect(t, func(cursor string) (provider.Page, error) {
		pages++
		return p.List(ctx, zone, cursor)
	})
	if pages != 3 {
		t.Errorf("listed %d pages, want 3", pages)
	}

	slices.SortFunc(got, provider.CompareRecords)
	want := []provider.Record{
		{ID: "rec-3", Name: "example.com.", Type: "MX", TTL: 300, Priority: rrset.Int(10), Data: "mail.example.com."},
		{ID: "rec-4", Name: "_sip._tcp.example.com.", Type: "SRV", TTL: 300, Priority: rrset.Int(1), Data: "5 5060 sip.example.com."},
		{ID: "rec-2", Name: "blog.example.com.", Type: "CNAME", TTL: 1, Data: "www.example.com."},
		{ID: "rec-1", Name: "www.example.com.", Type: "A", TTL: 300, Data: "1.1.1.1"},
	}
	slices.SortFunc(want, provider.CompareRecords)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestProvider_ListByNameAndType(t *testing.T) {
	api := newFakeAPI()
	api.seed(
		dnsRecord{Type: "A", Name: "www.example.com", Content: "1.1.1.1", TTL: 300},
		dnsRecord{Type: "AAAA", Name: "www.example.com", Content: "::1", TTL: 300},
		dnsRecord{Type: "A", Name: "api.example.com", Content: "2.2.2.2", TTL: 300},
	)
	p := newTestProvider(t, api, nil)

	got := collect(t, func(cursor string) (provider.Page, error) {
		return p.ListByNameAndType(context.Background(), zone, "WWW.example.com.", "a", cursor)
	})
	if len(got) != 1 || got[0].Data != "1.1.1.1" {
		t.Errorf("ListByNameAndType() = %+v, want the single www A record", got)
	}
}

func TestProvider_ListErrors(t *testing.T) {
	p := newTestProvider(t, newFakeAPI(), nil)
	ctx := context.Background()

	if _, err := p.List(ctx, zone, "zero"); err == nil {
		t.Error("List() should reject a malformed cursor")
	}
	if _, err := p.List(ctx, zone, "0"); err == nil {
		t.Error("List() should reject page 0")
	}
	if _, err := p.List(ctx, "missing.org.", ""); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("List(unknown zone) error = %v, want ErrNotFound", err)
	}
}

func TestProvider_ZoneIDCached(t *testing.T) {
	api := newFakeAPI()
	p := newTestProvider(t, api, nil)
	ctx := context.Background()

	for range 3 {
		if _, err := p.List(ctx, zone, ""); err != nil {
			t.Fatalf("List() error = %v", err)
		}
	}
	if lookups, _ := api.stats(); lookups != 1 {
		t.Errorf("zone looked up %d times, want 1", lookups)
	}

	configured := newFakeAPI()
	p = newTestProvider(t, configured, map[string]string{"zone_ids": "example.com=zone-1"})
	if _, err := p.List(ctx, zone, ""); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if lookups, _ := configured.stats(); lookups != 0 {
		t.Errorf("configured zone looked up %d times, want 0", lookups)
	}
}

func TestProvider_CreateUpdateDelete(t *testing.T) {
	api := newFakeAPI()
	p := newTestProvider(t, api, map[string]string{"proxied": "true"})
	ctx := context.Background()

	if _, err := p.Create(ctx, zone, provider.Record{Name: "www.example.com.", Type: "a", TTL: 300, Data: "1.1.1.1"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	req := api.lastRequest()
	if req.Name != "www.example.com" || req.Type != "A" {
		t.Errorf("create request = %+v", req)
	}
	if req.Proxied == nil || !*req.Proxied {
		t.Error("A record should be sent proxied")
	}

	if _, err := p.Create(ctx, zone, provider.Record{Name: "example.com.", Type: "MX", TTL: 300, Priority: rrset.Int(10), Data: "mail.example.com."}); err != nil {
		t.Fatalf("Create(MX) error = %v", err)
	}
	req = api.lastRequest()
	if req.Proxied != nil {
		t.Error("MX record should not carry proxied")
	}
	if req.Priority == nil || *req.Priority != 10 {
		t.Errorf("MX priority = %v, want 10", req.Priority)
	}

	_, err := p.Create(ctx, zone, provider.Record{Name: "www.example.com.", Type: "A", TTL: 300, Data: "1.1.1.1"})
	if !errors.Is(err, provider.ErrConflict) {
		t.Errorf("duplicate Create() error = %v, want ErrConflict", err)
	}
	if _, err := p.Create(ctx, zone, provider.Record{Name: "x.example.com.", Type: "SOA", Data: "a b 1 2 3 4 5"}); err == nil {
		t.Error("Create() should reject unsupported types")
	}
	if _, err := p.Create(ctx, zone, provider.Record{Name: "x.example.com.", Type: "A", Qualifier: "us", Data: "1.1.1.1"}); err == nil {
		t.Error("Create() should reject qualified records")
	}

	if _, err := p.Update(ctx, zone, "rec-1", 600, "3.3.3.3"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	got := collect(t, func(cursor string) (provider.Page, error) {
		return p.ListByNameAndType(ctx, zone, "www.example.com.", "A", cursor)
	})
	if len(got) != 1 || got[0].Data != "3.3.3.3" || got[0].TTL != 600 {
		t.Errorf("after Update() = %+v", got)
	}

	if _, err := p.Delete(ctx, zone, "rec-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := p.Delete(ctx, zone, "rec-1"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	if _, err := p.Update(ctx, zone, "rec-1", 300, "1.1.1.1"); !errors.Is(err, provider.ErrNotFound) {
		t.Errorf("Update(deleted) error = %v, want ErrNotFound", err)
	}
}

func TestFromAPI(t *testing.T) {
	tests := []struct {
		name string
		in   dnsRecord
		want string
	}{
		{"address unchanged", dnsRecord{Type: "A", Content: "1.1.1.1"}, "1.1.1.1"},
		{"cname qualified", dnsRecord{Type: "cname", Content: "target.example.net"}, "target.example.net."},
		{"already qualified", dnsRecord{Type: "NS", Content: "ns1.example.net."}, "ns1.example.net."},
		{"srv target", dnsRecord{Type: "SRV", Content: "5 5060 sip.example.com"}, "5 5060 sip.example.com."},
		{"txt unchanged", dnsRecord{Type: "TXT", Content: "v=spf1 -all"}, "v=spf1 -all"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fromAPI(tt.in).Data; got != tt.want {
				t.Errorf("fromAPI().Data = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestRouter_Idempotent drives record-set writes through the engine against
// the unsorted, dot-stripping API.
func TestRouter_Idempotent(t *testing.T) {
	api := newFakeAPI()
	api.seed(dnsRecord{Type: "A", Name: "other.example.com", Content: "9.9.9.9", TTL: 300})
	p := newTestProvider(t, api, nil)
	r := rrapi.ForProvider(p,
		rrapi.WithLogger(testLogger()),
		rrapi.WithReconcilerConfig(reconciler.Config{
			DefaultTTL: 300,
			Job:        reconciler.JobConfig{Attempts: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 2},
		}),
	)
	ctx := context.Background()

	sets := []rrset.RecordSet{
		{Name: "www.example.com.", Type: "A", TTL: rrset.Int(300), Records: []rrset.Value{
			rrset.V("address", "1.1.1.1"), rrset.V("address", "2.2.2.2"), rrset.V("address", "3.3.3.3"),
		}},
		{Name: "blog.example.com.", Type: "CNAME", TTL: rrset.Int(300), Records: []rrset.Value{
			rrset.V("cname", "www.example.com."),
		}},
		{Name: "example.com.", Type: "MX", TTL: rrset.Int(300), Records: []rrset.Value{
			rrset.V("preference", "10", "exchange", "mail.example.com."),
		}},
	}
	for _, set := range sets {
		if _, err := r.Put(ctx, zone, set); err != nil {
			t.Fatalf("Put(%s) error = %v", set.Key(), err)
		}
	}
	_, before := api.stats()

	for _, set := range sets {
		result, err := r.Put(ctx, zone, set)
		if err != nil {
			t.Fatalf("second Put(%s) error = %v", set.Key(), err)
		}
		if len(result.Writes()) != 0 {
			t.Errorf("second Put(%s) planned writes: %v", set.Key(), result.Writes())
		}
	}
	if _, after := api.stats(); after != before {
		t.Errorf("second round issued %d API writes, want 0", after-before)
	}

	all, err := stream.CollectSets(ctx, r.Iterate(zone))
	if err != nil {
		t.Fatalf("Iterate() error = %v", err)
	}
	var keys []string
	for _, set := range all {
		keys = append(keys, set.Key().String())
	}
	want := []string{
		"blog.example.com./CNAME",
		"example.com./MX",
		"other.example.com./A",
		"www.example.com./A",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("record sets mismatch (-want +got):\n%s", diff)
	}
}
