package rrapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gitlab.bluewillows.net/root/zoneweaver/internal/reconciler"
	"gitlab.bluewillows.net/root/zoneweaver/internal/stream"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
	"gitlab.bluewillows.net/root/zoneweaver/providers/memory"
)

const zone = "example.com."

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastConfig(dryRun bool) reconciler.Config {
	return reconciler.Config{
		DryRun:     dryRun,
		DefaultTTL: 300,
		Job:        reconciler.JobConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2},
	}
}

func newRouter(t *testing.T, dryRun bool, opts ...memory.Option) (*Router, *memory.Provider) {
	t.Helper()
	opts = append([]memory.Option{memory.WithZones(zone), memory.WithLogger(testLogger()), memory.WithPageSize(2)}, opts...)
	p := memory.New("mem", opts...)
	return ForProvider(p, WithLogger(testLogger()), WithReconcilerConfig(fastConfig(dryRun))), p
}

func aSet(name string, ttl int, ips ...string) rrset.RecordSet {
	set := rrset.RecordSet{Name: name, Type: "A", TTL: rrset.Int(ttl)}
	for _, ip := range ips {
		set.Records = append(set.Records, rrset.V("address", ip))
	}
	return set
}

func geoSet(q string, claim rrset.Regions) rrset.RecordSet {
	return rrset.RecordSet{
		Name:      "www.example.com.",
		Type:      "CNAME",
		Qualifier: q,
		Profile:   &rrset.Geo{Regions: claim},
		Records:   []rrset.Value{rrset.V("cname", strings.ToLower(q)+".cdn.example.net.")},
	}
}

func mustPut(t *testing.T, r *Router, set rrset.RecordSet) *reconciler.Result {
	t.Helper()
	res, err := r.Put(context.Background(), zone, set)
	if err != nil {
		t.Fatalf("Put(%s) error = %v", set.Key(), err)
	}
	return res
}

func collect(t *testing.T, it stream.SetIterator) []string {
	t.Helper()
	sets, err := stream.CollectSets(context.Background(), it)
	if err != nil {
		t.Fatalf("iteration error = %v", err)
	}
	out := make([]string, 0, len(sets))
	for _, s := range sets {
		out = append(out, s.String())
	}
	return out
}

func TestPut_BasicDiffAndIdempotence(t *testing.T) {
	r, p := newRouter(t, false)
	ctx := context.Background()

	mustPut(t, r, aSet("www.example.com", 300, "1.1.1.1", "2.2.2.2"))
	p.ResetOperations()

	mustPut(t, r, aSet("www.example.com", 600, "2.2.2.2", "3.3.3.3"))
	want := []string{
		"delete basic www.example.com./A 1.1.1.1",
		"update basic www.example.com./A ttl=600",
		"create basic www.example.com./A 3.3.3.3",
	}
	if diff := cmp.Diff(want, p.Operations()); diff != "" {
		t.Errorf("operations mismatch (-want +got):\n%s", diff)
	}

	p.ResetOperations()
	res := mustPut(t, r, aSet("www.example.com", 600, "2.2.2.2", "3.3.3.3"))
	if ops := p.Operations(); len(ops) != 0 {
		t.Errorf("second put issued %v", ops)
	}
	if len(res.Writes()) != 0 {
		t.Errorf("second put reported writes %v", res.Writes())
	}

	got, ok, err := r.GetByNameAndType(ctx, zone, "WWW.example.com", "a")
	if err != nil || !ok {
		t.Fatalf("GetByNameAndType() = %v, %v", ok, err)
	}
	if got.TTL == nil || *got.TTL != 600 || len(got.Records) != 2 {
		t.Errorf("GetByNameAndType() = %s", got)
	}
}

func TestPut_GeoPartition(t *testing.T) {
	r, _ := newRouter(t, false)
	ctx := context.Background()

	mustPut(t, r, geoSet("A", rrset.Regions{"US": {"NY", "CA"}}))
	res := mustPut(t, r, geoSet("B", rrset.Regions{"US": {"CA"}}))

	a, ok, err := r.GetByNameTypeAndQualifier(ctx, zone, "www.example.com.", "CNAME", "A")
	if err != nil || !ok {
		t.Fatalf("get A = %v, %v", ok, err)
	}
	b, ok, err := r.GetByNameTypeAndQualifier(ctx, zone, "www.example.com.", "CNAME", "B")
	if err != nil || !ok {
		t.Fatalf("get B = %v, %v", ok, err)
	}

	if diff := cmp.Diff(rrset.Regions{"US": {"NY"}}, rrset.GeoRegions(a.Profile)); diff != "" {
		t.Errorf("A claim mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rrset.Regions{"US": {"CA"}}, rrset.GeoRegions(b.Profile)); diff != "" {
		t.Errorf("B claim mismatch (-want +got):\n%s", diff)
	}
	if len(a.Records) != 1 || a.Records[0].String() != geoSet("A", nil).Records[0].String() {
		t.Errorf("A records changed: %s", a)
	}

	var profileWrites int
	for _, act := range res.Actions {
		if act.Type == reconciler.ActionProfile {
			profileWrites++
		}
	}
	if profileWrites != 2 {
		t.Errorf("profile actions = %d, want 2 (own profile and narrowed sibling)", profileWrites)
	}
}

func TestPut_GeoConcurrentExclusivity(t *testing.T) {
	r, _ := newRouter(t, false)
	ctx := context.Background()

	claims := []rrset.Regions{
		{"US": {"NY", "CA", "TX"}},
		{"US": {"CA", "WA"}, "EU": {"DE"}},
		{"US": {"TX", "NY"}, "EU": {"DE", "FR"}},
		{"EU": {"FR", "GB"}},
		{"US": {"WA"}, "AP": {"JP"}},
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(claims))
	for i, claim := range claims {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Put(ctx, zone, geoSet(fmt.Sprintf("q%d", i), claim)); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Put() error = %v", err)
	}

	sets, err := stream.CollectSets(ctx, r.IterateByNameAndType(zone, "www.example.com.", "CNAME"))
	if err != nil {
		t.Fatalf("iterate error = %v", err)
	}
	if len(sets) != len(claims) {
		t.Fatalf("sets = %d, want %d", len(sets), len(claims))
	}
	owner := make(map[string]string)
	for _, s := range sets {
		for region, territories := range rrset.GeoRegions(s.Profile) {
			for _, territory := range territories {
				pair := region + "/" + territory
				if prev, ok := owner[pair]; ok {
					t.Errorf("%s claimed by %s and %s", pair, prev, s.Qualifier)
				}
				owner[pair] = s.Qualifier
			}
		}
	}
}

func TestPut_Weighted(t *testing.T) {
	r, _ := newRouter(t, false)
	ctx := context.Background()

	set := rrset.RecordSet{
		Name:      "api.example.com.",
		Type:      "A",
		Qualifier: "blue",
		Profile:   &rrset.Weighted{Weight: 80},
		Records:   []rrset.Value{rrset.V("address", "10.0.0.1")},
	}
	mustPut(t, r, set)

	got, ok, err := r.GetByNameTypeAndQualifier(ctx, zone, "api.example.com.", "A", "blue")
	if err != nil || !ok {
		t.Fatalf("get = %v, %v", ok, err)
	}
	if !rrset.ProfilesEqual(got.Profile, set.Profile) {
		t.Errorf("profile = %v, want %v", got.Profile, set.Profile)
	}

	set.Profile = &rrset.Weighted{Weight: 200}
	if _, err := r.Put(ctx, zone, set); !rrset.IsArgumentError(err) {
		t.Errorf("unsupported weight error = %v, want ArgumentError", err)
	}
}

func TestPut_QualifierHeldByOtherProfile(t *testing.T) {
	r, p := newRouter(t, false)
	ctx := context.Background()

	weighted := rrset.RecordSet{
		Name:      "www.example.com.",
		Type:      "CNAME",
		Qualifier: "A",
		Profile:   &rrset.Weighted{Weight: 50},
		Records:   []rrset.Value{rrset.V("cname", "blue.cdn.example.net.")},
	}
	mustPut(t, r, weighted)
	before := len(p.Operations())

	_, err := r.Put(ctx, zone, geoSet("A", rrset.Regions{"US": {"NY"}}))
	if !rrset.IsArgumentError(err) {
		t.Fatalf("Put() error = %v, want ArgumentError", err)
	}
	if ops := p.Operations(); len(ops) != before {
		t.Errorf("rejected put issued %v", ops[before:])
	}

	got, ok, err := r.GetByNameTypeAndQualifier(ctx, zone, "www.example.com.", "CNAME", "A")
	if err != nil || !ok {
		t.Fatalf("get = %v, %v", ok, err)
	}
	if !rrset.ProfilesEqual(got.Profile, weighted.Profile) {
		t.Errorf("profile = %v, want the weighted set", got.Profile)
	}

	mustPut(t, r, geoSet("B", rrset.Regions{"US": {"NY"}}))
}

func TestPut_Rejections(t *testing.T) {
	p := memory.New("mem", memory.WithZones(zone))
	basicOnly := NewRouter("mem", NewBasic("mem", p, WithLogger(testLogger())))
	full, _ := newRouter(t, false)
	ctx := context.Background()

	tests := []struct {
		name    string
		router  *Router
		set     rrset.RecordSet
		wantErr func(error) bool
	}{
		{"no profile APIs", basicOnly, geoSet("A", rrset.Regions{"US": {"NY"}}), rrset.IsUnsupportedProfile},
		{"empty records", full, rrset.RecordSet{Name: "www.example.com.", Type: "A"}, rrset.IsArgumentError},
		{"qualifier without profile", full, rrset.RecordSet{Name: "www.example.com.", Type: "A", Qualifier: "x", Records: []rrset.Value{rrset.V("address", "1.1.1.1")}}, rrset.IsArgumentError},
		{"unknown region", full, geoSet("A", rrset.Regions{"MARS": {"OLYMPUS"}}), rrset.IsArgumentError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.router.Put(ctx, zone, tt.set)
			if !tt.wantErr(err) {
				t.Errorf("Put() error = %v", err)
			}
		})
	}
	if ops := p.Operations(); len(ops) != 0 {
		t.Errorf("rejected puts issued %v", ops)
	}

	var upe *rrset.UnsupportedProfileError
	_, err := basicOnly.Put(ctx, zone, geoSet("A", rrset.Regions{"US": {"NY"}}))
	if !errors.As(err, &upe) || !slices.Equal(upe.Kinds, []rrset.Kind{rrset.KindGeo}) {
		t.Errorf("error = %v, want kinds [geo]", err)
	}
}

func TestDeleteByNameAndType(t *testing.T) {
	r, p := newRouter(t, false)
	ctx := context.Background()

	mustPut(t, r, aSet("www.example.com.", 300, "1.1.1.1", "2.2.2.2", "3.3.3.3"))
	mustPut(t, r, aSet("mail.example.com.", 300, "9.9.9.9"))
	p.ResetOperations()

	res, err := r.DeleteByNameAndType(ctx, zone, "www.example.com.", "A")
	if err != nil {
		t.Fatalf("DeleteByNameAndType() error = %v", err)
	}
	ops := p.Operations()
	if len(ops) != 3 {
		t.Fatalf("operations = %v, want 3 deletes", ops)
	}
	for _, op := range ops {
		if !strings.HasPrefix(op, "delete basic www.example.com./A ") {
			t.Errorf("unexpected operation %q", op)
		}
	}
	if res.DeletedCount() != 3 {
		t.Errorf("DeletedCount() = %d, want 3", res.DeletedCount())
	}

	if _, ok, _ := r.GetByNameAndType(ctx, zone, "mail.example.com.", "A"); !ok {
		t.Error("unrelated record set was removed")
	}
}

func TestDeleteByNameAndType_FansOutToQualifiers(t *testing.T) {
	r, p := newRouter(t, false)
	ctx := context.Background()

	mustPut(t, r, aSet("www.example.com.", 300, "1.1.1.1"))
	geoA := geoSet("A", rrset.Regions{"US": {"NY"}})
	geoA.Type = "A"
	geoA.Records = []rrset.Value{rrset.V("address", "2.2.2.2")}
	mustPut(t, r, geoA)
	geoB := geoA
	geoB.Qualifier = "B"
	geoB.Profile = &rrset.Geo{Regions: rrset.Regions{"EU": {"DE"}}}
	mustPut(t, r, geoB)

	if _, err := r.DeleteByNameAndType(ctx, zone, "www.example.com.", "A"); err != nil {
		t.Fatalf("DeleteByNameAndType() error = %v", err)
	}
	if left := collect(t, r.IterateByName(zone, "www.example.com.")); len(left) != 0 {
		t.Errorf("remaining sets = %v", left)
	}
	if _, err := p.Geo().Profile(ctx, zone, rrset.NewKey("www.example.com.", "A", "A")); !provider.IsNotFound(err) {
		t.Errorf("profile of A still stored, err = %v", err)
	}
}

func TestDeleteByNameTypeAndQualifier(t *testing.T) {
	r, _ := newRouter(t, false)
	ctx := context.Background()

	mustPut(t, r, geoSet("A", rrset.Regions{"US": {"NY"}}))
	mustPut(t, r, geoSet("B", rrset.Regions{"US": {"CA"}}))

	if _, err := r.DeleteByNameTypeAndQualifier(ctx, zone, "www.example.com.", "CNAME", "A"); err != nil {
		t.Fatalf("DeleteByNameTypeAndQualifier() error = %v", err)
	}
	if _, ok, _ := r.GetByNameTypeAndQualifier(ctx, zone, "www.example.com.", "CNAME", "A"); ok {
		t.Error("qualifier A still present")
	}
	if _, ok, _ := r.GetByNameTypeAndQualifier(ctx, zone, "www.example.com.", "CNAME", "B"); !ok {
		t.Error("qualifier B removed")
	}
	if _, err := r.DeleteByNameTypeAndQualifier(ctx, zone, "www.example.com.", "CNAME", ""); !rrset.IsArgumentError(err) {
		t.Errorf("empty qualifier error = %v, want ArgumentError", err)
	}
}

func TestIterate_OrderAndLaziness(t *testing.T) {
	r, _ := newRouter(t, false)

	mustPut(t, r, geoSet("eu", rrset.Regions{"EU": {"DE"}}))
	mustPut(t, r, aSet("b.example.com.", 60, "2.2.2.2"))
	mustPut(t, r, aSet("a.example.com.", 60, "1.1.1.1", "1.1.1.2", "1.1.1.3"))
	mustPut(t, r, rrset.RecordSet{
		Name:      "api.example.com.",
		Type:      "A",
		Qualifier: "green",
		Profile:   &rrset.Weighted{Weight: 20},
		Records:   []rrset.Value{rrset.V("address", "10.0.0.2")},
	})

	got := collect(t, r.Iterate(zone))
	want := []string{
		"a.example.com./A ttl=60 {address=1.1.1.1} {address=1.1.1.2} {address=1.1.1.3}",
		"b.example.com./A ttl=60 {address=2.2.2.2}",
		"www.example.com./CNAME/eu ttl=300 geo{EU:[DE]} {cname=eu.cdn.example.net.}",
		"api.example.com./A/green ttl=300 weighted{20} {address=10.0.0.2}",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Iterate() mismatch (-want +got):\n%s", diff)
	}
}

func TestIterate_MissingZoneIsEmpty(t *testing.T) {
	r, _ := newRouter(t, false)
	if got := collect(t, r.Iterate("missing.example.")); len(got) != 0 {
		t.Errorf("Iterate() on missing zone = %v", got)
	}
	if _, ok, err := r.GetByNameAndType(context.Background(), "missing.example.", "www.missing.example.", "A"); ok || err != nil {
		t.Errorf("GetByNameAndType() = %v, %v, want absent without error", ok, err)
	}
}

func TestIterate_InvalidQuery(t *testing.T) {
	r, _ := newRouter(t, false)
	_, err := stream.CollectSets(context.Background(), r.IterateByNameAndType(zone, "", "A"))
	if !rrset.IsArgumentError(err) {
		t.Errorf("error = %v, want ArgumentError", err)
	}
}

// unsortedStore lists basic records in reverse order, without a name filter.
type unsortedStore struct {
	*memory.Provider
}

func (u unsortedStore) Capabilities() provider.Capabilities {
	return provider.Capabilities{SortedListing: false}
}

func (u unsortedStore) List(ctx context.Context, zone, cursor string) (provider.Page, error) {
	page, err := u.Provider.List(ctx, zone, cursor)
	slices.Reverse(page.Records)
	return page, err
}

func TestBasic_UnsortedListing(t *testing.T) {
	p := memory.New("mem", memory.WithZones(zone), memory.WithPageSize(2))
	store := unsortedStore{p}
	basic := NewBasic("mem", store, WithLogger(testLogger()))
	ctx := context.Background()

	for _, set := range []rrset.RecordSet{
		aSet("a.example.com.", 60, "1.1.1.1", "1.1.1.2"),
		aSet("b.example.com.", 60, "2.2.2.2"),
		aSet("a.example.com.", 60, "1.1.1.1", "1.1.1.2", "1.1.1.3"),
	} {
		if _, err := basic.Put(ctx, zone, set); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	sets, err := stream.CollectSets(ctx, basic.Iterate(zone))
	if err != nil {
		t.Fatalf("Iterate() error = %v", err)
	}
	if len(sets) != 2 || len(sets[0].Records) != 3 || len(sets[1].Records) != 1 {
		var got []string
		for _, s := range sets {
			got = append(got, s.String())
		}
		t.Errorf("sets = %v, want a (3 values) then b", got)
	}
}

func TestPut_DryRun(t *testing.T) {
	r, p := newRouter(t, false)
	mustPut(t, r, geoSet("A", rrset.Regions{"US": {"NY", "CA"}}))
	p.ResetOperations()

	dry := ForProvider(p, WithLogger(testLogger()), WithReconcilerConfig(fastConfig(true)))
	res, err := dry.Put(context.Background(), zone, geoSet("B", rrset.Regions{"US": {"CA"}}))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if ops := p.Operations(); len(ops) != 0 {
		t.Errorf("dry run issued %v", ops)
	}
	if !res.DryRun || len(res.Writes()) != 3 {
		t.Errorf("dry run actions = %v, want create, own profile and sibling rewrite", res.Actions)
	}
}

func TestPut_AsyncJobs(t *testing.T) {
	r, p := newRouter(t, false, memory.WithAsyncJobs(1))

	mustPut(t, r, geoSet("A", rrset.Regions{"US": {"NY"}}))

	p.FailNextJob("backend rejected change")
	_, err := r.Put(context.Background(), zone, aSet("www.example.com.", 300, "1.1.1.1"))
	if !errors.Is(err, provider.ErrJobFailed) {
		t.Fatalf("Put() error = %v, want ErrJobFailed", err)
	}
	var jf *provider.JobFailure
	if !errors.As(err, &jf) || jf.JobID == "" || jf.Message != "backend rejected change" {
		t.Errorf("JobFailure = %+v", jf)
	}
}

func TestSupportedCapabilities(t *testing.T) {
	r, _ := newRouter(t, false, memory.WithRegions(rrset.Regions{"US": {"NY"}}), memory.WithWeights(1, 2))

	if diff := cmp.Diff(rrset.Regions{"US": {"NY"}}, r.SupportedRegions()); diff != "" {
		t.Errorf("SupportedRegions() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2}, r.SupportedWeights()); diff != "" {
		t.Errorf("SupportedWeights() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]rrset.Kind{rrset.KindGeo, rrset.KindWeighted}, r.Kinds()); diff != "" {
		t.Errorf("Kinds() mismatch (-want +got):\n%s", diff)
	}
}
