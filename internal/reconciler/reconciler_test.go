package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gitlab.bluewillows.net/root/zoneweaver/internal/stream"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeStore is an in-memory RecordStore that logs every write.
type fakeStore struct {
	mu      sync.Mutex
	records []provider.Record
	nextID  int
	calls   []string

	// failOn makes the first write of that kind fail.
	failOn ActionType

	// wrapFailures returns failures already wrapped as a ProviderError, the
	// way provider adapters do.
	wrapFailures bool

	// async makes writes return pending jobs whose polls walk through polls.
	async bool
	polls []provider.JobState
	pos   int
}

func (f *fakeStore) Capabilities() provider.Capabilities { return provider.Capabilities{} }

func (f *fakeStore) List(context.Context, string, string) (provider.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return provider.Page{Records: append([]provider.Record(nil), f.records...)}, nil
}

func (f *fakeStore) job(kind ActionType) (*provider.Job, error) {
	if f.failOn == kind {
		f.failOn = ""
		if f.wrapFailures {
			return nil, provider.WrapRecordError("test", string(kind), "r1", provider.ErrConflict)
		}
		return nil, provider.ErrConflict
	}
	if !f.async {
		return nil, nil
	}
	return &provider.Job{ID: fmt.Sprintf("job-%d", len(f.calls)), State: provider.JobPending}, nil
}

func (f *fakeStore) Create(_ context.Context, _ string, rec provider.Record) (*provider.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("create %s %d", rec.Data, rec.TTL))
	if job, err := f.job(ActionCreate); err != nil || job != nil {
		return job, err
	}
	f.nextID++
	rec.ID = fmt.Sprintf("new-%d", f.nextID)
	f.records = append(f.records, rec)
	return nil, nil
}

func (f *fakeStore) Update(_ context.Context, _ string, id string, ttl int, data string) (*provider.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("update %s %d", id, ttl))
	if job, err := f.job(ActionUpdate); err != nil || job != nil {
		return job, err
	}
	for i := range f.records {
		if f.records[i].ID == id {
			f.records[i].TTL = ttl
			f.records[i].Data = data
		}
	}
	return nil, nil
}

func (f *fakeStore) Delete(_ context.Context, _ string, id string) (*provider.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete "+id)
	if job, err := f.job(ActionDelete); err != nil || job != nil {
		return job, err
	}
	for i := range f.records {
		if f.records[i].ID == id {
			f.records = append(f.records[:i], f.records[i+1:]...)
			break
		}
	}
	return nil, nil
}

func (f *fakeStore) JobStatus(_ context.Context, id string) (provider.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := provider.JobComplete
	if f.pos < len(f.polls) {
		state = f.polls[f.pos]
		f.pos++
	}
	return provider.Job{ID: id, State: state}, nil
}

func fastJobs() JobConfig {
	return JobConfig{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func newTestReconciler(store *fakeStore, dryRun bool) *Reconciler {
	return New("test", store,
		WithLogger(testLogger()),
		WithConfig(Config{DryRun: dryRun, DefaultTTL: 300, Job: fastJobs()}),
	)
}

func aRecords() []provider.Record {
	return []provider.Record{
		{ID: "r1", Name: "www.example.com.", Type: "A", TTL: 300, Data: "1.1.1.1"},
		{ID: "r2", Name: "www.example.com.", Type: "A", TTL: 300, Data: "2.2.2.2"},
	}
}

func addr(ip string) rrset.Value {
	return rrset.V("address", ip)
}

func TestReconcile_MinimalWrites(t *testing.T) {
	store := &fakeStore{records: aRecords()}
	r := newTestReconciler(store, false)

	desired := rrset.RecordSet{
		Name:    "www.example.com",
		Type:    "A",
		TTL:     rrset.Int(600),
		Records: []rrset.Value{addr("2.2.2.2"), addr("3.3.3.3")},
	}
	result, err := r.Reconcile(context.Background(), "example.com", desired, stream.FromSlice(aRecords()))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	want := []string{"delete r1", "update r2 600", "create 3.3.3.3 600"}
	if diff := cmp.Diff(want, store.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if result.CreatedCount() != 1 || result.UpdatedCount() != 1 || result.DeletedCount() != 1 {
		t.Errorf("unexpected counts: %s", result.Summary())
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	store := &fakeStore{records: aRecords()}
	r := newTestReconciler(store, false)
	desired := rrset.RecordSet{
		Name:    "www.example.com.",
		Type:    "A",
		TTL:     rrset.Int(600),
		Records: []rrset.Value{addr("2.2.2.2"), addr("3.3.3.3")},
	}
	ctx := context.Background()

	if _, err := r.Reconcile(ctx, "example.com", desired, stream.FromSlice(aRecords())); err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	store.calls = nil

	existing, _ := store.List(ctx, "example.com", "")
	result, err := r.Reconcile(ctx, "example.com", desired, stream.FromSlice(existing.Records))
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("second run issued writes: %v", store.calls)
	}
	if len(result.Writes()) != 0 || len(result.Actions) != 1 || result.Actions[0].Type != ActionSkip {
		t.Errorf("second run actions = %v", result.Actions)
	}
}

func TestReconcile_AbsentTTLKeepsExisting(t *testing.T) {
	store := &fakeStore{records: aRecords()}
	r := newTestReconciler(store, false)

	desired := rrset.RecordSet{
		Name:    "www.example.com.",
		Type:    "A",
		Records: []rrset.Value{addr("1.1.1.1"), addr("2.2.2.2"), addr("4.4.4.4")},
	}
	if _, err := r.Reconcile(context.Background(), "example.com", desired, stream.FromSlice(aRecords())); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	want := []string{"create 4.4.4.4 300"}
	if diff := cmp.Diff(want, store.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_Priority(t *testing.T) {
	existing := []provider.Record{
		{ID: "m1", Name: "example.com.", Type: "MX", TTL: 300, Priority: rrset.Int(10), Data: "mx1.example.com."},
		{ID: "m2", Name: "example.com.", Type: "MX", TTL: 300, Priority: rrset.Int(20), Data: "mx2.example.com."},
	}
	store := &fakeStore{records: existing}
	r := newTestReconciler(store, false)

	desired := rrset.RecordSet{
		Name: "example.com.",
		Type: "MX",
		Records: []rrset.Value{
			rrset.V("preference", "10", "exchange", "mx1.example.com."),
			rrset.V("preference", "30", "exchange", "mx2.example.com."),
		},
	}
	if _, err := r.Reconcile(context.Background(), "example.com", desired, stream.FromSlice(existing)); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	want := []string{"delete m2", "create mx2.example.com. 300"}
	if diff := cmp.Diff(want, store.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	last := store.records[len(store.records)-1]
	if last.Priority == nil || *last.Priority != 30 {
		t.Errorf("created priority = %v, want 30", last.Priority)
	}
}

func TestReconcile_DuplicateExistingDeleted(t *testing.T) {
	existing := append(aRecords(), provider.Record{ID: "r3", Name: "www.example.com.", Type: "A", TTL: 300, Data: "2.2.2.2"})
	store := &fakeStore{records: existing}
	r := newTestReconciler(store, false)

	desired := rrset.RecordSet{Name: "www.example.com.", Type: "A", Records: []rrset.Value{addr("2.2.2.2")}}
	if _, err := r.Reconcile(context.Background(), "example.com", desired, stream.FromSlice(existing)); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	want := []string{"delete r1", "delete r3"}
	if diff := cmp.Diff(want, store.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_DryRun(t *testing.T) {
	store := &fakeStore{records: aRecords()}
	r := newTestReconciler(store, true)

	desired := rrset.RecordSet{Name: "www.example.com.", Type: "A", Records: []rrset.Value{addr("9.9.9.9")}}
	result, err := r.Reconcile(context.Background(), "example.com", desired, stream.FromSlice(aRecords()))
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("dry run issued writes: %v", store.calls)
	}
	if got := len(result.Writes()); got != 3 {
		t.Errorf("planned writes = %d, want 3", got)
	}
	for _, a := range result.Actions {
		if !a.DryRun {
			t.Errorf("action %v not marked dry-run", a)
		}
	}
}

func TestReconcile_InvalidInput(t *testing.T) {
	store := &fakeStore{}
	r := newTestReconciler(store, false)

	tests := []struct {
		name    string
		desired rrset.RecordSet
	}{
		{"empty records", rrset.RecordSet{Name: "www.example.com.", Type: "A"}},
		{"missing name", rrset.RecordSet{Type: "A", Records: []rrset.Value{addr("1.1.1.1")}}},
		{"bad address", rrset.RecordSet{Name: "www.example.com.", Type: "A", Records: []rrset.Value{addr("::1")}}},
		{"unknown field", rrset.RecordSet{Name: "www.example.com.", Type: "A", Records: []rrset.Value{rrset.V("target", "x")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Reconcile(context.Background(), "example.com", tt.desired, stream.FromSlice(nil))
			if !rrset.IsArgumentError(err) {
				t.Errorf("Reconcile() error = %v, want ArgumentError", err)
			}
			if len(store.calls) != 0 {
				t.Errorf("writes issued: %v", store.calls)
			}
		})
	}
}

func TestReconcile_StopsAtFirstFailure(t *testing.T) {
	store := &fakeStore{records: aRecords(), failOn: ActionDelete}
	r := newTestReconciler(store, false)

	desired := rrset.RecordSet{Name: "www.example.com.", Type: "A", Records: []rrset.Value{addr("3.3.3.3")}}
	result, err := r.Reconcile(context.Background(), "example.com", desired, stream.FromSlice(aRecords()))
	if !errors.Is(err, provider.ErrConflict) {
		t.Fatalf("Reconcile() error = %v, want ErrConflict", err)
	}
	var perr *provider.ProviderError
	if !errors.As(err, &perr) || perr.RecordID != "r1" {
		t.Errorf("error = %#v, want ProviderError for r1", err)
	}
	if len(store.calls) != 1 {
		t.Errorf("calls after failure = %v, want only the failing delete", store.calls)
	}
	if result == nil || result.FailedCount() != 1 {
		t.Errorf("result should record the failure")
	}
}

func TestReconcile_ProviderErrorNotWrappedTwice(t *testing.T) {
	store := &fakeStore{records: aRecords(), failOn: ActionDelete, wrapFailures: true}
	r := newTestReconciler(store, false)

	desired := rrset.RecordSet{Name: "www.example.com.", Type: "A", Records: []rrset.Value{addr("3.3.3.3")}}
	_, err := r.Reconcile(context.Background(), "example.com", desired, stream.FromSlice(aRecords()))
	if !errors.Is(err, provider.ErrConflict) {
		t.Fatalf("Reconcile() error = %v, want ErrConflict", err)
	}
	want := "provider test: delete r1: " + provider.ErrConflict.Error()
	if err.Error() != want {
		t.Errorf("Reconcile() error = %q, want %q", err.Error(), want)
	}
}

func TestDeleteAll(t *testing.T) {
	existing := append(aRecords(), provider.Record{ID: "r3", Name: "www.example.com.", Type: "A", TTL: 300, Data: "3.3.3.3"})
	store := &fakeStore{records: existing}
	r := newTestReconciler(store, false)

	result, err := r.DeleteAll(context.Background(), "example.com", stream.FromSlice(existing))
	if err != nil {
		t.Fatalf("DeleteAll() error = %v", err)
	}
	want := []string{"delete r1", "delete r2", "delete r3"}
	if diff := cmp.Diff(want, store.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if result.DeletedCount() != 3 {
		t.Errorf("DeletedCount() = %d, want 3", result.DeletedCount())
	}
}

func TestReconcile_AsyncJobs(t *testing.T) {
	tests := []struct {
		name    string
		polls   []provider.JobState
		wantErr error
	}{
		{"completes after polling", []provider.JobState{provider.JobPending, provider.JobRunning, provider.JobComplete}, nil},
		{"job error", []provider.JobState{provider.JobRunning, provider.JobError}, provider.ErrJobFailed},
		{"never finishes", []provider.JobState{provider.JobRunning, provider.JobRunning, provider.JobRunning, provider.JobRunning}, provider.ErrJobTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{async: true, polls: tt.polls}
			r := newTestReconciler(store, false)

			desired := rrset.RecordSet{Name: "www.example.com.", Type: "A", Records: []rrset.Value{addr("1.1.1.1")}}
			_, err := r.Reconcile(context.Background(), "example.com", desired, stream.FromSlice(nil))
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Reconcile() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Reconcile() error = %v, want %v", err, tt.wantErr)
			}
			if !provider.IsJobFailure(err) {
				t.Errorf("error %v should be a JobFailure", err)
			}
		})
	}
}

func TestJobWaiter_NilAndComplete(t *testing.T) {
	w := NewJobWaiter("test", nil, JobConfig{}, testLogger())
	ctx := context.Background()

	if err := w.AwaitCompletion(ctx, nil); err != nil {
		t.Errorf("nil job: %v", err)
	}
	if err := w.AwaitCompletion(ctx, &provider.Job{ID: "j", State: provider.JobComplete}); err != nil {
		t.Errorf("complete job: %v", err)
	}
	if err := w.AwaitCompletion(ctx, &provider.Job{ID: "j", State: provider.JobPending}); err == nil {
		t.Error("pending job without tracker should fail")
	}
}

func TestJobWaiter_ContextCancelled(t *testing.T) {
	store := &fakeStore{polls: []provider.JobState{provider.JobRunning, provider.JobRunning, provider.JobRunning}}
	w := NewJobWaiter("test", store, JobConfig{Attempts: 3, BaseDelay: time.Hour}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := w.AwaitCompletion(ctx, &provider.Job{ID: "j", State: provider.JobPending})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("AwaitCompletion() error = %v, want context.Canceled", err)
	}
}

func TestPlan_Pure(t *testing.T) {
	desired := rrset.RecordSet{
		Name:    "www.example.com.",
		Type:    "A",
		TTL:     rrset.Int(600),
		Records: []rrset.Value{addr("2.2.2.2"), addr("3.3.3.3")},
	}
	ops, err := Plan(desired, aRecords(), 300)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}

	var got []string
	for _, op := range ops {
		got = append(got, op.String())
	}
	want := []string{
		"delete r1",
		"update r2 ttl=600",
		`create www.example.com./A "3.3.3.3" ttl=600`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Plan() mismatch (-want +got):\n%s", diff)
	}
}

func TestPlan_CanonicalValuesMatch(t *testing.T) {
	tests := []struct {
		name     string
		desired  rrset.RecordSet
		existing provider.Record
	}{
		{
			name:     "AAAA uncompressed",
			desired:  rrset.RecordSet{Name: "v6.example.com.", Type: "AAAA", Records: []rrset.Value{addr("2001:0db8:0000::1")}},
			existing: provider.Record{ID: "r1", Name: "v6.example.com.", Type: "AAAA", TTL: 300, Data: "2001:db8::1"},
		},
		{
			name:     "CNAME relative",
			desired:  rrset.RecordSet{Name: "www.example.com.", Type: "CNAME", Records: []rrset.Value{rrset.V("cname", "target.example.com")}},
			existing: provider.Record{ID: "r2", Name: "www.example.com.", Type: "CNAME", TTL: 300, Data: "target.example.com."},
		},
		{
			name: "MX relative exchange",
			desired: rrset.RecordSet{Name: "example.com.", Type: "MX", Records: []rrset.Value{
				rrset.V("preference", "10", "exchange", "mail.example.com"),
			}},
			existing: provider.Record{ID: "r3", Name: "example.com.", Type: "MX", TTL: 300, Priority: rrset.Int(10), Data: "mail.example.com."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops, err := Plan(tt.desired, []provider.Record{tt.existing}, 300)
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if len(ops) != 0 {
				t.Errorf("Plan() = %v, want no writes", ops)
			}
		})
	}
}
