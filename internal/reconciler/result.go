package reconciler

import (
	"fmt"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// ActionType represents the type of reconciliation action.
type ActionType string

const (
	// ActionCreate adds a flat record.
	ActionCreate ActionType = "create"
	// ActionUpdate changes the TTL of a flat record whose value is already correct.
	ActionUpdate ActionType = "update"
	// ActionDelete removes a stale flat record.
	ActionDelete ActionType = "delete"
	// ActionProfile stores, replaces or removes the routing profile of a qualified record set.
	ActionProfile ActionType = "profile"
	// ActionSkip records a record set that needed no change.
	ActionSkip ActionType = "skip"
)

// ActionStatus represents the outcome of an action.
type ActionStatus string

const (
	// StatusPending indicates the action has not been executed yet.
	StatusPending ActionStatus = "pending"
	// StatusSuccess indicates the action completed successfully.
	StatusSuccess ActionStatus = "success"
	// StatusFailed indicates the action failed.
	StatusFailed ActionStatus = "failed"
	// StatusSkipped indicates the action was not needed.
	StatusSkipped ActionStatus = "skipped"
)

// Action represents a single operation issued (or planned) against a provider.
type Action struct {
	Type   ActionType
	Status ActionStatus

	// Provider is the provider instance name.
	Provider string

	Zone       string
	Name       string
	RecordType string
	Qualifier  string

	// RecordID is set for updates and deletes.
	RecordID string

	// Data is the flat data of the affected record, or the profile for ActionProfile.
	Data string
	TTL  int

	// Error contains the error message if Status is StatusFailed.
	Error string

	// DryRun indicates this action was not actually executed.
	DryRun bool
}

// Key returns the record set key the action belongs to.
func (a Action) Key() rrset.Key {
	return rrset.NewKey(a.Name, a.RecordType, a.Qualifier)
}

// String returns a human-readable representation of the action.
func (a Action) String() string {
	status := string(a.Status)
	if a.DryRun && a.Status == StatusSuccess {
		status = "dry-run"
	}

	target := a.Data
	if a.RecordID != "" {
		target = a.RecordID + " " + target
	}
	s := fmt.Sprintf("[%s] %s %s -> %s (ttl %d, %s)", status, a.Type, a.Key(), strings.TrimSpace(target), a.TTL, a.Provider)
	if a.Error != "" {
		s += ": " + a.Error
	}
	return s
}

// Result holds the complete result of a reconciliation or sync run.
type Result struct {
	StartTime time.Time
	EndTime   time.Time

	// RecordSets is the number of desired record sets processed.
	RecordSets int

	// Actions contains all actions taken (or planned in dry-run).
	Actions []Action

	// DryRun indicates if this was a dry-run (no changes applied).
	DryRun bool
}

// NewResult creates a new Result with the start time set to now.
func NewResult(dryRun bool) *Result {
	return &Result{
		StartTime: time.Now(),
		Actions:   make([]Action, 0),
		DryRun:    dryRun,
	}
}

// Complete marks the result as complete with the end time set to now.
func (r *Result) Complete() {
	r.EndTime = time.Now()
}

// Duration returns the total run duration.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// AddAction adds an action to the result.
func (r *Result) AddAction(action Action) {
	action.DryRun = r.DryRun
	r.Actions = append(r.Actions, action)
}

// Merge appends the actions and record set count of other.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.RecordSets += other.RecordSets
	for _, a := range other.Actions {
		r.AddAction(a)
	}
}

// Created returns all successful create actions.
func (r *Result) Created() []Action {
	return r.filterActions(ActionCreate, StatusSuccess)
}

// Updated returns all successful update actions.
func (r *Result) Updated() []Action {
	return r.filterActions(ActionUpdate, StatusSuccess)
}

// Deleted returns all successful delete actions.
func (r *Result) Deleted() []Action {
	return r.filterActions(ActionDelete, StatusSuccess)
}

// Failed returns all failed actions.
func (r *Result) Failed() []Action {
	var failed []Action
	for _, a := range r.Actions {
		if a.Status == StatusFailed {
			failed = append(failed, a)
		}
	}
	return failed
}

// Writes returns the actions that changed (or would change) provider state.
func (r *Result) Writes() []Action {
	var writes []Action
	for _, a := range r.Actions {
		if a.Type != ActionSkip && a.Status == StatusSuccess {
			writes = append(writes, a)
		}
	}
	return writes
}

func (r *Result) filterActions(actionType ActionType, status ActionStatus) []Action {
	var filtered []Action
	for _, a := range r.Actions {
		if a.Type == actionType && a.Status == status {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// CreatedCount returns the number of records created (or would be in dry-run).
func (r *Result) CreatedCount() int {
	return len(r.Created())
}

// UpdatedCount returns the number of records whose TTL was updated.
func (r *Result) UpdatedCount() int {
	return len(r.Updated())
}

// DeletedCount returns the number of records deleted (or would be in dry-run).
func (r *Result) DeletedCount() int {
	return len(r.Deleted())
}

// FailedCount returns the number of failed actions.
func (r *Result) FailedCount() int {
	return len(r.Failed())
}

// HasErrors returns true if any actions failed.
func (r *Result) HasErrors() bool {
	return r.FailedCount() > 0
}

// Summary returns a human-readable summary of the run.
func (r *Result) Summary() string {
	var sb strings.Builder

	mode := "applied"
	if r.DryRun {
		mode = "dry-run"
	}

	fmt.Fprintf(&sb, "Reconciliation complete (%s) in %s\n", mode, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "  Record sets: %d\n", r.RecordSets)
	fmt.Fprintf(&sb, "  Records created: %d\n", r.CreatedCount())
	fmt.Fprintf(&sb, "  Records updated: %d\n", r.UpdatedCount())
	fmt.Fprintf(&sb, "  Records deleted: %d\n", r.DeletedCount())
	fmt.Fprintf(&sb, "  Profiles written: %d\n", len(r.filterActions(ActionProfile, StatusSuccess)))

	if r.HasErrors() {
		fmt.Fprintf(&sb, "  Failed: %d\n", r.FailedCount())
		for _, a := range r.Failed() {
			fmt.Fprintf(&sb, "    - %s\n", a.String())
		}
	}

	return sb.String()
}
