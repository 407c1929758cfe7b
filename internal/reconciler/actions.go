package reconciler

import (
	"fmt"

	"gitlab.bluewillows.net/root/zoneweaver/pkg/provider"
	"gitlab.bluewillows.net/root/zoneweaver/pkg/rrset"
)

// Op is one planned provider write.
type Op struct {
	Type ActionType

	// Record is the record to create, or the existing record to update or
	// delete. For updates, TTL already holds the new value.
	Record provider.Record
}

// Plan computes the minimal writes that turn existing into desired.
//
// existing must already be limited to desired's name, type and qualifier.
// Values are compared in canonical form. A value present on both sides is
// kept; its TTL is updated only when desired carries a TTL that differs.
// Every other existing record is deleted and every other desired value is created. Updates and deletes
// come first, in existing order, followed by creates in desired order.
func Plan(desired rrset.RecordSet, existing []provider.Record, defaultTTL int) ([]Op, error) {
	if err := desired.ValidateForWrite(); err != nil {
		return nil, err
	}

	key := desired.Key()
	codec := rrset.Lookup(key.Type)

	toCreate := make([]rrset.Value, 0, len(desired.Records))
	canonical := make([]rrset.Value, 0, len(desired.Records))
	for _, v := range desired.Records {
		nv, err := codec.Normalize(v)
		if err != nil {
			return nil, &rrset.ArgumentError{Field: "records", Message: err.Error()}
		}
		cv, err := codec.Canonical(nv)
		if err != nil {
			return nil, &rrset.ArgumentError{Field: "records", Message: err.Error()}
		}
		toCreate = append(toCreate, nv)
		canonical = append(canonical, cv)
	}

	var ops []Op
	for _, rec := range existing {
		idx := -1
		if v, err := codec.Decode(rec.Data, rec.Priority); err == nil {
			if cv, err := codec.Canonical(v); err == nil {
				idx = indexOfValue(canonical, cv)
			}
		}
		if idx < 0 {
			ops = append(ops, Op{Type: ActionDelete, Record: rec})
			continue
		}
		toCreate = append(toCreate[:idx], toCreate[idx+1:]...)
		canonical = append(canonical[:idx], canonical[idx+1:]...)
		if desired.TTL != nil && *desired.TTL != rec.TTL {
			updated := rec
			updated.TTL = *desired.TTL
			ops = append(ops, Op{Type: ActionUpdate, Record: updated})
		}
	}

	ttl := desired.TTLOr(defaultTTL)
	for _, v := range toCreate {
		data, priority, err := codec.Encode(v)
		if err != nil {
			return nil, &rrset.ArgumentError{Field: "records", Message: err.Error()}
		}
		ops = append(ops, Op{Type: ActionCreate, Record: provider.Record{
			Name:      key.Name,
			Type:      key.Type,
			Qualifier: key.Qualifier,
			TTL:       ttl,
			Priority:  priority,
			Data:      data,
		}})
	}
	return ops, nil
}

// PlanDeleteAll returns a delete for every record, regardless of value.
func PlanDeleteAll(existing []provider.Record) []Op {
	ops := make([]Op, 0, len(existing))
	for _, rec := range existing {
		ops = append(ops, Op{Type: ActionDelete, Record: rec})
	}
	return ops
}

func indexOfValue(values []rrset.Value, v rrset.Value) int {
	for i, candidate := range values {
		if candidate.Equal(v) {
			return i
		}
	}
	return -1
}

func (o Op) String() string {
	switch o.Type {
	case ActionCreate:
		return fmt.Sprintf("create %s %q ttl=%d", o.Record.Key(), o.Record.Data, o.Record.TTL)
	case ActionUpdate:
		return fmt.Sprintf("update %s ttl=%d", o.Record.ID, o.Record.TTL)
	default:
		return fmt.Sprintf("%s %s", o.Type, o.Record.ID)
	}
}
