package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/wI2L/jsondiff"

	"worksafe/internal/entity"
	"worksafe/internal/entity/session"
	dErrors "worksafe/pkg/domainerr"
)

// Columns carried on every row that say nothing about what changed; deleted
// diffs drop them from the final snapshot.
var opaqueColumns = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
}

// Tracker translates the session's pending change set into typed diffs.
// It is stateless apart from the registry it resolves descriptors from.
type Tracker struct {
	registry *entity.Registry
}

func NewTracker(registry *entity.Registry) *Tracker {
	return &Tracker{registry: registry}
}

// Diffs converts a classified change set into an ordered diff list. Ordering
// is stable: object type, then object id.
func (t *Tracker) Diffs(changes session.Changes, now time.Time) ([]Diff, error) {
	out := make([]Diff, 0, len(changes.New)+len(changes.Dirty)+len(changes.Deleted))

	for _, ch := range changes.New {
		d, err := t.createdDiff(ch, now)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	for _, ch := range changes.Dirty {
		d, err := t.updatedDiff(ch, now)
		if err != nil {
			return nil, err
		}
		if d != nil {
			out = append(out, *d)
		}
	}
	for _, ch := range changes.Deleted {
		d, err := t.deletedDiff(ch, now)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ObjectType != out[j].ObjectType {
			return out[i].ObjectType < out[j].ObjectType
		}
		return out[i].ObjectID.String() < out[j].ObjectID.String()
	})
	return out, nil
}

func (t *Tracker) createdDiff(ch session.Change, now time.Time) (Diff, error) {
	newValues, err := json.Marshal(ch.New)
	if err != nil {
		return Diff{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode created diff")
	}
	return Diff{
		ObjectType: ch.Ref.Type,
		ObjectID:   ch.Ref.ID,
		Type:       DiffCreated,
		NewValues:  newValues,
		CreatedAt:  now,
	}, nil
}

// updatedDiff returns nil when the snapshots are identical; a no-op save
// produces no diff.
func (t *Tracker) updatedDiff(ch session.Change, now time.Time) (*Diff, error) {
	desc, err := t.registry.Lookup(ch.Ref.Type)
	if err != nil {
		return nil, err
	}
	docCols := make(map[string]struct{}, len(desc.DocumentColumns))
	for _, c := range desc.DocumentColumns {
		docCols[c] = struct{}{}
	}

	oldChanged := map[string]any{}
	newChanged := map[string]any{}
	for col, newVal := range ch.New {
		oldVal, had := ch.Old[col]
		if had && equalColumn(oldVal, newVal) {
			continue
		}
		if _, isDoc := docCols[col]; isDoc {
			forward, reverse, err := documentPatches(oldVal, newVal)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal,
					fmt.Sprintf("patch document column %q", col))
			}
			if forward == nil {
				continue
			}
			oldChanged[col] = reverse
			newChanged[col] = forward
			continue
		}
		oldChanged[col] = oldVal
		newChanged[col] = newVal
	}
	for col, oldVal := range ch.Old {
		if _, still := ch.New[col]; !still {
			oldChanged[col] = oldVal
		}
	}
	if len(oldChanged) == 0 && len(newChanged) == 0 {
		return nil, nil
	}

	oldValues, err := json.Marshal(oldChanged)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode updated diff")
	}
	newValues, err := json.Marshal(newChanged)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "encode updated diff")
	}

	kind := DiffUpdated
	if ch.Archived {
		kind = DiffArchived
	}
	return &Diff{
		ObjectType: ch.Ref.Type,
		ObjectID:   ch.Ref.ID,
		Type:       kind,
		OldValues:  oldValues,
		NewValues:  newValues,
		CreatedAt:  now,
	}, nil
}

func (t *Tracker) deletedDiff(ch session.Change, now time.Time) (Diff, error) {
	final := make(map[string]any, len(ch.Old))
	for col, v := range ch.Old {
		if _, opaque := opaqueColumns[col]; opaque {
			continue
		}
		final[col] = v
	}
	oldValues, err := json.Marshal(final)
	if err != nil {
		return Diff{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode deleted diff")
	}
	return Diff{
		ObjectType: ch.Ref.Type,
		ObjectID:   ch.Ref.ID,
		Type:       DiffDeleted,
		OldValues:  oldValues,
		CreatedAt:  now,
	}, nil
}

// documentPatches computes the forward and reverse RFC 6902 patches between
// two document column snapshots. Both patches are returned as decoded op
// lists so they embed into the diff dicts without double encoding. A nil
// forward patch means the documents are equal.
func documentPatches(oldVal, newVal any) (forward, reverse []map[string]any, err error) {
	oldDoc, err := json.Marshal(normalizeDocument(oldVal))
	if err != nil {
		return nil, nil, err
	}
	newDoc, err := json.Marshal(normalizeDocument(newVal))
	if err != nil {
		return nil, nil, err
	}

	fwd, err := jsondiff.CompareJSON(oldDoc, newDoc)
	if err != nil {
		return nil, nil, err
	}
	if len(fwd) == 0 {
		return nil, nil, nil
	}
	rev, err := jsondiff.CompareJSON(newDoc, oldDoc)
	if err != nil {
		return nil, nil, err
	}

	forward, err = decodePatch(fwd)
	if err != nil {
		return nil, nil, err
	}
	reverse, err = decodePatch(rev)
	if err != nil {
		return nil, nil, err
	}
	return forward, reverse, nil
}

// normalizeDocument maps absent documents to an empty object so a first
// write of a document column yields an "add" patch instead of an error.
func normalizeDocument(v any) any {
	if v == nil {
		return map[string]any{}
	}
	return v
}

func decodePatch(p jsondiff.Patch) ([]map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var ops []map[string]any
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func equalColumn(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}
