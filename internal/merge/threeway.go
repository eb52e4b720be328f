package merge

import (
	"reflect"

	"github.com/Netsend/persdb/internal/item"
)

// FieldConflict names one field that could not be merged because it
// changed on both sides to unequal values (spec.md §4.3 step 3).
type FieldConflict struct {
	Field string
	Local interface{}
	Remote interface{}
}

// Outcome is the result of a three-way body merge.
type Outcome struct {
	Body      item.Body
	Tombstone bool
	Conflicts []FieldConflict
}

// ThreeWay computes the merge of local and remote bodies relative to lca,
// per the per-field last-writer-wins rules in spec.md §4.3 step 3:
//
//   - a field present in lca and changed on exactly one side takes the
//     changed value;
//   - a field changed on both sides to equal values takes that value;
//   - a field changed on both sides to unequal values is a conflict;
//   - a field added on exactly one side is included;
//   - a field deleted on one side and unchanged on the other is deleted;
//   - deletion vs modification is a conflict.
//
// Nested objects are treated as opaque values compared with
// reflect.DeepEqual (shallow, per-top-level-field LWW — see DESIGN.md for
// the Open Question this resolves).
//
// localTombstone/remoteTombstone propagate per spec.md §4.3: delete-vs-
// delete merges to a tombstone; delete-vs-modify is a conflict.
func ThreeWay(lca, local, remote item.Body, localTombstone, remoteTombstone bool) Outcome {
	if localTombstone && remoteTombstone {
		return Outcome{Tombstone: true}
	}
	if localTombstone != remoteTombstone {
		return Outcome{Conflicts: []FieldConflict{{Field: "<tombstone>", Local: localTombstone, Remote: remoteTombstone}}}
	}

	merged := item.Body{}
	var conflicts []FieldConflict

	fields := make(map[string]struct{})
	for f := range lca {
		fields[f] = struct{}{}
	}
	for f := range local {
		fields[f] = struct{}{}
	}
	for f := range remote {
		fields[f] = struct{}{}
	}

	for f := range fields {
		baseVal, inBase := lca[f]
		localVal, inLocal := local[f]
		remoteVal, inRemote := remote[f]

		localChanged := changed(inBase, baseVal, inLocal, localVal)
		remoteChanged := changed(inBase, baseVal, inRemote, remoteVal)

		switch {
		case !localChanged && !remoteChanged:
			if inBase {
				merged[f] = baseVal
			}
		case localChanged && !remoteChanged:
			if inLocal {
				merged[f] = localVal
			}
		case !localChanged && remoteChanged:
			if inRemote {
				merged[f] = remoteVal
			}
		default: // both changed
			if inLocal && inRemote && reflect.DeepEqual(localVal, remoteVal) {
				merged[f] = localVal
			} else if inLocal != inRemote {
				// delete vs modify
				conflicts = append(conflicts, FieldConflict{Field: f, Local: localVal, Remote: remoteVal})
			} else if !inLocal && !inRemote {
				// both deleted, field already absent from merged
			} else {
				conflicts = append(conflicts, FieldConflict{Field: f, Local: localVal, Remote: remoteVal})
			}
		}
	}

	return Outcome{Body: merged, Conflicts: conflicts}
}

func changed(inBase bool, baseVal interface{}, inNow bool, nowVal interface{}) bool {
	if inBase != inNow {
		return true
	}
	if !inBase {
		return false
	}
	return !reflect.DeepEqual(baseVal, nowVal)
}
