package vacuum

import "reflect"

// diff returns one Change per name in order whose value differs between
// prev and next. Only names present in next are compared; a missing
// entry in prev counts as absent.
func diff(prev, next Snapshot, order []string) []Change {
	var changes []Change
	for _, name := range order {
		value, ok := next[name]
		if !ok {
			continue
		}
		old := prev[name]
		if reflect.DeepEqual(old, value) {
			continue
		}
		changes = append(changes, Change{Name: name, Value: value, Previous: old})
	}
	return changes
}
