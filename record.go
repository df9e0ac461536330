package lazydb

import "strings"

// KeyField is the primary key of every record.
const KeyField = "id"

// privatePrefix marks record keys that never reach the store.
const privatePrefix = "_"

// Record is a row payload. Values are whatever the store's codec can carry
// (strings, numbers, bools, nested maps and slices).
type Record map[string]any

// ID returns the record's primary key, or nil if unset.
func (r Record) ID() any {
	return r[KeyField]
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// stripPrivate returns a copy without private ("_"-prefixed) keys.
// The receiver is never modified.
func (r Record) stripPrivate() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if strings.HasPrefix(k, privatePrefix) {
			continue
		}
		out[k] = v
	}
	return out
}

// cloneValue deep-copies maps and slices so interceptors can rewrite an
// argument without the caller observing the change. Scalars pass through.
func cloneValue(v any) any {
	switch v := v.(type) {
	case Record:
		return cloneRecordDeep(v)
	case map[string]any:
		return map[string]any(cloneRecordDeep(Record(v)))
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			out[i] = cloneValue(el)
		}
		return out
	default:
		return v
	}
}

func cloneRecordDeep(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}
