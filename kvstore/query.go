package kvstore

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/andreyvit/lazydb"
)

type pred struct {
	field string
	value any
}

// nativeQuery implements lazydb.NativeQuery over the bucket layout.
//
// It starts in index-selection form. The first range op resolves what to
// scan — an index bucket for a filter on an indexed field, a primary-key
// range otherwise — and generalizes the handle; later filters become scan
// predicates. Builder methods never fail: the first misuse or bad argument
// is remembered and reported by Execute.
type nativeQuery struct {
	st    *store
	table string

	generalized bool

	indexField string
	indexValue any

	hasLower, hasUpper bool
	lower, upper       any
	exLower, exUpper   bool

	preds     []pred
	distinct  bool
	desc      bool
	keysOnly  bool
	limit     int
	maps      []func(any) any
	changes   lazydb.Record
	hasModify bool

	err error // first deferred builder error
}

func (q *nativeQuery) deferErr(format string, args ...any) {
	if q.err == nil {
		q.err = fmt.Errorf("kvstore: "+format, args...)
	}
}

func (q *nativeQuery) requireIndexForm(op string) bool {
	if q.generalized {
		q.deferErr("%s: range selection on a generalized query", op)
		return false
	}
	return true
}

func (q *nativeQuery) requireGeneralForm(op string) bool {
	if !q.generalized {
		q.deferErr("%s: query still in index-selection form", op)
		return false
	}
	return true
}

func (q *nativeQuery) All() {
	if q.requireIndexForm("all") {
		q.generalized = true
	}
}

func (q *nativeQuery) Filter(field string, value any) {
	if !q.generalized {
		tbl := q.st.scm.TableNamed(q.table)
		switch {
		case field == lazydb.KeyField:
			q.hasLower, q.hasUpper = true, true
			q.lower, q.upper = value, value
		case tbl != nil && tbl.Indexed(field):
			q.indexField, q.indexValue = field, value
		default:
			q.preds = append(q.preds, pred{field, value})
		}
		q.generalized = true
		return
	}
	q.preds = append(q.preds, pred{field, value})
}

func (q *nativeQuery) Only(value any) {
	if q.requireIndexForm("only") {
		q.hasLower, q.hasUpper = true, true
		q.lower, q.upper = value, value
		q.generalized = true
	}
}

func (q *nativeQuery) Bound(lower, upper any, exLower, exUpper bool) {
	if q.requireIndexForm("bound") {
		q.hasLower, q.hasUpper = true, true
		q.lower, q.upper = lower, upper
		q.exLower, q.exUpper = exLower, exUpper
		q.generalized = true
	}
}

func (q *nativeQuery) LowerBound(value any, open bool) {
	if q.requireIndexForm("lowerBound") {
		q.hasLower = true
		q.lower, q.exLower = value, open
		q.generalized = true
	}
}

func (q *nativeQuery) UpperBound(value any, open bool) {
	if q.requireIndexForm("upperBound") {
		q.hasUpper = true
		q.upper, q.exUpper = value, open
		q.generalized = true
	}
}

func (q *nativeQuery) Generalized() bool {
	return q.generalized
}

func (q *nativeQuery) Generalize() {
	q.generalized = true
}

func (q *nativeQuery) Distinct() {
	if q.requireGeneralForm("distinct") {
		q.distinct = true
	}
}

func (q *nativeQuery) Desc() {
	if q.requireGeneralForm("desc") {
		q.desc = true
	}
}

func (q *nativeQuery) Keys() {
	if q.requireGeneralForm("keys") {
		q.keysOnly = true
	}
}

func (q *nativeQuery) Limit(n int) {
	if q.requireGeneralForm("limit") {
		if n < 0 {
			q.deferErr("limit: negative count %d", n)
			return
		}
		q.limit = n
	}
}

func (q *nativeQuery) Map(fn func(item any) any) {
	if q.requireGeneralForm("map") {
		q.maps = append(q.maps, fn)
	}
}

func (q *nativeQuery) Modify(changes lazydb.Record) {
	if q.requireGeneralForm("modify") {
		q.changes = changes
		q.hasModify = true
	}
}

func (q *nativeQuery) Execute() ([]any, error) {
	if q.err != nil {
		return nil, q.err
	}
	tbl := q.st.scm.TableNamed(q.table)
	if tbl == nil {
		return nil, fmt.Errorf("kvstore: query: no table %q", q.table)
	}

	tx, err := q.st.stg.BeginTx(q.hasModify)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := q.matchRows(tx, tbl)
	if err != nil {
		return nil, err
	}
	if q.limit > 0 && len(rows) > q.limit {
		rows = rows[:q.limit]
	}

	result := make([]any, 0, len(rows))
	for _, row := range rows {
		var item any
		if q.keysOnly {
			item = row.ID()
		} else {
			item = row
		}
		for _, fn := range q.maps {
			if item = fn(item); item == nil {
				break
			}
		}
		if item == nil {
			// A dropped row leaves a hole and is never modified.
			result = append(result, nil)
			continue
		}
		if q.hasModify {
			merged := mergeRow(row, q.changes)
			if err := persistModify(tx, tbl, row, merged); err != nil {
				return nil, err
			}
			if rec, ok := item.(lazydb.Record); ok {
				item = mergeRow(rec, q.changes)
			}
		}
		result = append(result, item)
	}

	if q.hasModify {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// matchRows scans in the requested direction (Prev-walks the cursor for
// desc); limit truncates the materialized rows afterwards.
func (q *nativeQuery) matchRows(tx storageTx, tbl *lazydb.Table) ([]lazydb.Record, error) {
	data := tx.Bucket(dataRoot, tbl.Name())
	if data == nil {
		return nil, fmt.Errorf("kvstore: missing data bucket for %q", tbl.Name())
	}

	if q.indexField != "" {
		return q.matchByIndex(tx, tbl, data)
	}

	var encLower, encUpper []byte
	var err error
	if q.hasLower {
		if encLower, err = encodeKey(q.lower); err != nil {
			return nil, err
		}
	}
	if q.hasUpper {
		if encUpper, err = encodeKey(q.upper); err != nil {
			return nil, err
		}
	}

	var rows []lazydb.Record
	collect := func(v []byte) error {
		row, err := decodeRow(v)
		if err != nil {
			return err
		}
		if q.matchPreds(row) {
			rows = append(rows, row)
		}
		return nil
	}

	c := data.Cursor()
	if q.desc {
		for k, v := seekLast(c, encUpper); k != nil; k, v = c.Prev() {
			if encUpper != nil && q.exUpper && bytes.Equal(k, encUpper) {
				continue
			}
			if encLower != nil {
				cmp := bytes.Compare(k, encLower)
				if cmp < 0 || (cmp == 0 && q.exLower) {
					break
				}
			}
			if err := collect(v); err != nil {
				return nil, err
			}
		}
		return rows, nil
	}

	var k, v []byte
	if encLower != nil {
		k, v = c.Seek(encLower)
	} else {
		k, v = c.First()
	}
	for ; k != nil; k, v = c.Next() {
		if encLower != nil && q.exLower && bytes.Equal(k, encLower) {
			continue
		}
		if encUpper != nil {
			cmp := bytes.Compare(k, encUpper)
			if cmp > 0 || (cmp == 0 && q.exUpper) {
				break
			}
		}
		if err := collect(v); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// seekLast positions the cursor on the greatest key <= max, or on the last
// key of the bucket when max is nil.
func seekLast(c storageCursor, max []byte) ([]byte, []byte) {
	if max == nil {
		return c.Last()
	}
	k, v := c.Seek(max)
	if k == nil {
		return c.Last()
	}
	if bytes.Compare(k, max) > 0 {
		return c.Prev()
	}
	return k, v
}

// prefixSuccessor returns the smallest key greater than every key carrying
// the prefix, or nil when no such key exists.
func prefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			out := slices.Clone(prefix[:i+1])
			out[i]++
			return out
		}
	}
	return nil
}

func (q *nativeQuery) matchByIndex(tx storageTx, tbl *lazydb.Table, data storageBucket) ([]lazydb.Record, error) {
	encVal, err := encodeKey(q.indexValue)
	if err != nil {
		return nil, err
	}
	buck := tx.Bucket(indexRoot, indexSub(tbl.Name(), q.indexField))
	if buck == nil {
		return nil, fmt.Errorf("kvstore: missing index bucket %s.%s", tbl.Name(), q.indexField)
	}

	prefix := indexValuePrefix(encVal)
	var rows []lazydb.Record
	c := buck.Cursor()

	var k, v []byte
	step := c.Next
	if q.desc {
		step = c.Prev
		if end := prefixSuccessor(prefix); end == nil {
			k, v = c.Last()
		} else if k, v = c.Seek(end); k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
	} else {
		k, v = c.Seek(prefix)
	}

	for ; k != nil && bytes.HasPrefix(k, prefix); k, v = step() {
		rowData := data.Get(v)
		if rowData == nil {
			continue // dangling entry, skip
		}
		row, err := decodeRow(rowData)
		if err != nil {
			return nil, err
		}
		if !q.matchPreds(row) {
			continue
		}
		rows = append(rows, row)
		if q.distinct {
			// Equality scan: every entry shares the index value.
			break
		}
	}
	return rows, nil
}

func (q *nativeQuery) matchPreds(row lazydb.Record) bool {
	for _, p := range q.preds {
		if !scalarEqual(row[p.field], p.value) {
			return false
		}
	}
	return true
}

// mergeRow applies changes to a copy of row. The primary key is immutable;
// a changed "id" is ignored.
func mergeRow(row lazydb.Record, changes lazydb.Record) lazydb.Record {
	out := row.Clone()
	for k, v := range changes {
		if k == lazydb.KeyField {
			continue
		}
		out[k] = canonicalizeValue(v)
	}
	return out
}

func persistModify(tx storageTx, tbl *lazydb.Table, old, merged lazydb.Record) error {
	encID, err := encodeKey(merged.ID())
	if err != nil {
		return err
	}
	if err := deleteIndexEntries(tx, tbl, old, encID); err != nil {
		return err
	}
	data, err := encodeRow(merged)
	if err != nil {
		return err
	}
	if err := tx.Bucket(dataRoot, tbl.Name()).Put(encID, data); err != nil {
		return err
	}
	return putIndexEntries(tx, tbl, merged, encID)
}
