package lazydb

// opKind enumerates the operations a QuerySet can queue. One tagged kind
// per builder method; the executor dispatches on it during replay.
type opKind int

const (
	opAll opKind = iota + 1
	opFilter
	opOnly
	opBound
	opLowerBound
	opUpperBound
	opDistinct
	opDesc
	opKeys
	opLimit
	opMap
	opModify
)

var opKindNames = map[opKind]string{
	opAll:        "all",
	opFilter:     "filter",
	opOnly:       "only",
	opBound:      "bound",
	opLowerBound: "lowerBound",
	opUpperBound: "upperBound",
	opDistinct:   "distinct",
	opDesc:       "desc",
	opKeys:       "keys",
	opLimit:      "limit",
	opMap:        "map",
	opModify:     "modify",
}

func (k opKind) String() string {
	return opKindNames[k]
}

// rangeStage reports whether the op belongs to the range-selection stage.
func (k opKind) rangeStage() bool {
	switch k {
	case opAll, opFilter, opOnly, opBound, opLowerBound, opUpperBound:
		return true
	}
	return false
}

// shapingStage reports whether the op belongs to the shaping stage.
// filter is not listed: every filter is consumed by the range stage, in
// insertion order, the first one resolving the index and the rest becoming
// scan predicates on the generalized handle.
func (k opKind) shapingStage() bool {
	switch k {
	case opDistinct, opDesc, opKeys, opLimit:
		return true
	}
	return false
}

// operation is a queued builder call. Immutable once queued except for the
// dequeued marker, which the executor sets exactly once.
type operation struct {
	kind     opKind
	args     []any
	dequeued bool
}

// QuerySet accumulates operations against one table without touching the
// store. Builder methods never fail, whatever the arguments; Execute is
// the only entry point that does any work, and the only one that reports
// errors. A QuerySet is single-use.
type QuerySet struct {
	db       *DB
	table    string
	ops      []operation
	consumed bool
}

func newQuerySet(db *DB, table string) *QuerySet {
	return &QuerySet{db: db, table: table}
}

// Table returns the table this query targets.
func (q *QuerySet) Table() string {
	return q.table
}

func (q *QuerySet) push(kind opKind, args ...any) *QuerySet {
	q.ops = append(q.ops, operation{kind: kind, args: args})
	return q
}

// All selects every record of the table.
func (q *QuerySet) All() *QuerySet {
	return q.push(opAll)
}

// Filter selects records whose field equals value.
func (q *QuerySet) Filter(field string, value any) *QuerySet {
	return q.push(opFilter, field, value)
}

// Only restricts the primary key to exactly value.
func (q *QuerySet) Only(value any) *QuerySet {
	return q.push(opOnly, value)
}

// Bound restricts the primary key to [lower, upper]; either end is
// exclusive when its flag is set.
func (q *QuerySet) Bound(lower, upper any, exLower, exUpper bool) *QuerySet {
	return q.push(opBound, lower, upper, exLower, exUpper)
}

// LowerBound restricts the primary key to >= value (> when open).
func (q *QuerySet) LowerBound(value any, open bool) *QuerySet {
	return q.push(opLowerBound, value, open)
}

// UpperBound restricts the primary key to <= value (< when open).
func (q *QuerySet) UpperBound(value any, open bool) *QuerySet {
	return q.push(opUpperBound, value, open)
}

// Distinct drops records sharing an already-seen index value.
func (q *QuerySet) Distinct() *QuerySet {
	return q.push(opDistinct)
}

// Desc reverses the result order.
func (q *QuerySet) Desc() *QuerySet {
	return q.push(opDesc)
}

// Keys yields primary keys instead of records.
func (q *QuerySet) Keys() *QuerySet {
	return q.push(opKeys)
}

// Limit caps the number of matched records.
func (q *QuerySet) Limit(n int) *QuerySet {
	return q.push(opLimit, n)
}

// Map appends a per-item transform; returning nil drops the item.
func (q *QuerySet) Map(fn func(item any) any) *QuerySet {
	return q.push(opMap, fn)
}

// Modify merges changes into every matched record and persists them.
func (q *QuerySet) Modify(changes Record) *QuerySet {
	return q.push(opModify, changes)
}
