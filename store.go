package lazydb

// Store is the underlying indexed key-value store. Open is called once,
// asynchronously, by the database handle; every other method implies a
// successful Open. Implementations live outside this package (see kvstore
// for the bundled one).
type Store interface {
	// Open prepares the store for the given schema. Blocking; the handle
	// calls it from the opener goroutine.
	Open(scm *Schema) error

	// Close releases the store. Further calls on the store are undefined.
	Close() error

	// Destroy closes the store and deletes its data permanently.
	Destroy() error

	// Clear removes every record of a table.
	Clear(table string) error

	// Remove deletes a single record by primary key. Unknown ids are not
	// an error.
	Remove(table string, id any) error

	// Table returns the per-table surface. The table is assumed to exist;
	// the handle validates names against the schema first.
	Table(name string) StoreTable
}

// StoreTable is the per-table surface of a Store.
type StoreTable interface {
	// Add inserts a record and returns its primary key, generating one if
	// the record arrived without it. The record is owned by the caller and
	// must not be retained.
	Add(row Record) (id any, err error)

	// Query returns a fresh native query handle in index-selection form.
	Query() NativeQuery
}

// NativeQuery is the store's query primitive. It starts in index-selection
// form, where only the range-selection methods are legal; any of them (or
// an explicit Generalize) moves it to general form, where the shaping,
// transform and mutation methods become legal. Execute is terminal.
//
// Argument validation is deferred: builder methods never fail, Execute
// reports the first problem.
type NativeQuery interface {
	// Range selection (index-selection form).

	// All selects every record in primary-key order.
	All()
	// Filter selects records whose field equals value. On an indexed field
	// in index-selection form this resolves the index; otherwise it becomes
	// a scan predicate.
	Filter(field string, value any)
	// Only restricts the primary key to exactly the given value.
	Only(value any)
	// Bound restricts the primary key to [lower, upper], either end
	// exclusive when the corresponding flag is set.
	Bound(lower, upper any, exLower, exUpper bool)
	// LowerBound restricts the primary key to >= value (> when open).
	LowerBound(value any, open bool)
	// UpperBound restricts the primary key to <= value (< when open).
	UpperBound(value any, open bool)

	// Generalized reports whether the handle has left index-selection form.
	Generalized() bool
	// Generalize coerces the handle to general form without selecting a
	// range (full scan). No-op if already general.
	Generalize()

	// Shaping, transforms, mutation (general form).

	// Distinct drops records sharing an already-seen index value.
	Distinct()
	// Desc reverses the scan order.
	Desc()
	// Keys yields primary keys instead of records.
	Keys()
	// Limit caps the number of matched records.
	Limit(n int)
	// Map appends a per-item transform; returning nil drops the item,
	// leaving a hole in the raw result.
	Map(fn func(item any) any)
	// Modify merges changes into every matched record and persists them.
	Modify(changes Record)

	// Execute runs the query and returns the raw result collection,
	// including holes left by Map transforms.
	Execute() ([]any, error)
}
