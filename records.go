package lazydb

import "sync"

// Add inserts a record. The stored copy is a clone with private keys
// stripped; the caller's record is untouched except that a store-assigned
// id is written back onto it, so callers can Add and then Get without
// inspecting the return value. Returns the record's primary key.
func (db *DB) Add(table string, record Record) (any, error) {
	return db.run("Add", []any{table, record}, func() (any, error) {
		if db.schema.TableNamed(table) == nil {
			return nil, unknownTable("Add", table)
		}
		id, err := db.store.Table(table).Add(record.stripPrivate())
		if err != nil {
			return nil, err
		}
		if id != nil && record[KeyField] != id {
			record[KeyField] = id
		}
		return id, nil
	})
}

// Update merges record into the row with the given primary key, like
// Query(table).Filter("id", id).Modify(record).Execute() but with private
// keys stripped from the changes first. Returns the modified rows.
func (db *DB) Update(table string, id any, record Record) ([]any, error) {
	result, err := db.run("Update", []any{table, id, record}, func() (any, error) {
		if db.schema.TableNamed(table) == nil {
			return nil, unknownTable("Update", table)
		}
		return newQuerySet(db, table).Filter(KeyField, id).Modify(record.stripPrivate()).Execute()
	})
	return asSlice(result), err
}

// Remove deletes the row with the given primary key.
func (db *DB) Remove(table string, id any) ([]any, error) {
	result, err := db.run("Remove", []any{table, id}, func() (any, error) {
		return db.removeWhere("Remove", table, Record{KeyField: id})
	})
	return asSlice(result), err
}

// RemoveBy deletes every row whose field equals value. Resolves with one
// entry per removed row.
func (db *DB) RemoveBy(table, field string, value any) ([]any, error) {
	result, err := db.run("RemoveBy", []any{table, field, value}, func() (any, error) {
		return db.removeWhere("RemoveBy", table, Record{field: value})
	})
	return asSlice(result), err
}

// RemoveMatching deletes every row matching all of the given conditions
// (AND semantics): one filter per condition entry.
func (db *DB) RemoveMatching(table string, conds Record) ([]any, error) {
	result, err := db.run("RemoveMatching", []any{table, conds}, func() (any, error) {
		return db.removeWhere("RemoveMatching", table, conds)
	})
	return asSlice(result), err
}

// removeWhere finds the matching rows, then issues one store-level remove
// per row. All removes run concurrently and are all joined before
// returning; the first failure wins but does not cancel its siblings.
func (db *DB) removeWhere(op, table string, conds Record) (any, error) {
	if db.schema.TableNamed(table) == nil {
		return nil, unknownTable(op, table)
	}
	q := newQuerySet(db, table)
	for field, value := range conds {
		q.Filter(field, value)
	}
	rows, err := q.Execute()
	if err != nil {
		return nil, err
	}

	errs := make([]error, len(rows))
	var wg sync.WaitGroup
	for i, item := range rows {
		row, ok := item.(Record)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(i int, id any) {
			defer wg.Done()
			errs[i] = db.store.Remove(table, id)
		}(i, row.ID())
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return rows, nil
}

// Clear removes every record of a table, delegating straight to the store.
func (db *DB) Clear(table string) error {
	_, err := db.run("Clear", []any{table}, func() (any, error) {
		if db.schema.TableNamed(table) == nil {
			return nil, unknownTable("Clear", table)
		}
		return nil, db.store.Clear(table)
	})
	return err
}

// Get fetches by primary key. Exactly one match resolves with the record
// itself, more than one with the full sequence, zero with the store's
// empty-result shape verbatim.
func (db *DB) Get(table string, id any) (any, error) {
	return db.run("Get", []any{table, id}, func() (any, error) {
		if db.schema.TableNamed(table) == nil {
			return nil, unknownTable("Get", table)
		}
		rows, err := newQuerySet(db, table).Filter(KeyField, id).Execute()
		if err != nil {
			return nil, err
		}
		if len(rows) == 1 {
			return rows[0], nil
		}
		return rows, nil
	})
}

// Query constructs a QuerySet for the table. This is the documented
// exception to the readiness convention: it is synchronous, touches no
// store state, and validates the table against the declared schema only.
func (db *DB) Query(table string) (*QuerySet, error) {
	if db.schema.TableNamed(table) == nil {
		return nil, unknownTable("Query", table)
	}
	return newQuerySet(db, table), nil
}

// Close closes the store and transitions the handle to Closed. Must be
// the last usable call; everything after fails with ErrDatabaseClosed.
func (db *DB) Close() error {
	_, err := db.run("Close", nil, func() (any, error) {
		err := db.store.Close()
		db.state.Store(int32(StateClosed))
		return nil, err
	})
	return err
}

// Drop transitions the handle to Closed, then destroys the store's data
// permanently.
func (db *DB) Drop() error {
	_, err := db.run("Drop", nil, func() (any, error) {
		db.state.Store(int32(StateClosed))
		return nil, db.store.Destroy()
	})
	return err
}

func asSlice(v any) []any {
	if v == nil {
		return nil
	}
	return v.([]any)
}
