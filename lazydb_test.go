package lazydb

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

type (
	fakeStore struct {
		mu        sync.Mutex
		openErr   error
		openGate  chan struct{} // when non-nil, Open blocks until closed
		execErr   error
		opened    bool
		closed    bool
		destroyed bool
		cleared   []string
		nextID    int
		tables    map[string][]Record
		qlog      []string
	}

	fakeTable struct {
		s    *fakeStore
		name string
	}

	fakeQuery struct {
		s           *fakeStore
		table       string
		generalized bool
		filters     []fakePred
		desc        bool
		keysOnly    bool
		limit       int
		maps        []func(any) any
		changes     Record
		hasModify   bool
	}

	fakePred struct {
		field string
		value any
	}
)

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string][]Record)}
}

func (s *fakeStore) logq(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qlog = append(s.qlog, fmt.Sprintf(format, args...))
}

func (s *fakeStore) takeLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.qlog
	s.qlog = nil
	return log
}

func (s *fakeStore) rows(table string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.tables[table]))
	for _, row := range s.tables[table] {
		out = append(out, row.Clone())
	}
	return out
}

func (s *fakeStore) Open(scm *Schema) error {
	if s.openGate != nil {
		<-s.openGate
	}
	if s.openErr != nil {
		return s.openErr
	}
	s.mu.Lock()
	s.opened = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeStore) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyed = true
	return nil
}

func (s *fakeStore) Clear(table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = nil
	s.cleared = append(s.cleared, table)
	return nil
}

func (s *fakeStore) Remove(table string, id any) error {
	s.logq("remove %s/%v", table, id)
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[table]
	for i, row := range rows {
		if row.ID() == id {
			s.tables[table] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *fakeStore) Table(name string) StoreTable {
	return fakeTable{s: s, name: name}
}

func (t fakeTable) Add(row Record) (any, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	id := row.ID()
	if id == nil || id == "" {
		t.s.nextID++
		id = fmt.Sprintf("fake-%d", t.s.nextID)
	}
	row = row.Clone()
	row[KeyField] = id
	t.s.tables[t.name] = append(t.s.tables[t.name], row)
	return id, nil
}

func (t fakeTable) Query() NativeQuery {
	return &fakeQuery{s: t.s, table: t.name}
}

func (q *fakeQuery) All() {
	q.s.logq("all")
	q.generalized = true
}

func (q *fakeQuery) Filter(field string, value any) {
	q.s.logq("filter %s=%v", field, value)
	q.filters = append(q.filters, fakePred{field, value})
	q.generalized = true
}

func (q *fakeQuery) Only(value any) {
	q.s.logq("only %v", value)
	q.filters = append(q.filters, fakePred{KeyField, value})
	q.generalized = true
}

func (q *fakeQuery) Bound(lower, upper any, exLower, exUpper bool) {
	q.s.logq("bound %v..%v", lower, upper)
	q.generalized = true
}

func (q *fakeQuery) LowerBound(value any, open bool) {
	q.s.logq("lowerBound %v", value)
	q.generalized = true
}

func (q *fakeQuery) UpperBound(value any, open bool) {
	q.s.logq("upperBound %v", value)
	q.generalized = true
}

func (q *fakeQuery) Generalized() bool { return q.generalized }

func (q *fakeQuery) Generalize() {
	q.s.logq("generalize")
	q.generalized = true
}

func (q *fakeQuery) Distinct() { q.s.logq("distinct") }

func (q *fakeQuery) Desc() {
	q.s.logq("desc")
	q.desc = true
}

func (q *fakeQuery) Keys() {
	q.s.logq("keys")
	q.keysOnly = true
}

func (q *fakeQuery) Limit(n int) {
	q.s.logq("limit %d", n)
	q.limit = n
}

func (q *fakeQuery) Map(fn func(item any) any) {
	q.s.logq("map")
	q.maps = append(q.maps, fn)
}

func (q *fakeQuery) Modify(changes Record) {
	q.s.logq("modify %v", changes)
	q.changes = changes
	q.hasModify = true
}

func (q *fakeQuery) Execute() ([]any, error) {
	q.s.logq("execute")
	if q.s.execErr != nil {
		return nil, q.s.execErr
	}
	q.s.mu.Lock()
	var matched []Record
	var matchedIdx []int
	for i, row := range q.s.tables[q.table] {
		ok := true
		for _, p := range q.filters {
			if row[p.field] != p.value {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, row.Clone())
			matchedIdx = append(matchedIdx, i)
		}
	}
	q.s.mu.Unlock()

	if q.desc {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
			matchedIdx[i], matchedIdx[j] = matchedIdx[j], matchedIdx[i]
		}
	}
	if q.limit > 0 && len(matched) > q.limit {
		matched = matched[:q.limit]
		matchedIdx = matchedIdx[:q.limit]
	}

	result := make([]any, 0, len(matched))
	for n, row := range matched {
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
			result = append(result, nil)
			continue
		}
		if q.hasModify {
			q.s.mu.Lock()
			stored := q.s.tables[q.table][matchedIdx[n]]
			for k, v := range q.changes {
				if k != KeyField {
					stored[k] = v
				}
			}
			q.s.mu.Unlock()
			if rec, ok := item.(Record); ok {
				for k, v := range q.changes {
					if k != KeyField {
						rec[k] = v
					}
				}
				item = rec
			}
		}
		result = append(result, item)
	}
	return result, nil
}

var testSchema = func() *Schema {
	scm := NewSchema()
	AddTable(scm, "users", "email", "name")
	AddTable(scm, "posts")
	return scm
}()

func setup(t testing.TB) (*DB, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	db := Open(store, testSchema, Options{Name: "test"})
	if err := db.gate(); err != nil {
		t.Fatalf("open: %v", err)
	}
	return db, store
}

func deepEqual[T any](t testing.TB, a, e T) {
	if !reflect.DeepEqual(a, e) {
		t.Helper()
		t.Errorf("** got %v, wanted %v", a, e)
	}
}

func isnil(t testing.TB, err error) {
	if err != nil {
		t.Helper()
		t.Fatalf("** unexpected error: %v", err)
	}
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
