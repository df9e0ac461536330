package kvstore

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/andreyvit/lazydb"
)

const (
	dataRoot  = "data"
	indexRoot = "index"
)

type Options struct {
	Logf      func(format string, args ...any)
	IsTesting bool
	MmapSize  int
}

type store struct {
	path string // empty for in-memory
	opt  Options
	stg  storage
	scm  *lazydb.Schema
}

// NewBolt returns an unopened Bolt-backed store; lazydb.Open drives the
// actual opening asynchronously.
func NewBolt(path string, opt Options) lazydb.Store {
	return &store{path: path, opt: opt}
}

// NewMemory returns an unopened transient store, mostly for tests.
func NewMemory() lazydb.Store {
	return &store{}
}

func (st *store) logf(format string, args ...any) {
	if st.opt.Logf != nil {
		st.opt.Logf(format, args...)
	}
}

func (st *store) Open(scm *lazydb.Schema) error {
	if st.path != "" {
		bopt := &bbolt.Options{}
		*bopt = *bbolt.DefaultOptions
		bopt.Timeout = 10 * time.Second
		if st.opt.IsTesting {
			bopt.NoSync = true
			bopt.NoFreelistSync = true
			bopt.InitialMmapSize = 1024 * 1024 * 5
		} else {
			bopt.InitialMmapSize = 1024 * 1024 * 1024
			bopt.FreelistType = bbolt.FreelistMapType
		}
		if st.opt.MmapSize != 0 {
			bopt.InitialMmapSize = st.opt.MmapSize
		}
		bdb, err := bbolt.Open(st.path, 0666, bopt)
		if err != nil {
			return fmt.Errorf("kvstore: %w", err)
		}
		st.stg = newBoltStorage(bdb)
	} else {
		st.stg = newMemStorage()
	}
	st.scm = scm

	tx, err := st.stg.BeginTx(true)
	if err != nil {
		return fmt.Errorf("kvstore: %w", err)
	}
	defer tx.Rollback()
	for _, tbl := range scm.Tables() {
		if err := createTableBuckets(tx, tbl); err != nil {
			return fmt.Errorf("kvstore: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kvstore: %w", err)
	}
	st.logf("kvstore: open (%d tables)", len(scm.Tables()))
	return nil
}

func createTableBuckets(tx storageTx, tbl *lazydb.Table) error {
	if _, err := tx.CreateBucket(dataRoot, tbl.Name()); err != nil {
		return err
	}
	for _, field := range tbl.Indexes() {
		if _, err := tx.CreateBucket(indexRoot, indexSub(tbl.Name(), field)); err != nil {
			return err
		}
	}
	return nil
}

func indexSub(table, field string) string {
	return table + "." + field
}

func (st *store) Close() error {
	return st.stg.Close()
}

func (st *store) Destroy() error {
	if err := st.stg.Close(); err != nil {
		return err
	}
	if st.path != "" {
		return os.Remove(st.path)
	}
	return nil
}

func (st *store) Clear(table string) error {
	tbl := st.scm.TableNamed(table)
	if tbl == nil {
		return fmt.Errorf("kvstore: clear: no table %q", table)
	}
	tx, err := st.stg.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := tx.DeleteBucket(dataRoot, tbl.Name()); err != nil && err != ErrBucketNotFound {
		return err
	}
	for _, field := range tbl.Indexes() {
		if err := tx.DeleteBucket(indexRoot, indexSub(tbl.Name(), field)); err != nil && err != ErrBucketNotFound {
			return err
		}
	}
	if err := createTableBuckets(tx, tbl); err != nil {
		return err
	}
	return tx.Commit()
}

func (st *store) Remove(table string, id any) error {
	tbl := st.scm.TableNamed(table)
	if tbl == nil {
		return fmt.Errorf("kvstore: remove: no table %q", table)
	}
	encID, err := encodeKey(id)
	if err != nil {
		return err
	}
	tx, err := st.stg.BeginTx(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	buck := tx.Bucket(dataRoot, tbl.Name())
	data := buck.Get(encID)
	if data == nil {
		return tx.Commit() // unknown ids are not an error
	}
	row, err := decodeRow(data)
	if err != nil {
		return err
	}
	if err := deleteIndexEntries(tx, tbl, row, encID); err != nil {
		return err
	}
	if err := buck.Delete(encID); err != nil {
		return err
	}
	return tx.Commit()
}

func (st *store) Table(name string) lazydb.StoreTable {
	return &storeTable{st: st, name: name}
}

type storeTable struct {
	st   *store
	name string
}

func (t *storeTable) Add(row lazydb.Record) (any, error) {
	tbl := t.st.scm.TableNamed(t.name)
	if tbl == nil {
		return nil, fmt.Errorf("kvstore: add: no table %q", t.name)
	}
	id := row[lazydb.KeyField]
	if id == nil || id == "" {
		id = uuid.NewString()
	}
	row = row.Clone()
	row[lazydb.KeyField] = id

	encID, err := encodeKey(id)
	if err != nil {
		return nil, err
	}
	data, err := encodeRow(row)
	if err != nil {
		return nil, err
	}

	tx, err := t.st.stg.BeginTx(true)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	buck := tx.Bucket(dataRoot, tbl.Name())
	if old := buck.Get(encID); old != nil {
		oldRow, err := decodeRow(old)
		if err != nil {
			return nil, err
		}
		if err := deleteIndexEntries(tx, tbl, oldRow, encID); err != nil {
			return nil, err
		}
	}
	if err := buck.Put(encID, data); err != nil {
		return nil, err
	}
	if err := putIndexEntries(tx, tbl, row, encID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return id, nil
}

func (t *storeTable) Query() lazydb.NativeQuery {
	return &nativeQuery{st: t.st, table: t.name}
}

func encodeRow(row lazydb.Record) ([]byte, error) {
	data, err := msgpack.Marshal(map[string]any(row))
	if err != nil {
		return nil, fmt.Errorf("kvstore: encode row: %w", err)
	}
	return data, nil
}

// decodeRow unmarshals a stored row and canonicalizes its values (numbers
// come back as float64 regardless of what was written).
func decodeRow(data []byte) (lazydb.Record, error) {
	var row lazydb.Record
	if err := msgpack.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("kvstore: decode row: %w", err)
	}
	for k, v := range row {
		row[k] = canonicalizeValue(v)
	}
	return row, nil
}

// putIndexEntries records the keys contributed by a row. Absent and nil
// fields contribute nothing, like unset keys in other indexed stores.
func putIndexEntries(tx storageTx, tbl *lazydb.Table, row lazydb.Record, encID []byte) error {
	for _, field := range tbl.Indexes() {
		v, ok := row[field]
		if !ok || v == nil {
			continue
		}
		encVal, err := encodeKey(v)
		if err != nil {
			return err
		}
		buck := tx.Bucket(indexRoot, indexSub(tbl.Name(), field))
		if err := buck.Put(indexEntryKey(encVal, encID), encID); err != nil {
			return err
		}
	}
	return nil
}

func deleteIndexEntries(tx storageTx, tbl *lazydb.Table, row lazydb.Record, encID []byte) error {
	for _, field := range tbl.Indexes() {
		v, ok := row[field]
		if !ok || v == nil {
			continue
		}
		encVal, err := encodeKey(v)
		if err != nil {
			return err
		}
		buck := tx.Bucket(indexRoot, indexSub(tbl.Name(), field))
		if err := buck.Delete(indexEntryKey(encVal, encID)); err != nil {
			return err
		}
	}
	return nil
}
