package kvstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreyvit/lazydb"
)

func seedPosts(t testing.TB, st *store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := st.Table("posts").Add(lazydb.Record{"id": id})
		require.NoError(t, err)
	}
}

func execute(t testing.TB, nq lazydb.NativeQuery) []any {
	t.Helper()
	rows, err := nq.Execute()
	require.NoError(t, err)
	return rows
}

func keysOf(rows []any) []any {
	out := make([]any, len(rows))
	for i, item := range rows {
		if row, ok := item.(lazydb.Record); ok {
			out[i] = row.ID()
		} else {
			out[i] = item
		}
	}
	return out
}

func TestQueryAll(t *testing.T) {
	st := openTestStore(t)
	seedPosts(t, st, "c", "a", "b")

	nq := st.Table("posts").Query()
	nq.All()
	assert.Equal(t, []any{"a", "b", "c"}, keysOf(execute(t, nq)))
}

func TestQueryOnly(t *testing.T) {
	st := openTestStore(t)
	seedPosts(t, st, "a", "b", "c")

	nq := st.Table("posts").Query()
	nq.Only("b")
	assert.Equal(t, []any{"b"}, keysOf(execute(t, nq)))

	nq = st.Table("posts").Query()
	nq.Only("nope")
	assert.Empty(t, execute(t, nq))
}

func TestQueryBounds(t *testing.T) {
	st := openTestStore(t)
	seedPosts(t, st, "a", "b", "c", "d")

	nq := st.Table("posts").Query()
	nq.Bound("b", "d", false, false)
	assert.Equal(t, []any{"b", "c", "d"}, keysOf(execute(t, nq)))

	nq = st.Table("posts").Query()
	nq.Bound("b", "d", true, true)
	assert.Equal(t, []any{"c"}, keysOf(execute(t, nq)))

	nq = st.Table("posts").Query()
	nq.LowerBound("c", false)
	assert.Equal(t, []any{"c", "d"}, keysOf(execute(t, nq)))

	nq = st.Table("posts").Query()
	nq.LowerBound("c", true)
	assert.Equal(t, []any{"d"}, keysOf(execute(t, nq)))

	nq = st.Table("posts").Query()
	nq.UpperBound("b", false)
	assert.Equal(t, []any{"a", "b"}, keysOf(execute(t, nq)))

	nq = st.Table("posts").Query()
	nq.UpperBound("b", true)
	assert.Equal(t, []any{"a"}, keysOf(execute(t, nq)))
}

func TestQueryFilterOnPrimaryKey(t *testing.T) {
	st := openTestStore(t)
	seedPosts(t, st, "a", "b")

	nq := st.Table("posts").Query()
	nq.Filter("id", "b")
	assert.Equal(t, []any{"b"}, keysOf(execute(t, nq)))
}

func TestQueryFilterViaIndex(t *testing.T) {
	st := openTestStore(t)
	tbl := st.Table("users")
	for i, email := range []string{"a@x", "b@x", "a@x"} {
		_, err := tbl.Add(lazydb.Record{"id": string(rune('1' + i)), "email": email, "age": float64(i)})
		require.NoError(t, err)
	}

	nq := tbl.Query()
	nq.Filter("email", "a@x")
	assert.Equal(t, []any{"1", "3"}, keysOf(execute(t, nq)))

	// Additional filters become scan predicates on the index matches.
	nq = tbl.Query()
	nq.Filter("email", "a@x")
	nq.Filter("age", 2)
	assert.Equal(t, []any{"3"}, keysOf(execute(t, nq)))
}

func TestQueryFilterPredicateCanonicalizes(t *testing.T) {
	st := openTestStore(t)
	_, err := st.Table("posts").Add(lazydb.Record{"id": "p1", "n": 42})
	require.NoError(t, err)

	// Stored as msgpack int, decoded as float64, filtered by Go int.
	nq := st.Table("posts").Query()
	nq.All()
	nq.Filter("n", 42)
	assert.Equal(t, []any{"p1"}, keysOf(execute(t, nq)))
}

func TestQueryDescLimitKeys(t *testing.T) {
	st := openTestStore(t)
	seedPosts(t, st, "a", "b", "c", "d")

	nq := st.Table("posts").Query()
	nq.All()
	nq.Desc()
	nq.Limit(2)
	nq.Keys()
	assert.Equal(t, []any{"d", "c"}, execute(t, nq))
}

func TestQueryDescBounds(t *testing.T) {
	st := openTestStore(t)
	seedPosts(t, st, "a", "b", "c", "d")

	nq := st.Table("posts").Query()
	nq.Bound("b", "d", false, false)
	nq.Desc()
	assert.Equal(t, []any{"d", "c", "b"}, keysOf(execute(t, nq)))

	nq = st.Table("posts").Query()
	nq.Bound("a", "d", true, true)
	nq.Desc()
	assert.Equal(t, []any{"c", "b"}, keysOf(execute(t, nq)))

	nq = st.Table("posts").Query()
	nq.UpperBound("c", false)
	nq.Desc()
	assert.Equal(t, []any{"c", "b", "a"}, keysOf(execute(t, nq)))

	nq = st.Table("posts").Query()
	nq.LowerBound("b", false)
	nq.Desc()
	assert.Equal(t, []any{"d", "c", "b"}, keysOf(execute(t, nq)))
}

func TestQueryDescViaIndex(t *testing.T) {
	st := openTestStore(t)
	tbl := st.Table("users")
	for _, pair := range [][2]string{{"u1", "a@x"}, {"u2", "a@x"}, {"u3", "b@x"}} {
		_, err := tbl.Add(lazydb.Record{"id": pair[0], "email": pair[1]})
		require.NoError(t, err)
	}

	nq := tbl.Query()
	nq.Filter("email", "a@x")
	nq.Desc()
	assert.Equal(t, []any{"u2", "u1"}, keysOf(execute(t, nq)))
}

func TestPrefixSuccessor(t *testing.T) {
	assert.Equal(t, []byte{0x01, 0x03}, prefixSuccessor([]byte{0x01, 0x02}))
	assert.Equal(t, []byte{0x02}, prefixSuccessor([]byte{0x01, 0xff}))
	assert.Nil(t, prefixSuccessor([]byte{0xff, 0xff}))
}

func TestQueryDistinctOnIndexScan(t *testing.T) {
	st := openTestStore(t)
	tbl := st.Table("users")
	for _, id := range []string{"u1", "u2", "u3"} {
		_, err := tbl.Add(lazydb.Record{"id": id, "email": "dup@x"})
		require.NoError(t, err)
	}

	nq := tbl.Query()
	nq.Filter("email", "dup@x")
	nq.Distinct()
	assert.Len(t, execute(t, nq), 1)
}

func TestQueryMapDropsLeaveHoles(t *testing.T) {
	st := openTestStore(t)
	seedPosts(t, st, "a", "b")

	nq := st.Table("posts").Query()
	nq.All()
	nq.Map(func(item any) any {
		if item.(lazydb.Record).ID() == "a" {
			return nil
		}
		return item
	})
	rows := execute(t, nq)
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0])
	assert.Equal(t, "b", rows[1].(lazydb.Record).ID())
}

func TestQueryModifyPersistsAndReindexes(t *testing.T) {
	st := openTestStore(t)
	tbl := st.Table("users")
	_, err := tbl.Add(lazydb.Record{"id": "u1", "email": "old@x"})
	require.NoError(t, err)

	nq := tbl.Query()
	nq.Filter("email", "old@x")
	nq.Modify(lazydb.Record{"email": "new@x", "flag": true})
	rows := execute(t, nq)
	require.Len(t, rows, 1)
	assert.Equal(t, "new@x", rows[0].(lazydb.Record)["email"])

	nq = tbl.Query()
	nq.Filter("email", "old@x")
	assert.Empty(t, execute(t, nq))

	nq = tbl.Query()
	nq.Filter("email", "new@x")
	rows = execute(t, nq)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0].(lazydb.Record)["flag"])
	assert.Equal(t, 1, indexCount(t, st, "users", "email"))
}

func TestQueryModifyIgnoresPrimaryKeyChange(t *testing.T) {
	st := openTestStore(t)
	seedPosts(t, st, "p1")

	nq := st.Table("posts").Query()
	nq.All()
	nq.Modify(lazydb.Record{"id": "hijack", "x": 1})
	execute(t, nq)

	nq = st.Table("posts").Query()
	nq.All()
	assert.Equal(t, []any{"p1"}, keysOf(execute(t, nq)))
}

func TestQueryModifySkipsDroppedRows(t *testing.T) {
	st := openTestStore(t)
	seedPosts(t, st, "a", "b")

	nq := st.Table("posts").Query()
	nq.All()
	nq.Map(func(item any) any {
		if item.(lazydb.Record).ID() == "a" {
			return nil
		}
		return item
	})
	nq.Modify(lazydb.Record{"seen": true})
	execute(t, nq)

	nq = st.Table("posts").Query()
	nq.All()
	rows := execute(t, nq)
	require.Len(t, rows, 2)
	for _, item := range rows {
		row := item.(lazydb.Record)
		if row.ID() == "a" {
			assert.Nil(t, row["seen"], "dropped row must stay unmodified")
		} else {
			assert.Equal(t, true, row["seen"])
		}
	}
}

func TestQueryModifyWithKeysOnly(t *testing.T) {
	st := openTestStore(t)
	seedPosts(t, st, "p1")

	nq := st.Table("posts").Query()
	nq.All()
	nq.Keys()
	nq.Modify(lazydb.Record{"x": 1})
	assert.Equal(t, []any{"p1"}, execute(t, nq))

	nq = st.Table("posts").Query()
	nq.All()
	rows := execute(t, nq)
	require.Len(t, rows, 1)
	assert.Equal(t, float64(1), rows[0].(lazydb.Record)["x"])
}

func TestQueryBuilderErrorsAreDeferred(t *testing.T) {
	st := openTestStore(t)

	nq := st.Table("posts").Query()
	nq.Desc() // shaping before any range selection
	_, err := nq.Execute()
	assert.Error(t, err)

	nq = st.Table("posts").Query()
	nq.All()
	nq.Only("x") // range selection after generalization
	_, err = nq.Execute()
	assert.Error(t, err)

	nq = st.Table("posts").Query()
	nq.All()
	nq.Limit(-1)
	_, err = nq.Execute()
	assert.Error(t, err)

	nq = st.Table("posts").Query()
	nq.All()
	nq.Filter("k", struct{}{}) // unusable predicate value is fine until matched
	_, err = nq.Execute()
	assert.NoError(t, err)
}

func TestQueryUnknownTable(t *testing.T) {
	st := openTestStore(t)
	nq := st.Table("nope").Query()
	nq.All()
	_, err := nq.Execute()
	assert.Error(t, err)
}
