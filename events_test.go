package lazydb

import "testing"

func TestEmitOrder(t *testing.T) {
	ev := newEvents()
	var log []string
	ev.On("onBeforeAdd", func(args ...any) { log = append(log, "first") })
	ev.On("onBeforeAdd", func(args ...any) { log = append(log, "second") })
	ev.On("other", func(args ...any) { log = append(log, "other") })

	ev.Emit("onBeforeAdd", "users")
	deepEqual(t, log, []string{"first", "second"})

	ev.Emit("unsubscribed") // no handlers, no panic
}

func TestEmitArgs(t *testing.T) {
	ev := newEvents()
	var got []any
	ev.On("onAfterGet", func(args ...any) { got = append([]any(nil), args...) })
	ev.Emit("onAfterGet", "users", 7, nil)
	deepEqual(t, got, []any{"users", 7, nil})
}

func TestFilterRewriteChain(t *testing.T) {
	ev := newEvents()
	ev.OnFilterQuery(func(table, field string, value any) (string, any) {
		return field, value.(int) + 1
	})
	ev.OnFilterQuery(func(table, field string, value any) (string, any) {
		return field + "_enc", value
	})

	field, value := ev.rewriteFilter("users", "age", 41)
	deepEqual(t, field, "age_enc")
	deepEqual(t, value.(int), 42)
}

func TestModifyRewriteChain(t *testing.T) {
	ev := newEvents()
	ev.OnModifyQuery(func(table string, changes Record) Record {
		changes["a"] = "x"
		return changes
	})
	ev.OnModifyQuery(func(table string, changes Record) Record {
		return Record{"replaced": true}
	})

	out := ev.rewriteModify("users", Record{})
	deepEqual(t, out, Record{"replaced": true})
}

func TestReadHookDecisions(t *testing.T) {
	ev := newEvents()
	var afterDropRan bool
	ev.OnRead(func(table string, row Record) (ReadDecision, Record) {
		if row["secret"] == true {
			return ReadDrop, nil
		}
		return ReadReplace, Record{"replaced": row["id"]}
	})
	ev.OnRead(func(table string, row Record) (ReadDecision, Record) {
		afterDropRan = true
		return ReadKeep, nil
	})

	out := ev.applyRead("users", Record{"id": 1})
	deepEqual(t, out, Record{"replaced": 1})
	if !afterDropRan {
		t.Fatalf("second hook must run after a replace")
	}

	afterDropRan = false
	out = ev.applyRead("users", Record{"secret": true})
	if out != nil {
		t.Fatalf("dropped row must come back nil, got %v", out)
	}
	if afterDropRan {
		t.Fatalf("first drop wins; later hooks must not see the row")
	}
}
