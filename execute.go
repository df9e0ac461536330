package lazydb

// Execute replays the queued operations against a fresh native query
// handle in the staged order documented on the package, then runs the
// query and normalizes its raw result: holes (nil entries left by dropped
// or suppressed rows) are filtered out of a non-empty result, while a
// zero-length result is returned verbatim, preserving the store's
// empty-result shape.
//
// Execute waits on the readiness gate like every other operation.
func (q *QuerySet) Execute() ([]any, error) {
	if err := q.db.gate(); err != nil {
		return nil, err
	}
	if q.consumed {
		return nil, ErrQueryConsumed
	}
	q.consumed = true

	ev := q.db.events
	nq := q.db.store.Table(q.table).Query()

	// Stage (a): range selection, in insertion order.
	for i := range q.ops {
		op := &q.ops[i]
		if op.dequeued || !op.kind.rangeStage() {
			continue
		}
		op.dequeued = true
		q.applyRange(nq, op)
	}

	// Stage (b): coerce to general form if no range op resolved the index.
	if !nq.Generalized() {
		nq.Generalize()
	}

	// Stage (c): shaping, in insertion order.
	for i := range q.ops {
		op := &q.ops[i]
		if op.dequeued || !op.kind.shapingStage() {
			continue
		}
		op.dequeued = true
		q.applyShaping(nq, op)
	}

	// Stage (d): system read transform. Runs read hooks per fetched row;
	// a dropped row becomes a hole. Items that are not records (keys mode,
	// for one) pass through untouched.
	table := q.table
	nq.Map(func(item any) any {
		row, ok := item.(Record)
		if !ok {
			return item
		}
		if row = ev.applyRead(table, row); row == nil {
			return nil
		}
		return row
	})

	// Stage (e): user map ops.
	for i := range q.ops {
		op := &q.ops[i]
		if op.dequeued || op.kind != opMap {
			continue
		}
		op.dequeued = true
		nq.Map(op.args[0].(func(item any) any))
	}

	// Stage (f): modify.
	for i := range q.ops {
		op := &q.ops[i]
		if op.dequeued || op.kind != opModify {
			continue
		}
		op.dequeued = true
		changes := cloneRecordDeep(asRecord(op.args[0]))
		nq.Modify(ev.rewriteModify(table, changes))
	}

	raw, err := nq.Execute()
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return raw, nil
	}
	result := make([]any, 0, len(raw))
	for _, item := range raw {
		if item == nil {
			continue
		}
		result = append(result, item)
	}
	return result, nil
}

func (q *QuerySet) applyRange(nq NativeQuery, op *operation) {
	switch op.kind {
	case opAll:
		nq.All()
	case opFilter:
		// Interceptors mutate a private clone; the caller's args survive.
		field, value := q.db.events.rewriteFilter(q.table, op.args[0].(string), cloneValue(op.args[1]))
		nq.Filter(field, value)
	case opOnly:
		nq.Only(op.args[0])
	case opBound:
		nq.Bound(op.args[0], op.args[1], op.args[2].(bool), op.args[3].(bool))
	case opLowerBound:
		nq.LowerBound(op.args[0], op.args[1].(bool))
	case opUpperBound:
		nq.UpperBound(op.args[0], op.args[1].(bool))
	}
}

func (q *QuerySet) applyShaping(nq NativeQuery, op *operation) {
	switch op.kind {
	case opDistinct:
		nq.Distinct()
	case opDesc:
		nq.Desc()
	case opKeys:
		nq.Keys()
	case opLimit:
		nq.Limit(op.args[0].(int))
	}
}

func asRecord(v any) Record {
	switch v := v.(type) {
	case Record:
		return v
	case map[string]any:
		return Record(v)
	default:
		return nil
	}
}
