package lazydb

import "sync"

// Handler observes a named event. Handlers run synchronously, in
// registration order, and must not assume anything about the caller's
// goroutine.
type Handler func(args ...any)

// FilterRewrite intercepts a dequeued filter op. It receives a private
// clone of the caller's arguments and returns the (possibly rewritten)
// field and value to forward to the store.
type FilterRewrite func(table, field string, value any) (string, any)

// ModifyRewrite intercepts a dequeued modify op. changes is a private
// clone; the returned record is what the store sees.
type ModifyRewrite func(table string, changes Record) Record

// ReadDecision is what a ReadHook decides about a fetched row.
type ReadDecision int

const (
	// ReadKeep passes the row through unchanged.
	ReadKeep ReadDecision = iota
	// ReadDrop suppresses the row; it never reaches the result sequence.
	ReadDrop
	// ReadReplace substitutes the returned record for the row.
	ReadReplace
)

// ReadHook runs once per row fetched from the store. The replacement
// record is ignored unless the decision is ReadReplace.
type ReadHook func(table string, row Record) (ReadDecision, Record)

// Events is the dispatcher owned by a database handle. Record operations
// emit onBefore<Op> and onAfter<Op> around every call; the query executor
// invokes the typed pipeline hooks at its designated stages.
type Events struct {
	mu             sync.Mutex
	handlers       map[string][]Handler
	filterRewrites []FilterRewrite
	modifyRewrites []ModifyRewrite
	readHooks      []ReadHook
}

func newEvents() *Events {
	return &Events{handlers: make(map[string][]Handler)}
}

// On subscribes a handler to a named event.
func (ev *Events) On(event string, h Handler) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.handlers[event] = append(ev.handlers[event], h)
}

// Emit invokes every handler of the event synchronously, in registration
// order. Observer events must not alter operation results; they carry the
// operation's arguments (onBefore) or arguments plus result and error
// (onAfter).
func (ev *Events) Emit(event string, args ...any) {
	ev.mu.Lock()
	handlers := ev.handlers[event]
	ev.mu.Unlock()
	for _, h := range handlers {
		h(args...)
	}
}

// OnFilterQuery registers a filter-argument rewrite.
func (ev *Events) OnFilterQuery(fn FilterRewrite) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.filterRewrites = append(ev.filterRewrites, fn)
}

// OnModifyQuery registers a modify-argument rewrite.
func (ev *Events) OnModifyQuery(fn ModifyRewrite) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.modifyRewrites = append(ev.modifyRewrites, fn)
}

// OnRead registers a per-row read hook.
func (ev *Events) OnRead(fn ReadHook) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.readHooks = append(ev.readHooks, fn)
}

func (ev *Events) rewriteFilter(table, field string, value any) (string, any) {
	ev.mu.Lock()
	rewrites := ev.filterRewrites
	ev.mu.Unlock()
	for _, fn := range rewrites {
		field, value = fn(table, field, value)
	}
	return field, value
}

func (ev *Events) rewriteModify(table string, changes Record) Record {
	ev.mu.Lock()
	rewrites := ev.modifyRewrites
	ev.mu.Unlock()
	for _, fn := range rewrites {
		changes = fn(table, changes)
	}
	return changes
}

// applyRead runs the read hooks over a row. Returns nil if a hook dropped
// the row; the first ReadDrop wins and later hooks never see the row.
func (ev *Events) applyRead(table string, row Record) Record {
	ev.mu.Lock()
	hooks := ev.readHooks
	ev.mu.Unlock()
	for _, fn := range hooks {
		decision, replacement := fn(table, row)
		switch decision {
		case ReadDrop:
			return nil
		case ReadReplace:
			row = replacement
		}
	}
	return row
}
