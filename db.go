package lazydb

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// State is the lifecycle state of a database handle. Transitions are
// monotonic: Opening → Initialized or FailedToInitialize, Initialized →
// Closed. Closed and FailedToInitialize are absorbing.
type State int32

const (
	StateOpening State = iota
	StateInitialized
	StateFailedToInitialize
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateInitialized:
		return "initialized"
	case StateFailedToInitialize:
		return "failed-to-initialize"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Options struct {
	// Name and Suffix identify the handle in logs and metrics. Suffix
	// distinguishes parallel instances of the same logical database.
	Name   string
	Suffix string

	// Logger is the parent logger; the handle derives a child carrying the
	// db identity. Nil means slog.Default().
	Logger *slog.Logger

	// Plugins maps plugin names to constructors. Nil picks the default set:
	// the built-in crypt plugin when Crypt is configured, none otherwise.
	// An explicitly empty map disables plugins.
	Plugins map[string]PluginFunc

	// Crypt configures the built-in field-encryption plugin.
	Crypt CryptOptions
}

// DB is a database handle. The constructor kicks off the asynchronous
// store open; every public operation waits on the readiness gate until the
// open succeeds or fails.
type DB struct {
	name   string
	suffix string
	schema *Schema
	store  Store
	events *Events
	logger *slog.Logger

	plugins *xsync.MapOf[string, Plugin]

	state    atomic.Int32
	openDone chan struct{}
	openErr  error // written once, before openDone closes

	metrics *metrics.Set
}

// Open creates a handle and starts opening the store in the background.
// It never blocks; construction problems (a plugin constructor failing)
// surface as FailedToInitialize exactly like a store open failure.
func Open(store Store, schema *Schema, opt Options) *DB {
	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}
	db := &DB{
		name:     opt.Name,
		suffix:   opt.Suffix,
		schema:   schema,
		store:    store,
		events:   newEvents(),
		logger:   logger.With(slog.String("db", opt.Name+opt.Suffix)),
		plugins:  xsync.NewMapOf[string, Plugin](),
		openDone: make(chan struct{}),
		metrics:  metrics.NewSet(),
	}

	constructors := opt.Plugins
	if constructors == nil {
		constructors = defaultPlugins(opt)
	}
	for name, fn := range constructors {
		p, err := fn(db)
		if err != nil {
			db.failOpen(fmt.Errorf("lazydb: plugin %s: %w", name, err))
			return db
		}
		db.plugins.Store(name, p)
	}

	go db.open()
	return db
}

func (db *DB) open() {
	err := db.store.Open(db.schema)
	if err != nil {
		db.failOpen(fmt.Errorf("lazydb: open: %w", err))
		return
	}
	db.state.Store(int32(StateInitialized))
	close(db.openDone)
	db.logger.Debug("db open")
}

func (db *DB) failOpen(err error) {
	db.openErr = err
	db.state.Store(int32(StateFailedToInitialize))
	close(db.openDone)
	db.logger.Error("db failed to initialize", slog.Any("err", err))
}

// gate blocks until the handle is usable. Absorbing states fail fast
// without waiting; an open failure propagates its cause to every waiter.
func (db *DB) gate() error {
	switch db.State() {
	case StateClosed:
		return ErrDatabaseClosed
	case StateFailedToInitialize:
		return fmt.Errorf("%w: %w", ErrDatabaseFailed, db.openErr)
	case StateInitialized:
		return nil
	}
	<-db.openDone
	switch db.State() {
	case StateInitialized:
		return nil
	case StateClosed:
		return ErrDatabaseClosed
	default:
		return fmt.Errorf("%w: %w", ErrDatabaseFailed, db.openErr)
	}
}

func (db *DB) Name() string {
	return db.name
}

func (db *DB) Suffix() string {
	return db.suffix
}

func (db *DB) Schema() *Schema {
	return db.schema
}

func (db *DB) State() State {
	return State(db.state.Load())
}

// Events exposes the handle's dispatcher so plugins and observers can
// subscribe without the handle knowing about them.
func (db *DB) Events() *Events {
	return db.events
}

// Plugin returns a constructed plugin by name, or nil.
func (db *DB) Plugin(name string) Plugin {
	p, _ := db.plugins.Load(name)
	return p
}

// WritePrometheus dumps the handle's operation counters.
func (db *DB) WritePrometheus(w io.Writer) {
	db.metrics.WritePrometheus(w)
}

// run wraps a record operation with the readiness gate, the observer
// events and the metrics counters. Observer events carry the operation's
// arguments (onBefore) and arguments plus result and error (onAfter); they
// cannot alter the outcome.
func (db *DB) run(op string, args []any, fn func() (any, error)) (any, error) {
	if err := db.gate(); err != nil {
		return nil, err
	}
	db.counter("lazydb_ops_total", op).Inc()
	db.events.Emit("onBefore"+op, args...)
	result, err := fn()
	after := make([]any, 0, len(args)+2)
	after = append(after, args...)
	after = append(after, result, err)
	db.events.Emit("onAfter"+op, after...)
	if err != nil {
		db.counter("lazydb_op_errors_total", op).Inc()
	}
	return result, err
}

func (db *DB) counter(name, op string) *metrics.Counter {
	return db.metrics.GetOrCreateCounter(fmt.Sprintf(`%s{db=%q,op=%q}`, name, db.name+db.suffix, op))
}
