/*
Package lazydb implements a record-oriented convenience layer on top of an
asynchronous, indexed key-value store.

We implement:

1. A database handle with record-level CRUD (Add, Update, Remove, RemoveBy,
RemoveMatching, Get, Clear, Drop, Close) delegating to a pluggable store.

2. A deferred query builder (Query → QuerySet → Execute) that accumulates
operations without touching the store, then replays them in a fixed staged
order against the store's native query primitive.

3. A readiness gate: the store opens asynchronously, and every public
operation transparently waits for the open to succeed or fail, so callers
cannot observe whether the database was already open. Closed and
failed-to-initialize are absorbing states that fail every later call fast.

4. An event dispatcher with onBefore/onAfter observer events for each public
operation, plus interception points inside the query pipeline: FilterQuery
and ModifyQuery rewrites see (and may replace) cloned query arguments before
the store does, and Read hooks see every fetched row and decide to keep,
drop, or replace it. This is how plugins such as transparent field
encryption work without the handle knowing about them.

# Execution order

The store's native query primitive only accepts range selection while the
handle is in index-selection form, and only accepts shaping, transform and
mutation calls once that handle is generalized. Execute therefore replays
queued operations in stages rather than in call order:

1. Range selection: all, filter, only, bound, upperBound, lowerBound.
Every queued filter is consumed here, in insertion order; the first may
resolve an index, the rest become scan predicates on the generalized
handle.

2. Generalize the native handle if no range op already did.

3. Shaping: distinct, desc, keys, limit.

4. A system-injected read transform that runs Read hooks per row.

5. User map ops.

6. modify.

So .Filter(...).Modify(...) and .Modify(...).Filter(...) build identical
pipelines. Each queued op is dequeued at most once, same-named ops keeping
their insertion order. A QuerySet is single-use: a second Execute returns
ErrQueryConsumed.

# Rows

Rows are Record values (map[string]any) keyed by "id". Keys starting with
"_" are private properties: stripped from stored copies, usable by callers
and plugins for transient bookkeeping.
*/
package lazydb
