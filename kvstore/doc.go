/*
Package kvstore implements the lazydb store collaborator on top of a
pluggable low-level key-value storage (Bolt or in-memory).

**Buckets.**
We rely on scoped namespaces for keys called buckets. Bolt supports them
natively; the in-memory backend simulates them with a prefixed map. Each
table gets a data bucket, and each indexed field gets an index bucket.

**Data bucket** ("data", table): encoded primary key → msgpack of the row.

**Index bucket** ("index", table.field): length-prefixed encoded field
value, then encoded primary key → encoded primary key. The length prefix
groups entries of one value contiguously without separator ambiguity, so
equality scans are plain prefix scans.

**Key encoding.**
Scalars are canonicalized (integers and floats to float64, everything else
to string or bool) and encoded with a type tag byte followed by an
order-preserving payload: strings as raw bytes, numbers as sign-flipped
big-endian float64 bits. Byte order of encoded keys matches value order
within a type, which is what the primary-key range scans rely on.

**Queries.**
The native query handle starts in index-selection form. A filter on an
indexed field resolves to an index bucket scan; any other range op resolves
to a primary-key range over the data bucket; remaining filters become scan
predicates. Shaping, map transforms and modify run per matched row inside
a single storage transaction (writable only when a modify is queued).
*/
package kvstore
