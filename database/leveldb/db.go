package leveldb

import "fmt"

// DB is a persistent ordered key-value store with atomic batched writes.
// All non-batch write methods apply immediately. Keys and values are
// copied by implementations, callers may reuse their buffers.
type DB interface {
	Get(key []byte) []byte
	Exists(key []byte) bool
	Set(key, value []byte)
	SetSync(key, value []byte)
	Delete(key []byte)
	DeleteSync(key []byte)
	Close()
	NewBatch() Batch
	Iterator() Iterator
	IteratorPrefix(prefix []byte) Iterator
	IteratorRange(start, limit []byte) Iterator
	CompactRange(start, limit []byte)
	EstimateSize(start, limit []byte) uint64
	Print()
	Stats() map[string]string
}

// Batch accumulates sets and deletes and applies them atomically.
type Batch interface {
	Set(key, value []byte)
	Delete(key []byte)
	Write() error
	WriteSync() error
	SizeEstimate() int
	Clear()
}

// Iterator is a forward-only cursor reflecting a snapshot of the store as
// of its creation. The pattern is:
//
//	for iter.Next() { k, v := iter.Key(), iter.Value() }
//	iter.Release()
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

type dbCreator func(name string, dir string, cacheSize int) (DB, error)

const (
	// LevelDBBackend is the on-disk goleveldb backend.
	LevelDBBackend = "leveldb"
	// MemDBBackend is an in-memory backend used in tests.
	MemDBBackend = "memdb"
)

var backends = map[string]dbCreator{}

func registerDBCreator(backend string, creator dbCreator, force bool) {
	if _, ok := backends[backend]; ok && !force {
		return
	}
	backends[backend] = creator
}

// NewDB opens (creating if necessary) the named database with the given
// backend under dir.
func NewDB(name string, backend string, dir string) DB {
	return NewDBWithCache(name, backend, dir, 0)
}

// NewDBWithCache is NewDB with an explicit block-cache budget in bytes.
// Zero means the backend default.
func NewDBWithCache(name string, backend string, dir string, cacheSize int) DB {
	creator, ok := backends[backend]
	if !ok {
		panic(fmt.Sprintf("unknown db backend: %s", backend))
	}

	db, err := creator(name, dir, cacheSize)
	if err != nil {
		panic(fmt.Sprintf("error initializing db: %v", err))
	}
	return db
}
