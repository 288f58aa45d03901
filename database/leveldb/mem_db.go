package leveldb

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
)

func init() {
	registerDBCreator(MemDBBackend, func(name string, dir string, cacheSize int) (DB, error) {
		return NewMemDB(), nil
	}, false)
}

var _ DB = (*MemDB)(nil)

// MemDB is an in-memory DB used in tests. Iterators snapshot the key set
// at creation time.
type MemDB struct {
	mtx sync.Mutex
	db  map[string][]byte
}

// NewMemDB returns an empty in-memory store.
func NewMemDB() *MemDB {
	return &MemDB{db: make(map[string][]byte)}
}

func (db *MemDB) Get(key []byte) []byte {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	return cp(db.db[string(key)])
}

func (db *MemDB) Exists(key []byte) bool {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	_, ok := db.db[string(key)]
	return ok
}

func (db *MemDB) Set(key []byte, value []byte) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	db.db[string(key)] = cp(value)
}

func (db *MemDB) SetSync(key []byte, value []byte) {
	db.Set(key, value)
}

func (db *MemDB) Delete(key []byte) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	delete(db.db, string(key))
}

func (db *MemDB) DeleteSync(key []byte) {
	db.Delete(key)
}

func (db *MemDB) Close() {
	// Close is a noop since for an in-memory database, we don't have a destination
	// to flush contents to nor do we want any data loss on invoking Close()
}

func (db *MemDB) CompactRange(start, limit []byte) {}

func (db *MemDB) EstimateSize(start, limit []byte) uint64 {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	var total uint64
	for k, v := range db.db {
		if inRange([]byte(k), start, limit) {
			total += uint64(len(k) + len(v))
		}
	}
	return total
}

func (db *MemDB) Print() {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	for key, value := range db.db {
		fmt.Printf("[%X]:\t[%X]\n", []byte(key), value)
	}
}

func (db *MemDB) Stats() map[string]string {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	return map[string]string{
		"database.type": "memdb",
		"database.size": fmt.Sprintf("%d", len(db.db)),
	}
}

func (db *MemDB) Iterator() Iterator {
	return db.IteratorRange(nil, nil)
}

func (db *MemDB) IteratorPrefix(prefix []byte) Iterator {
	var limit []byte
	if len(prefix) > 0 {
		limit = prefixLimit(prefix)
	}
	return db.IteratorRange(prefix, limit)
}

func (db *MemDB) IteratorRange(start, limit []byte) Iterator {
	db.mtx.Lock()
	defer db.mtx.Unlock()

	keys := make([]string, 0, len(db.db))
	for k := range db.db {
		if inRange([]byte(k), start, limit) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = cp(db.db[k])
	}
	return &memDBIterator{keys: keys, values: values, cur: -1}
}

func inRange(key, start, limit []byte) bool {
	if start != nil && bytes.Compare(key, start) < 0 {
		return false
	}
	if limit != nil && bytes.Compare(key, limit) >= 0 {
		return false
	}
	return true
}

// prefixLimit returns the smallest key greater than every key with the
// given prefix, or nil if no such key exists.
func prefixLimit(prefix []byte) []byte {
	limit := cp(prefix)
	for i := len(limit) - 1; i >= 0; i-- {
		if limit[i] < 0xff {
			limit[i]++
			return limit[:i+1]
		}
	}
	return nil
}

type memDBIterator struct {
	keys   []string
	values [][]byte
	cur    int
}

func (it *memDBIterator) Next() bool {
	it.cur++
	return it.cur < len(it.keys)
}

func (it *memDBIterator) Key() []byte {
	return []byte(it.keys[it.cur])
}

func (it *memDBIterator) Value() []byte {
	return it.values[it.cur]
}

func (it *memDBIterator) Release() {}

func (it *memDBIterator) Error() error { return nil }

type memDBBatch struct {
	db  *MemDB
	ops []memDBOp
}

type memDBOp struct {
	del   bool
	key   []byte
	value []byte
}

func (db *MemDB) NewBatch() Batch {
	return &memDBBatch{db: db}
}

func (b *memDBBatch) Set(key, value []byte) {
	b.ops = append(b.ops, memDBOp{key: cp(key), value: cp(value)})
}

func (b *memDBBatch) Delete(key []byte) {
	b.ops = append(b.ops, memDBOp{del: true, key: cp(key)})
}

func (b *memDBBatch) Write() error {
	b.db.mtx.Lock()
	defer b.db.mtx.Unlock()
	for _, op := range b.ops {
		if op.del {
			delete(b.db.db, string(op.key))
		} else {
			b.db.db[string(op.key)] = op.value
		}
	}
	return nil
}

func (b *memDBBatch) WriteSync() error {
	return b.Write()
}

func (b *memDBBatch) SizeEstimate() int {
	size := batchHeaderSize
	for _, op := range b.ops {
		size += len(op.key) + len(op.value) + batchRecordSize
	}
	return size
}

func (b *memDBBatch) Clear() {
	b.ops = nil
}
