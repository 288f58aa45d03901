package leveldb

import (
	"fmt"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

func init() {
	registerDBCreator(LevelDBBackend, func(name string, dir string, cacheSize int) (DB, error) {
		return NewGoLevelDB(name, dir, cacheSize)
	}, false)
}

var _ DB = (*GoLevelDB)(nil)

// GoLevelDB wraps a goleveldb store.
type GoLevelDB struct {
	db *leveldb.DB
}

// NewGoLevelDB opens name.db under dir. cacheSize is the block-cache
// budget in bytes, zero for the goleveldb default.
func NewGoLevelDB(name string, dir string, cacheSize int) (*GoLevelDB, error) {
	dbPath := filepath.Join(dir, filepath.FromSlash(name))
	o := &opt.Options{
		OpenFilesCacheCapacity: 256,
	}
	if cacheSize > 0 {
		o.BlockCacheCapacity = cacheSize / 2
		o.WriteBuffer = cacheSize / 4
	}
	db, err := leveldb.OpenFile(dbPath, o)
	if err != nil {
		return nil, err
	}
	return &GoLevelDB{db: db}, nil
}

// Get returns nil if the key is absent.
func (db *GoLevelDB) Get(key []byte) []byte {
	res, err := db.db.Get(key, nil)
	if err != nil {
		if err == errors.ErrNotFound {
			return nil
		}
		panic(err)
	}
	return res
}

// Exists reports whether the key is present.
func (db *GoLevelDB) Exists(key []byte) bool {
	ok, err := db.db.Has(key, nil)
	if err != nil {
		panic(err)
	}
	return ok
}

func (db *GoLevelDB) Set(key []byte, value []byte) {
	if err := db.db.Put(key, value, nil); err != nil {
		panic(err)
	}
}

func (db *GoLevelDB) SetSync(key []byte, value []byte) {
	if err := db.db.Put(key, value, &opt.WriteOptions{Sync: true}); err != nil {
		panic(err)
	}
}

func (db *GoLevelDB) Delete(key []byte) {
	if err := db.db.Delete(key, nil); err != nil {
		panic(err)
	}
}

func (db *GoLevelDB) DeleteSync(key []byte) {
	if err := db.db.Delete(key, &opt.WriteOptions{Sync: true}); err != nil {
		panic(err)
	}
}

func (db *GoLevelDB) Close() {
	db.db.Close()
}

// CompactRange compacts the underlying storage for the half-open key range
// [start, limit). Nil bounds mean the ends of the keyspace.
func (db *GoLevelDB) CompactRange(start, limit []byte) {
	if err := db.db.CompactRange(util.Range{Start: start, Limit: limit}); err != nil {
		panic(err)
	}
}

// EstimateSize returns the approximate on-disk footprint of [start, limit).
func (db *GoLevelDB) EstimateSize(start, limit []byte) uint64 {
	sizes, err := db.db.SizeOf([]util.Range{{Start: start, Limit: limit}})
	if err != nil {
		panic(err)
	}
	return uint64(sizes.Sum())
}

func (db *GoLevelDB) Print() {
	str, _ := db.db.GetProperty("leveldb.stats")
	fmt.Printf("%v\n", str)

	iter := db.db.NewIterator(nil, nil)
	for iter.Next() {
		fmt.Printf("[%X]:\t[%X]\n", iter.Key(), iter.Value())
	}
	iter.Release()
}

func (db *GoLevelDB) Stats() map[string]string {
	keys := []string{
		"leveldb.num-files-at-level{n}",
		"leveldb.stats",
		"leveldb.sstables",
		"leveldb.blockpool",
		"leveldb.cachedblock",
		"leveldb.openedtables",
		"leveldb.alivesnaps",
		"leveldb.aliveiters",
	}

	stats := make(map[string]string)
	for _, key := range keys {
		if str, err := db.db.GetProperty(key); err == nil {
			stats[key] = str
		}
	}
	return stats
}

// Iterator returns a forward iterator over the whole keyspace, backed by a
// database snapshot so concurrent writes do not show through.
func (db *GoLevelDB) Iterator() Iterator {
	return db.iteratorRange(nil)
}

// IteratorPrefix returns an iterator limited to keys with the prefix.
func (db *GoLevelDB) IteratorPrefix(prefix []byte) Iterator {
	return db.iteratorRange(util.BytesPrefix(prefix))
}

// IteratorRange returns an iterator over the half-open range [start, limit).
func (db *GoLevelDB) IteratorRange(start, limit []byte) Iterator {
	return db.iteratorRange(&util.Range{Start: start, Limit: limit})
}

func (db *GoLevelDB) iteratorRange(slice *util.Range) Iterator {
	snap, err := db.db.GetSnapshot()
	if err != nil {
		panic(err)
	}
	return &goLevelDBIterator{
		source: snap.NewIterator(slice, nil),
		snap:   snap,
	}
}

type goLevelDBIterator struct {
	source iterator.Iterator
	snap   *leveldb.Snapshot
}

func (it *goLevelDBIterator) Next() bool {
	return it.source.Next()
}

// Key returns a copy of the current key.
func (it *goLevelDBIterator) Key() []byte {
	return cp(it.source.Key())
}

// Value returns a copy of the current value.
func (it *goLevelDBIterator) Value() []byte {
	return cp(it.source.Value())
}

func (it *goLevelDBIterator) Release() {
	it.source.Release()
	it.snap.Release()
}

func (it *goLevelDBIterator) Error() error {
	return it.source.Error()
}

func cp(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

// NewBatch returns a write batch. The size estimate counts the key and
// value bytes of each record plus a fixed per-record overhead
// (batchRecordSize), on top of the batch header.
func (db *GoLevelDB) NewBatch() Batch {
	return &goLevelDBBatch{db: db, batch: new(leveldb.Batch), size: batchHeaderSize}
}

const (
	batchHeaderSize = 12
	batchRecordSize = 13
)

type goLevelDBBatch struct {
	db    *GoLevelDB
	batch *leveldb.Batch
	size  int
}

func (b *goLevelDBBatch) Set(key, value []byte) {
	b.batch.Put(key, value)
	b.size += len(key) + len(value) + batchRecordSize
}

func (b *goLevelDBBatch) Delete(key []byte) {
	b.batch.Delete(key)
	b.size += len(key) + batchRecordSize
}

func (b *goLevelDBBatch) Write() error {
	return b.db.db.Write(b.batch, nil)
}

func (b *goLevelDBBatch) WriteSync() error {
	return b.db.db.Write(b.batch, &opt.WriteOptions{Sync: true})
}

func (b *goLevelDBBatch) SizeEstimate() int {
	return b.size
}

func (b *goLevelDBBatch) Clear() {
	b.batch.Reset()
	b.size = batchHeaderSize
}
