package storage

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get when the key does not exist in the store.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for an ordered key-value store. Keys are
// iterated in lexicographic byte order, which the state layer relies on for
// its secondary indexes.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// NewIterator walks every key sharing the given prefix. When reverse is
	// true iteration starts at the highest matching key.
	NewIterator(prefix []byte, reverse bool) Iterator
	// NewBatch stages writes that Write applies in one shot. Readers never
	// observe a partially applied batch.
	NewBatch() Batch
	Close() // A way to gracefully shut down the database connection.
}

// Batch collects puts and deletes until Write flushes them atomically.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Write() error
	Reset()
}

// Iterator yields key-value pairs until Next reports false. Callers must
// Release the iterator when done.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

// NewIterator snapshots the matching keys under the read lock so iteration is
// stable even if the map is mutated afterwards.
func (db *MemDB) NewIterator(prefix []byte, reverse bool) Iterator {
	db.mu.RLock()
	defer db.mu.RUnlock()
	keys := make([]string, 0)
	for k := range db.data {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if reverse {
		for i, j := 0, len(keys)-1; i < j; i, j = i+1, j-1 {
			keys[i], keys[j] = keys[j], keys[i]
		}
	}
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = append([]byte(nil), db.data[k]...)
	}
	return &memIterator{keys: keys, values: values, pos: -1}
}

// NewBatch returns a batch that applies its staged writes under a single
// lock acquisition.
func (db *MemDB) NewBatch() Batch {
	return &memBatch{db: db}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

type batchOp struct {
	key    []byte
	value  []byte
	delete bool
}

type memBatch struct {
	db  *MemDB
	ops []batchOp
}

func (b *memBatch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

func (b *memBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.delete {
			delete(b.db.data, string(op.key))
			continue
		}
		b.db.data[string(op.key)] = op.value
	}
	return nil
}

func (b *memBatch) Reset() { b.ops = b.ops[:0] }

type memIterator struct {
	keys   []string
	values [][]byte
	pos    int
}

func (it *memIterator) Next() bool {
	if it.pos+1 >= len(it.keys) {
		return false
	}
	it.pos++
	return true
}

func (it *memIterator) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memIterator) Value() []byte { return it.values[it.pos] }
func (it *memIterator) Release()      {}
func (it *memIterator) Error() error  { return nil }

// --- Persistent DB (for production) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Delete removes the key from the store. Deleting a missing key is a no-op.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

// NewIterator iterates keys under prefix in lexicographic order, or highest
// matching key first when reverse is set.
func (ldb *LevelDB) NewIterator(prefix []byte, reverse bool) Iterator {
	it := ldb.db.NewIterator(util.BytesPrefix(prefix), nil)
	return &levelIterator{it: it, reverse: reverse}
}

// NewBatch wraps a native LevelDB write batch.
func (ldb *LevelDB) NewBatch() Batch {
	return &levelBatch{db: ldb.db, batch: new(leveldb.Batch)}
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Put(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelBatch) Write() error          { return b.db.Write(b.batch, nil) }
func (b *levelBatch) Reset()                { b.batch.Reset() }

type levelIterator struct {
	it      levelCursor
	reverse bool
	started bool
}

// levelCursor is the subset of the goleveldb iterator the wrapper drives.
type levelCursor interface {
	Next() bool
	Prev() bool
	First() bool
	Last() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

func (it *levelIterator) Next() bool {
	if !it.started {
		it.started = true
		if it.reverse {
			return it.it.Last()
		}
		return it.it.First()
	}
	if it.reverse {
		return it.it.Prev()
	}
	return it.it.Next()
}

func (it *levelIterator) Key() []byte   { return append([]byte(nil), it.it.Key()...) }
func (it *levelIterator) Value() []byte { return append([]byte(nil), it.it.Value()...) }
func (it *levelIterator) Release()      { it.it.Release() }
func (it *levelIterator) Error() error  { return it.it.Error() }
