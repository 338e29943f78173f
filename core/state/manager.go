package state

import (
	"encoding/binary"
	"errors"
	"sync"

	"proposalpay/storage"
)

// Manager exposes the proposal module's persistent state on top of an
// ordered key/value store. All values are RLP encoded except raw uint64
// counters, which are stored big endian so key scans stay byte comparable.
//
// Mutating operations run inside a staging transaction: Begin buffers every
// write in memory, Commit flushes them to the store as one batch, and
// Rollback discards them. A failure mid-operation therefore never leaves a
// half-written record or a counter out of step with the allocator.
type Manager struct {
	db storage.Database

	mu      sync.Mutex
	pending map[string]pendingWrite
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// NewManager wraps the given database. The manager does not take ownership
// of the handle; callers close the database themselves.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var errNilDatabase = errors.New("state: nil database")

// Begin starts staging writes. Transactions do not nest; calling Begin with
// one already open discards the earlier staged writes.
func (m *Manager) Begin() {
	m.mu.Lock()
	m.pending = make(map[string]pendingWrite)
	m.mu.Unlock()
}

// Commit applies the staged writes to the store as a single atomic batch.
// With no transaction open it is a no-op.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	batch := m.db.NewBatch()
	for key, w := range m.pending {
		if w.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), w.value)
	}
	m.pending = nil
	return batch.Write()
}

// Rollback drops the staged writes without touching the store.
func (m *Manager) Rollback() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}

// KVGet reads a raw value, consulting the staged writes first so an open
// transaction observes its own puts and deletes. The boolean distinguishes
// a missing key from an empty value.
func (m *Manager) KVGet(key []byte) ([]byte, bool, error) {
	if m == nil || m.db == nil {
		return nil, false, errNilDatabase
	}
	m.mu.Lock()
	if m.pending != nil {
		if w, ok := m.pending[string(key)]; ok {
			m.mu.Unlock()
			if w.deleted {
				return nil, false, nil
			}
			return append([]byte(nil), w.value...), true, nil
		}
	}
	m.mu.Unlock()
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// KVPut writes a raw value, staging it when a transaction is open.
func (m *Manager) KVPut(key, value []byte) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	m.mu.Lock()
	if m.pending != nil {
		m.pending[string(key)] = pendingWrite{value: append([]byte(nil), value...)}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.db.Put(key, value)
}

// KVDelete removes a key. Deleting an absent key is not an error.
func (m *Manager) KVDelete(key []byte) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	m.mu.Lock()
	if m.pending != nil {
		m.pending[string(key)] = pendingWrite{deleted: true}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.db.Delete(key)
}

func (m *Manager) readUint64(key []byte) (uint64, bool, error) {
	raw, ok, err := m.KVGet(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if len(raw) != 8 {
		return 0, false, errors.New("state: malformed uint64 value")
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func (m *Manager) writeUint64(key []byte, value uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return m.KVPut(key, buf)
}
