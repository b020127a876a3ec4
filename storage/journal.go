package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Op is one write of a batch. A Delete op ignores Value.
type Op struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// BatchWriter is implemented by backends that can apply a group of writes
// atomically.
type BatchWriter interface {
	WriteBatch(ops []Op) error
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

type undoEntry struct {
	key  string
	prev pendingWrite
	had  bool
}

// Journal buffers writes over a Database. Reads see buffered writes, a
// snapshot can be reverted without touching the backend, and Commit hands
// the buffer to the backend in one batch. Snapshot ids are only valid until
// the next Commit.
type Journal struct {
	db Database

	mu      sync.Mutex
	dirty   map[string]pendingWrite
	entries []undoEntry
}

// NewJournal wraps the supplied database.
func NewJournal(db Database) *Journal {
	return &Journal{db: db, dirty: make(map[string]pendingWrite)}
}

// Snapshot returns an identifier for the current position of the undo log.
func (j *Journal) Snapshot() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}

// RevertToSnapshot drops every buffered write made after the snapshot.
func (j *Journal) RevertToSnapshot(id int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if id < 0 || id > len(j.entries) {
		return fmt.Errorf("journal: invalid snapshot %d (log length %d)", id, len(j.entries))
	}
	for i := len(j.entries) - 1; i >= id; i-- {
		entry := j.entries[i]
		if entry.had {
			j.dirty[entry.key] = entry.prev
		} else {
			delete(j.dirty, entry.key)
		}
	}
	j.entries = j.entries[:id]
	return nil
}

// Commit writes the buffered changes to the backend, atomically when it
// implements BatchWriter. The buffer is cleared whether or not the write
// succeeds.
func (j *Journal) Commit() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	ops := j.ops()
	j.dirty = make(map[string]pendingWrite)
	j.entries = j.entries[:0]
	if len(ops) == 0 {
		return nil
	}
	if bw, ok := j.db.(BatchWriter); ok {
		if err := bw.WriteBatch(ops); err != nil {
			return fmt.Errorf("journal: commit: %w", err)
		}
		return nil
	}
	for _, op := range ops {
		var err error
		if op.Delete {
			err = j.db.Delete(op.Key)
		} else {
			err = j.db.Put(op.Key, op.Value)
		}
		if err != nil {
			return fmt.Errorf("journal: commit %x: %w", op.Key, err)
		}
	}
	return nil
}

// Pending returns the number of keys with uncommitted writes.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.dirty)
}

func (j *Journal) ops() []Op {
	keys := make([]string, 0, len(j.dirty))
	for k := range j.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ops := make([]Op, len(keys))
	for i, k := range keys {
		w := j.dirty[k]
		ops[i] = Op{Key: []byte(k), Value: w.value, Delete: w.deleted}
	}
	return ops
}

func (j *Journal) write(key []byte, w pendingWrite) {
	k := string(key)
	prev, had := j.dirty[k]
	j.entries = append(j.entries, undoEntry{key: k, prev: prev, had: had})
	j.dirty[k] = w
}

func (j *Journal) Put(key []byte, value []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.write(key, pendingWrite{value: append([]byte(nil), value...)})
	return nil
}

func (j *Journal) Delete(key []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.write(key, pendingWrite{deleted: true})
	return nil
}

func (j *Journal) Get(key []byte) ([]byte, error) {
	j.mu.Lock()
	w, ok := j.dirty[string(key)]
	j.mu.Unlock()
	if !ok {
		return j.db.Get(key)
	}
	if w.deleted {
		return nil, ErrNotFound
	}
	return append([]byte(nil), w.value...), nil
}

func (j *Journal) Has(key []byte) (bool, error) {
	_, err := j.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Iterate merges buffered writes under prefix with the backend's keys and
// visits the result in ascending key order.
func (j *Journal) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	j.mu.Lock()
	overlay := make(map[string]pendingWrite)
	for k, w := range j.dirty {
		if bytes.HasPrefix([]byte(k), prefix) {
			overlay[k] = w
		}
	}
	j.mu.Unlock()
	if len(overlay) == 0 {
		return j.db.Iterate(prefix, fn)
	}

	merged := make(map[string][]byte)
	if err := j.db.Iterate(prefix, func(key, value []byte) bool {
		merged[string(key)] = value
		return true
	}); err != nil {
		return err
	}
	for k, w := range overlay {
		if w.deleted {
			delete(merged, k)
		} else {
			merged[k] = append([]byte(nil), w.value...)
		}
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !fn([]byte(k), merged[k]) {
			break
		}
	}
	return nil
}

// Close closes the wrapped database. Uncommitted writes are dropped.
func (j *Journal) Close() { j.db.Close() }
