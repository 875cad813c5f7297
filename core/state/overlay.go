package state

import (
	"errors"

	"marketvault/storage"
)

// KV is the read/write view the state manager operates on. Both
// storage.Database and Overlay satisfy it.
type KV interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
}

// Overlay stages all writes of a single invocation on top of a database and
// flushes them as one atomic batch. Reads observe staged writes. Discarding
// the overlay leaves the underlying database untouched, which gives every
// public operation all-or-nothing semantics.
type Overlay struct {
	db      storage.Database
	writes  map[string][]byte
	deletes map[string]struct{}
}

// NewOverlay returns an empty staging view over db.
func NewOverlay(db storage.Database) *Overlay {
	return &Overlay{
		db:      db,
		writes:  make(map[string][]byte),
		deletes: make(map[string]struct{}),
	}
}

// Get returns the staged value when present, otherwise reads through.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	if _, ok := o.deletes[string(key)]; ok {
		return nil, storage.ErrKeyNotFound
	}
	if value, ok := o.writes[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	return o.db.Get(key)
}

// Has reports key presence, staged writes and deletes included.
func (o *Overlay) Has(key []byte) (bool, error) {
	if _, ok := o.deletes[string(key)]; ok {
		return false, nil
	}
	if _, ok := o.writes[string(key)]; ok {
		return true, nil
	}
	return o.db.Has(key)
}

// Put stages an insert or update.
func (o *Overlay) Put(key []byte, value []byte) error {
	delete(o.deletes, string(key))
	o.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete stages a removal.
func (o *Overlay) Delete(key []byte) error {
	delete(o.writes, string(key))
	o.deletes[string(key)] = struct{}{}
	return nil
}

// Pending reports the number of staged operations.
func (o *Overlay) Pending() int {
	return len(o.writes) + len(o.deletes)
}

// Commit flushes all staged operations to the database in one atomic batch
// and resets the overlay.
func (o *Overlay) Commit() error {
	if o.Pending() == 0 {
		return nil
	}
	batch := new(storage.Batch)
	for key, value := range o.writes {
		batch.Put([]byte(key), value)
	}
	for key := range o.deletes {
		batch.Delete([]byte(key))
	}
	if err := o.db.Write(batch); err != nil {
		return err
	}
	o.reset()
	return nil
}

// Discard drops all staged operations.
func (o *Overlay) Discard() {
	o.reset()
}

func (o *Overlay) reset() {
	o.writes = make(map[string][]byte)
	o.deletes = make(map[string]struct{})
}

// IsNotFound reports whether err signals an absent key.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrKeyNotFound)
}
