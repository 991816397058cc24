// Package indexstore is a transactional mapping from filename to
// block.IndexFile, backed by github.com/syndtr/goleveldb: a guard opens
// a transaction, reads observe its own writes, and dropping it without
// a commit discards everything written through it. gofrs/flock keeps
// two processes from opening the same store directory concurrently.
package indexstore

import (
	"encoding/json"

	"github.com/calmh/syncit/block"
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
)

// ErrNotFound is returned by Guard.Get when the filename has no entry.
// Callers generally downgrade this to a no-op rather than treating it
// as fatal.
var ErrNotFound = errors.New("indexstore: not found")

// ErrExists is returned by Guard.Create when the filename already has
// an entry.
var ErrExists = errors.New("indexstore: already exists")

// DB is a transactional handle onto the persisted file index.
type DB struct {
	ldb  *leveldb.DB
	lock *flock.Flock
}

// Open opens (creating if absent) the index store rooted at path.
func Open(path string) (*DB, error) {
	fl := flock.New(path + ".lock")
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, "indexstore: acquire directory lock")
	}
	if !ok {
		return nil, errors.New("indexstore: store directory already locked by another process")
	}

	ldb, err := leveldb.OpenFile(path, nil)
	if err != nil {
		_ = fl.Unlock()
		return nil, errors.Wrap(err, "indexstore: open leveldb")
	}

	return &DB{ldb: ldb, lock: fl}, nil
}

// Close releases the underlying leveldb handle and directory lock.
func (d *DB) Close() error {
	err := d.ldb.Close()
	if unlockErr := d.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

// Begin opens a new serializable transaction. Callers (the sync
// controller) serialize guards themselves; concurrent guards on the
// same DB are not supported.
func (d *DB) Begin() (*Guard, error) {
	tx, err := d.ldb.OpenTransaction()
	if err != nil {
		return nil, errors.Wrap(err, "indexstore: begin transaction")
	}
	return &Guard{tx: tx}, nil
}

// Guard scopes one transaction: reads observe writes made earlier in the
// same guard (goleveldb transactions provide this natively), and
// dropping without Commit discards all writes.
type Guard struct {
	tx        *leveldb.Transaction
	committed bool
}

// Get returns the IndexFile for filename, or ErrNotFound.
func (g *Guard) Get(filename string) (block.IndexFile, error) {
	raw, err := g.tx.Get([]byte(filename), nil)
	if errors.Is(err, lderrors.ErrNotFound) {
		return block.IndexFile{}, ErrNotFound
	}
	if err != nil {
		return block.IndexFile{}, errors.Wrapf(err, "indexstore: get %q", filename)
	}
	var f block.IndexFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return block.IndexFile{}, errors.Wrapf(err, "indexstore: decode %q", filename)
	}
	return f, nil
}

// Create inserts a new IndexFile, failing if the filename already exists.
func (g *Guard) Create(f block.IndexFile) error {
	has, err := g.tx.Has([]byte(f.Filename), nil)
	if err != nil {
		return errors.Wrapf(err, "indexstore: has %q", f.Filename)
	}
	if has {
		return ErrExists
	}
	return g.put(f)
}

// Update replaces the entire IndexFile for its filename.
func (g *Guard) Update(f block.IndexFile) error {
	return g.put(f)
}

func (g *Guard) put(f block.IndexFile) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return errors.Wrapf(err, "indexstore: encode %q", f.Filename)
	}
	if err := g.tx.Put([]byte(f.Filename), raw, nil); err != nil {
		return errors.Wrapf(err, "indexstore: put %q", f.Filename)
	}
	return nil
}

// List returns every IndexFile currently visible in this guard, read
// lazily from the underlying iterator.
func (g *Guard) List() (*Iterator, error) {
	it := g.tx.NewIterator(nil, nil)
	return &Iterator{it: it}, nil
}

// ListAll is a convenience wrapper around List that materializes the
// full slice; the sync-all handler uses it for its snapshot.
func (g *Guard) ListAll() ([]block.IndexFile, error) {
	it, err := g.List()
	if err != nil {
		return nil, err
	}
	defer it.Release()

	var out []block.IndexFile
	for it.Next() {
		f, err := it.Value()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, it.Err()
}

// Iterator lazily walks every IndexFile in the guard's view.
type Iterator struct {
	it  iterator.Iterator
	err error
}

// Next advances the iterator, returning false at the end or on error.
func (i *Iterator) Next() bool {
	return i.it.Next()
}

// Value decodes the current entry.
func (i *Iterator) Value() (block.IndexFile, error) {
	var f block.IndexFile
	if err := json.Unmarshal(i.it.Value(), &f); err != nil {
		i.err = errors.Wrap(err, "indexstore: decode iterator value")
		return block.IndexFile{}, i.err
	}
	return f, nil
}

// Err returns any error encountered during iteration.
func (i *Iterator) Err() error {
	if i.err != nil {
		return i.err
	}
	return i.it.Error()
}

// Release must be called when done with the iterator.
func (i *Iterator) Release() {
	i.it.Release()
}

// Commit finalizes the transaction's writes. The guard must not be used
// afterward.
func (g *Guard) Commit() error {
	if err := g.tx.Commit(); err != nil {
		return errors.Wrap(err, "indexstore: commit")
	}
	g.committed = true
	return nil
}

// Discard abandons the transaction, undoing all writes made through this
// guard. Safe to call after Commit (no-op) or multiple times.
func (g *Guard) Discard() {
	if g.committed {
		return
	}
	g.tx.Discard()
}
