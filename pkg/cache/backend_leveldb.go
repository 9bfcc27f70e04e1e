package cache

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBBackend persists generations on local disk.
//
// Layout:
//
//	g:<name>            -> creation time (unix nanos, big endian)
//	e:<name>\x00<key>   -> encoded entry
type LevelDBBackend struct {
	db *leveldb.DB

	// serialises generation registration so creation times are stable
	mu sync.Mutex
}

// OpenLevelDB opens (or creates) a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelDBBackend{db: db}, nil
}

func genMetaKey(name string) []byte {
	return []byte("g:" + name)
}

func entryPrefix(name string) []byte {
	return []byte("e:" + name + "\x00")
}

func entryKey(name, key string) []byte {
	return append(entryPrefix(name), key...)
}

func (b *LevelDBBackend) ensureLocked(batch *leveldb.Batch, name string) error {
	ok, err := b.db.Has(genMetaKey(name), nil)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], uint64(time.Now().UnixNano()))
	batch.Put(genMetaKey(name), seq[:])
	return nil
}

// CreateGeneration writes the generation marker if it is missing.
func (b *LevelDBBackend) CreateGeneration(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := new(leveldb.Batch)
	if err := b.ensureLocked(batch, name); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	return b.db.Write(batch, nil)
}

// HasGeneration reports whether the generation marker exists.
func (b *LevelDBBackend) HasGeneration(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return b.db.Has(genMetaKey(name), nil)
}

// Generations scans the markers and returns names in creation order.
func (b *LevelDBBackend) Generations(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type gen struct {
		name string
		seq  uint64
	}
	it := b.db.NewIterator(util.BytesPrefix([]byte("g:")), nil)
	defer it.Release()

	var gens []gen
	for it.Next() {
		name := string(bytes.TrimPrefix(it.Key(), []byte("g:")))
		var seq uint64
		if v := it.Value(); len(v) == 8 {
			seq = binary.BigEndian.Uint64(v)
		}
		gens = append(gens, gen{name: name, seq: seq})
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sort.SliceStable(gens, func(i, j int) bool { return gens[i].seq < gens[j].seq })

	out := make([]string, 0, len(gens))
	for _, g := range gens {
		out = append(out, g.name)
	}
	return out, nil
}

// DropGeneration deletes the marker and all prefixed entries in one batch.
func (b *LevelDBBackend) DropGeneration(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	existed, err := b.db.Has(genMetaKey(name), nil)
	if err != nil {
		return false, err
	}

	batch := new(leveldb.Batch)
	batch.Delete(genMetaKey(name))
	it := b.db.NewIterator(util.BytesPrefix(entryPrefix(name)), nil)
	for it.Next() {
		batch.Delete(bytes.Clone(it.Key()))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return false, err
	}
	if err := b.db.Write(batch, nil); err != nil {
		return false, err
	}
	return existed, nil
}

// Get returns the stored value or ErrCacheMiss.
func (b *LevelDBBackend) Get(ctx context.Context, generation, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, err := b.db.Get(entryKey(generation, key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return v, nil
}

// Put writes the entry and the generation marker in one batch.
func (b *LevelDBBackend) Put(ctx context.Context, generation, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := new(leveldb.Batch)
	if err := b.ensureLocked(batch, generation); err != nil {
		return err
	}
	batch.Put(entryKey(generation, key), value)
	return b.db.Write(batch, nil)
}

// Delete removes one entry, reporting whether it was present.
func (b *LevelDBBackend) Delete(ctx context.Context, generation, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := entryKey(generation, key)
	ok, err := b.db.Has(k, nil)
	if err != nil || !ok {
		return false, err
	}
	if err := b.db.Delete(k, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Keys iterates the generation prefix.
func (b *LevelDBBackend) Keys(ctx context.Context, generation string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := entryPrefix(generation)
	it := b.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var out []string
	for it.Next() {
		out = append(out, string(bytes.TrimPrefix(it.Key(), prefix)))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database.
func (b *LevelDBBackend) Close() error {
	return b.db.Close()
}
