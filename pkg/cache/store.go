package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrCacheMiss indicates the requested key was not found in the generation
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrInvalidName indicates a generation name that cannot be stored
	ErrInvalidName = errors.New("invalid generation name")
)

// Backend is the raw storage a Store runs on. Values are opaque encoded
// entries; implementations must be safe for concurrent use and atomic per
// key write.
type Backend interface {
	// CreateGeneration registers a generation; it is a no-op if it exists.
	CreateGeneration(ctx context.Context, name string) error

	// HasGeneration reports whether the generation exists.
	HasGeneration(ctx context.Context, name string) (bool, error)

	// Generations lists generation names in creation order.
	Generations(ctx context.Context) ([]string, error)

	// DropGeneration removes a generation and all its entries.
	DropGeneration(ctx context.Context, name string) (bool, error)

	// Get returns ErrCacheMiss when the key is absent.
	Get(ctx context.Context, generation, key string) ([]byte, error)

	// Put overwrites the value and registers the generation if needed.
	Put(ctx context.Context, generation, key string, value []byte) error

	// Delete reports whether the key was present.
	Delete(ctx context.Context, generation, key string) (bool, error)

	Keys(ctx context.Context, generation string) ([]string, error)

	Close() error
}

// Store hands out named cache generations over a Backend, with an optional
// in-process LRU tier in front of it.
type Store struct {
	backend Backend
	hot     *lru.Cache[string, *Entry]
	logger  zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithHotTier keeps up to size decoded entries in memory. Non-positive
// sizes disable the tier.
func WithHotTier(size int) Option {
	return func(s *Store) {
		if size <= 0 {
			return
		}
		c, err := lru.New[string, *Entry](size)
		if err != nil {
			return
		}
		s.hot = c
	}
}

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a store over backend.
func NewStore(backend Backend, opts ...Option) *Store {
	if backend == nil {
		panic("cache backend cannot be nil")
	}
	s := &Store{
		backend: backend,
		logger:  log.With().Str("component", "cache-store").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the named generation, creating it if needed.
func (s *Store) Open(ctx context.Context, name string) (*Generation, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := s.backend.CreateGeneration(ctx, name); err != nil {
		CacheErrors.WithLabelValues("open").Inc()
		return nil, fmt.Errorf("open generation %q: %w", name, err)
	}
	return &Generation{store: s, name: name}, nil
}

// Generation returns a handle without creating the generation. Writes
// through the handle create it lazily.
func (s *Store) Generation(name string) (*Generation, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return &Generation{store: s, name: name}, nil
}

// Has reports whether the named generation exists.
func (s *Store) Has(ctx context.Context, name string) (bool, error) {
	ok, err := s.backend.HasGeneration(ctx, name)
	if err != nil {
		CacheErrors.WithLabelValues("has").Inc()
		return false, fmt.Errorf("has generation %q: %w", name, err)
	}
	return ok, nil
}

// Names lists all generation names in creation order.
func (s *Store) Names(ctx context.Context) ([]string, error) {
	names, err := s.backend.Generations(ctx)
	if err != nil {
		CacheErrors.WithLabelValues("names").Inc()
		return nil, fmt.Errorf("list generations: %w", err)
	}
	return names, nil
}

// Delete drops the named generation with all its entries.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	ok, err := s.backend.DropGeneration(ctx, name)
	if err != nil {
		CacheErrors.WithLabelValues("drop").Inc()
		return false, fmt.Errorf("drop generation %q: %w", name, err)
	}
	s.purgeHot(name)
	if ok {
		GenerationsDeleted.Inc()
		s.logger.Debug().Str("generation", name).Msg("Dropped cache generation")
	}
	return ok, nil
}

// Close closes the backend.
func (s *Store) Close() error {
	if s.hot != nil {
		s.hot.Purge()
	}
	return s.backend.Close()
}

func (s *Store) purgeHot(name string) {
	if s.hot == nil {
		return
	}
	prefix := name + "\x00"
	for _, k := range s.hot.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.hot.Remove(k)
		}
	}
}

func validateName(name string) error {
	if name == "" || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Generation is a named bucket of cached request/response pairs.
type Generation struct {
	store *Store
	name  string
}

// Name returns the generation name.
func (g *Generation) Name() string {
	return g.name
}

func (g *Generation) hotKey(key Key) string {
	return g.name + "\x00" + key.String()
}

// Match returns a copy of the stored entry, or ErrCacheMiss.
func (g *Generation) Match(ctx context.Context, key Key) (*Entry, error) {
	hk := g.hotKey(key)
	if g.store.hot != nil {
		if e, ok := g.store.hot.Get(hk); ok {
			CacheHits.WithLabelValues("hot").Inc()
			return e.Clone(), nil
		}
	}

	data, err := g.store.backend.Get(ctx, g.name, key.String())
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("match").Inc()
		return nil, fmt.Errorf("match %s in %q: %w", key, g.name, err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("match").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if !entry.Verify() {
		CacheErrors.WithLabelValues("match").Inc()
		return nil, fmt.Errorf("%w: digest mismatch for %s", ErrInvalidEntry, key)
	}

	CacheHits.WithLabelValues("backend").Inc()
	if g.store.hot != nil {
		g.store.hot.Add(hk, entry.Clone())
	}
	return &entry, nil
}

// Put stores entry under key, replacing any previous entry wholesale.
func (g *Generation) Put(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	stored := entry.Clone()
	stored.URL = key.URL
	stored.Method = key.Method

	data, err := json.Marshal(stored)
	if err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := g.store.backend.Put(ctx, g.name, key.String(), data); err != nil {
		CacheErrors.WithLabelValues("put").Inc()
		return fmt.Errorf("put %s in %q: %w", key, g.name, err)
	}

	CacheWrites.Inc()
	if g.store.hot != nil {
		g.store.hot.Add(g.hotKey(key), stored)
	}
	g.store.logger.Debug().
		Str("generation", g.name).
		Str("key", key.String()).
		Int("bytes", len(stored.Body)).
		Msg("Stored cache entry")
	return nil
}

// Delete removes a single entry.
func (g *Generation) Delete(ctx context.Context, key Key) (bool, error) {
	if g.store.hot != nil {
		g.store.hot.Remove(g.hotKey(key))
	}
	ok, err := g.store.backend.Delete(ctx, g.name, key.String())
	if err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return false, fmt.Errorf("delete %s in %q: %w", key, g.name, err)
	}
	return ok, nil
}

// Keys lists the keys stored in the generation.
func (g *Generation) Keys(ctx context.Context) ([]Key, error) {
	raw, err := g.store.backend.Keys(ctx, g.name)
	if err != nil {
		CacheErrors.WithLabelValues("keys").Inc()
		return nil, fmt.Errorf("keys of %q: %w", g.name, err)
	}
	out := make([]Key, 0, len(raw))
	for _, s := range raw {
		k, err := ParseKey(s)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}
