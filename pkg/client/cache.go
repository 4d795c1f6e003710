package client

import (
	"context"
	"fmt"
	"sync"
)

// Fetcher loads the value for a cache key from the server.
type Fetcher func(ctx context.Context) (any, error)

type entry struct {
	key      Key
	value    any
	hasValue bool
	err      error
	stale    bool
	// generation fences in-flight work: refetches and rollbacks only land
	// when the generation they started under is still current.
	generation uint64
}

// Store is the query cache. Values are kept per key together with the last
// read error and a staleness flag; a failed refetch keeps the last-known-good
// value and surfaces the error alongside it.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*entry
	fetchers map[string]Fetcher
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		entries:  make(map[string]*entry),
		fetchers: make(map[string]Fetcher),
	}
}

// Register associates a fetcher with a key. Re-registering replaces the
// previous fetcher.
func (s *Store) Register(key Key, fetch Fetcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchers[key.String()] = fetch
}

func (s *Store) ensure(key Key) *entry {
	id := key.String()
	e, ok := s.entries[id]
	if !ok {
		e = &entry{key: key}
		s.entries[id] = e
	}
	return e
}

// Get returns the cached value for key, fetching when the entry is missing or
// stale. A fetch that completes after the key's generation moved on (cancel,
// invalidate, or an optimistic write racing it) is discarded rather than
// stored. A failed fetch returns the last-known-good value with the error.
func (s *Store) Get(ctx context.Context, key Key) (any, error) {
	s.mu.Lock()
	e := s.ensure(key)
	if e.hasValue && !e.stale && e.err == nil {
		value := e.value
		s.mu.Unlock()
		return value, nil
	}
	fetch := s.fetchers[key.String()]
	gen := e.generation
	fallback, hasFallback := e.value, e.hasValue
	s.mu.Unlock()

	if fetch == nil {
		if hasFallback {
			return fallback, nil
		}
		return nil, fmt.Errorf("no fetcher registered for key %s", key)
	}

	value, err := fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	e = s.ensure(key)
	if e.generation != gen {
		// The key moved on while we were fetching. Hand the result to the
		// caller but leave the cache alone.
		if err != nil && e.hasValue {
			return e.value, err
		}
		return value, err
	}
	if err != nil {
		e.err = err
		if e.hasValue {
			return e.value, err
		}
		return nil, err
	}
	e.value, e.hasValue = value, true
	e.err = nil
	e.stale = false
	return value, nil
}

// Set stores a value, clearing staleness and any read error.
func (s *Store) Set(key Key, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensure(key)
	e.value, e.hasValue = value, true
	e.err = nil
	e.stale = false
}

// Peek returns the cached value without triggering a fetch.
func (s *Store) Peek(key Key) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key.String()]
	if !ok || !e.hasValue {
		return nil, false
	}
	return e.value, true
}

// UpdateAll applies fn to every populated entry under prefix, storing the
// returned value.
func (s *Store) UpdateAll(prefix Key, fn func(key Key, value any) any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if !e.hasValue || !e.key.HasPrefix(prefix) {
			continue
		}
		e.value = fn(e.key, e.value)
	}
}

// CancelRefetch abandons in-flight fetches under prefix: their results will
// be discarded when they land, so they cannot clobber an optimistic write.
func (s *Store) CancelRefetch(prefix Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.key.HasPrefix(prefix) {
			e.generation++
		}
	}
}

// Invalidate marks every entry under prefix stale so the next Get refetches.
func (s *Store) Invalidate(prefix Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.key.HasPrefix(prefix) {
			e.generation++
			e.stale = true
		}
	}
}

type snapshotEntry struct {
	value      any
	hasValue   bool
	err        error
	stale      bool
	generation uint64
}

// Snapshot captures the state of every entry under the given prefixes.
type Snapshot struct {
	entries map[string]snapshotEntry
	keys    map[string]Key
}

// Snapshot records the current values under the given key prefixes for a
// later Restore.
func (s *Store) Snapshot(prefixes ...Key) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		entries: make(map[string]snapshotEntry),
		keys:    make(map[string]Key),
	}
	for id, e := range s.entries {
		for _, prefix := range prefixes {
			if e.key.HasPrefix(prefix) {
				snap.entries[id] = snapshotEntry{
					value:      e.value,
					hasValue:   e.hasValue,
					err:        e.err,
					stale:      e.stale,
					generation: e.generation,
				}
				snap.keys[id] = e.key
				break
			}
		}
	}
	return snap
}

// Restore rolls entries back to their snapshotted state. A key whose
// generation moved since the snapshot (a concurrent invalidation or cancel)
// is left untouched: the refetch triggered by that invalidation is already
// the fresher truth.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, saved := range snap.entries {
		e, ok := s.entries[id]
		if !ok || e.generation != saved.generation {
			continue
		}
		e.value = saved.value
		e.hasValue = saved.hasValue
		e.err = saved.err
		e.stale = saved.stale
	}
}

// GetData fetches a key and asserts its concrete type.
func GetData[T any](ctx context.Context, s *Store, key Key) (T, error) {
	value, err := s.Get(ctx, key)
	if value == nil {
		var zero T
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache entry %s holds %T, not %T", key, value, zero)
	}
	return typed, err
}

// UpdateData applies a typed transform to every populated entry under prefix.
// Entries of a different concrete type are skipped.
func UpdateData[T any](s *Store, prefix Key, fn func(key Key, value T) T) {
	s.UpdateAll(prefix, func(key Key, value any) any {
		typed, ok := value.(T)
		if !ok {
			return value
		}
		return fn(key, typed)
	})
}
