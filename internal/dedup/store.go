package dedup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/matchsync/internal/kvstore"
)

// Defaults.
const (
	DefaultStorageKey = "settlement_notified_v1"
	DefaultRetention  = 7 * 24 * time.Hour
)

// Entry is one persisted key.
type Entry struct {
	Key        string `json:"key"`
	InsertedAt int64  `json:"inserted_at"` // unix milliseconds
}

// Options configures a Store.
type Options struct {
	StorageKey string
	Retention  time.Duration
}

// Store is a TTL-bounded set of keys persisted to a kvstore.Store.
type Store struct {
	kv        kvstore.Store
	key       string
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time

	// flushMu serializes read-merge-write cycles within this process.
	flushMu sync.Mutex
}

// New creates a store. Call Load before the first Has.
func New(kv kvstore.Store, opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StorageKey == "" {
		opts.StorageKey = DefaultStorageKey
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	return &Store{
		kv:        kv,
		key:       opts.StorageKey,
		retention: opts.Retention,
		logger:    logger.With("component", "dedup", "storage_key", opts.StorageKey),
		now:       time.Now,
		entries:   make(map[string]time.Time),
	}
}

// Load reads the persisted set, merges it into memory and drops expired
// entries. A corrupt document is logged and replaced on the next Flush.
func (s *Store) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return fmt.Errorf("load dedupe set: %w", err)
	}

	var persisted []Entry
	if ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
			s.logger.Warn("discarding unreadable dedupe set", "error", err)
			persisted = nil
		}
	}

	s.mu.Lock()
	s.mergeLocked(persisted)
	pruned := s.pruneLocked()
	total := len(s.entries)
	s.mu.Unlock()

	s.logger.Debug("loaded dedupe set", "entries", total, "pruned", pruned)

	if pruned > 0 {
		return s.Flush(ctx)
	}
	return nil
}

// Has reports whether key is present and not expired.
func (s *Store) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.entries[key]
	return ok && s.now().Sub(at) < s.retention
}

// Add inserts key in memory. It returns false if the key was already present,
// in which case nothing changes. Persist with Flush.
func (s *Store) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if at, ok := s.entries[key]; ok && now.Sub(at) < s.retention {
		return false
	}
	s.entries[key] = now
	return true
}

// Flush merges the stored document into memory, prunes expired entries and
// writes the union back. Keys persisted by other writers survive.
func (s *Store) Flush(ctx context.Context) error {
	return s.flush(ctx, true)
}

func (s *Store) flush(ctx context.Context, merge bool) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	var stored []Entry
	if merge {
		raw, ok, err := s.kv.Get(ctx, s.key)
		if err != nil {
			return fmt.Errorf("read dedupe set: %w", err)
		}
		if ok && raw != "" {
			if err := json.Unmarshal([]byte(raw), &stored); err != nil {
				s.logger.Warn("overwriting unreadable dedupe set", "error", err)
				stored = nil
			}
		}
	}

	s.mu.Lock()
	s.mergeLocked(stored)
	s.pruneLocked()
	out := make([]Entry, 0, len(s.entries))
	for k, at := range s.entries {
		out = append(out, Entry{Key: k, InsertedAt: at.UnixMilli()})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].InsertedAt != out[j].InsertedAt {
			return out[i].InsertedAt < out[j].InsertedAt
		}
		return out[i].Key < out[j].Key
	})

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode dedupe set: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		return fmt.Errorf("persist dedupe set: %w", err)
	}
	return nil
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear drops every entry in memory and in the backing store.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	clear(s.entries)
	s.mu.Unlock()
	return s.flush(ctx, false)
}

// mergeLocked adds persisted entries, keeping the earliest insert time.
func (s *Store) mergeLocked(persisted []Entry) {
	for _, e := range persisted {
		at := time.UnixMilli(e.InsertedAt)
		if cur, exists := s.entries[e.Key]; !exists || at.Before(cur) {
			s.entries[e.Key] = at
		}
	}
}

func (s *Store) pruneLocked() int {
	now := s.now()
	pruned := 0
	for k, at := range s.entries {
		if now.Sub(at) >= s.retention {
			delete(s.entries, k)
			pruned++
		}
	}
	return pruned
}

// Key builds the dedupe key for a notification. Extra parts are appended
// with the same separator.
func Key(matchID, pickID string, extra ...string) string {
	k := matchID + "|" + pickID
	for _, e := range extra {
		k += "|" + e
	}
	return k
}
