// Package watchlist persists the tracked-address set across restarts, so
// the agent does not have to re-run a full subgraph bootstrap every time
// the process is cycled. It follows the same small Database-interface
// shape the rest of the corpus uses for its own key-value backends: an
// in-memory implementation for tests, a LevelDB-backed one for production.
package watchlist

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Store is a durable set of lowercase hex addresses, keyed by the named set
// they belong to (AllKnown, Tracked, Blacklist).
type Store interface {
	Add(set, address string) error
	Remove(set, address string) error
	Contains(set, address string) (bool, error)
	Members(set string) ([]string, error)
	Close() error
}

func key(set, address string) []byte {
	return []byte(fmt.Sprintf("%s\x00%s", set, strings.ToLower(address)))
}

// MemStore is an in-memory Store, used by tests and by operators who
// accept losing the tracked set across restarts.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]struct{}
}

// NewMemStore returns an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]struct{})}
}

func (m *MemStore) Add(set, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[string(key(set, address))] = struct{}{}
	return nil
}

func (m *MemStore) Remove(set, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key(set, address)))
	return nil
}

func (m *MemStore) Contains(set, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[string(key(set, address))]
	return ok, nil
}

func (m *MemStore) Members(set string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := set + "\x00"
	var out []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemStore) Close() error { return nil }

// LevelStore is a LevelDB-backed Store for production use: the tracked set
// survives process restarts without needing a fresh bootstrap pass.
type LevelStore struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a LevelDB database at path.
func Open(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open watchlist store at %s: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

func (s *LevelStore) Add(set, address string) error {
	return s.db.Put(key(set, address), []byte{1}, nil)
}

func (s *LevelStore) Remove(set, address string) error {
	return s.db.Delete(key(set, address), nil)
}

func (s *LevelStore) Contains(set, address string) (bool, error) {
	ok, err := s.db.Has(key(set, address), nil)
	if err != nil {
		return false, fmt.Errorf("contains %s: %w", address, err)
	}
	return ok, nil
}

func (s *LevelStore) Members(set string) ([]string, error) {
	prefix := []byte(set + "\x00")
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var out []string
	for iter.Next() {
		out = append(out, strings.TrimPrefix(string(iter.Key()), set+"\x00"))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate %s members: %w", set, err)
	}
	sort.Strings(out)
	return out, nil
}

func (s *LevelStore) Close() error {
	return s.db.Close()
}

// Canonical set names, matching the persisted-state key surface: every
// discovered borrower, the current tracked subset, and addresses that must
// never be tracked.
const (
	AllKnown  = "AAVE#allAccounts"
	Tracked   = "AAVE#accountToTrack"
	Blacklist = "AAVE#blacklist"
)
