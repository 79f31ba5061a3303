package taxonomy

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/crypto/blake2b"
)

// Snapshot is an immutable, versioned view of the catalog. Readers hold a
// snapshot for the duration of a classification or routing call and never
// observe a partially-applied learning update.
type Snapshot struct {
	Version     uint64     `json:"version"`
	Fingerprint string     `json:"fingerprint"`
	Categories  []Category `json:"categories"`

	byID map[string]int
}

// Category looks up a category by ID.
func (s *Snapshot) Category(id string) (Category, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Category{}, false
	}
	return s.Categories[i], true
}

// Store holds the current catalog snapshot behind an atomic pointer.
// Replace installs a whole new table; readers are never blocked.
type Store struct {
	mu     sync.Mutex // serializes writers only
	snap   atomic.Pointer[Snapshot]
	logger *slog.Logger
}

// NewStore validates and installs the initial catalog as version 1.
func NewStore(cats []Category, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st := &Store{logger: logger.With("component", "taxonomy")}
	if err := st.install(cats, 1); err != nil {
		return nil, err
	}
	return st, nil
}

// Snapshot returns the current catalog view. Lock-free.
func (st *Store) Snapshot() *Snapshot {
	return st.snap.Load()
}

// Replace validates and atomically swaps in a new catalog, bumping the
// version. The previous snapshot stays valid for in-flight readers.
func (st *Store) Replace(cats []Category) (*Snapshot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	next := st.snap.Load().Version + 1
	if err := st.install(cats, next); err != nil {
		return nil, err
	}
	snap := st.snap.Load()
	st.logger.Info("catalog replaced",
		"version", snap.Version,
		"categories", len(snap.Categories),
		"fingerprint", snap.Fingerprint[:12],
	)
	return snap, nil
}

func (st *Store) install(cats []Category, version uint64) error {
	if err := Validate(cats); err != nil {
		return err
	}

	owned := make([]Category, len(cats))
	for i, c := range cats {
		owned[i] = c.Clone()
	}
	sortCatalog(owned)

	byID := make(map[string]int, len(owned))
	for i, c := range owned {
		byID[c.ID] = i
	}

	snap := &Snapshot{
		Version:     version,
		Fingerprint: fingerprint(owned),
		Categories:  owned,
		byID:        byID,
	}
	st.snap.Store(snap)
	return nil
}

// fingerprint hashes the canonical catalog so external consumers can detect
// content changes independently of the version counter.
func fingerprint(cats []Category) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails with an oversized key.
		panic(fmt.Sprintf("taxonomy: blake2b init: %v", err))
	}
	for _, c := range cats {
		h.Write([]byte(c.ID))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(c.Priority)))
		h.Write([]byte(strconv.FormatFloat(c.Threshold, 'f', 6, 64)))
		for _, p := range c.Phrases {
			h.Write([]byte(p.Phrase))
			h.Write([]byte{0})
			h.Write([]byte(strconv.FormatFloat(p.Weight, 'f', 6, 64)))
		}
		for _, cap := range c.Capabilities {
			h.Write([]byte(cap))
			h.Write([]byte{0})
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
