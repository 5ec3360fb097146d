package pricewalk

import (
	"math/rand/v2"
	"sync"
)

// PriceStore holds the single mutable price cell per subject. The cell is the
// caller's state, not a package-level singleton, so engines can be tested in
// isolation and scaled horizontally behind a shared store.
type PriceStore interface {
	Load(subjectID string) (float64, bool)
	Save(subjectID string, price float64)
}

// MemoryStore is the in-process PriceStore. Deactivating a bot does not clear
// its cell; the price survives until the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prices: make(map[string]float64)}
}

func (s *MemoryStore) Load(subjectID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[subjectID]
	return p, ok
}

func (s *MemoryStore) Save(subjectID string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[subjectID] = price
}

// Engine advances per-subject prices. Advances are serialized: the price cell
// is read-modify-write and a concurrent double-step would corrupt the walk.
type Engine struct {
	mu    sync.Mutex
	store PriceStore
	rng   *rand.Rand
}

// NewEngine wraps a PriceStore. A nil rng gets a PCG source with a random
// seed; tests pass a seeded one for reproducibility.
func NewEngine(store PriceStore, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Engine{store: store, rng: rng}
}

// Advance moves the subject's price one tick and returns the new YES price.
// A subject with no stored price is seeded from the watch targets; otherwise
// the stored price is stepped and overwritten.
func (e *Engine) Advance(subjectID string, targetYes, targetNo *float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var next float64
	if prev, ok := e.store.Load(subjectID); ok {
		next = Step(e.rng, prev)
	} else {
		next = Initialize(e.rng, targetYes, targetNo)
	}
	e.store.Save(subjectID, next)
	return next
}
