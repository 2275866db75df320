package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irrbb/whatif-engine/internal/model"
)

// MemoryLedger implements Store with an in-memory, insertion-ordered slice.
// This is the authoritative store for an interactive session: the ledger is
// session-scoped and resets when the user discards all modifications.
type MemoryLedger struct {
	mu      sync.RWMutex
	mods    []model.Modification
	index   map[string]int // id → position in mods
	version uint64
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		index: make(map[string]int),
	}
}

func (l *MemoryLedger) Add(_ context.Context, mod *model.Modification) (string, error) {
	if mod.Kind == "" {
		return "", ErrMissingKind
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stored := mod.Clone()

	// Update-in-place singletons: a second Reprice for the same
	// (subcategory, side) or a second BehaviouralOverride for the same
	// family replaces the existing payload but keeps the original id
	// and ledger position.
	if key := singletonKey(&stored); key != "" {
		for i := range l.mods {
			if singletonKey(&l.mods[i]) == key {
				stored.ID = l.mods[i].ID
				stored.CreatedAt = l.mods[i].CreatedAt
				l.mods[i] = stored
				l.version++
				return stored.ID, nil
			}
		}
	}

	// Ids come from uuid and are never reused for the ledger's lifetime.
	stored.ID = uuid.New().String()
	stored.CreatedAt = time.Now().UTC()
	l.mods = append(l.mods, stored)
	l.index[stored.ID] = len(l.mods) - 1
	l.version++
	return stored.ID, nil
}

func (l *MemoryLedger) Update(_ context.Context, id string, patch Patch) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.index[id]
	if !ok {
		return ErrNotFound
	}
	patch.apply(&l.mods[pos])
	l.version++
	return nil
}

func (l *MemoryLedger) Remove(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.index[id]
	if !ok {
		return ErrNotFound
	}
	l.mods = append(l.mods[:pos], l.mods[pos+1:]...)
	delete(l.index, id)
	for i := pos; i < len(l.mods); i++ {
		l.index[l.mods[i].ID] = i
	}
	l.version++
	return nil
}

func (l *MemoryLedger) Clear(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.mods = nil
	l.index = make(map[string]int)
	l.version++
	return nil
}

func (l *MemoryLedger) List(_ context.Context) ([]model.Modification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Modification, 0, len(l.mods))
	for i := range l.mods {
		out = append(out, l.mods[i].Clone())
	}
	return out, nil
}

func (l *MemoryLedger) Get(_ context.Context, id string) (*model.Modification, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.index[id]
	if !ok {
		return nil, ErrNotFound
	}
	m := l.mods[pos].Clone()
	return &m, nil
}

func (l *MemoryLedger) CountByKind(_ context.Context, kind model.Kind) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for i := range l.mods {
		if l.mods[i].Kind == kind {
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) Version(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version, nil
}
