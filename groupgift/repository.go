package groupgift

import (
	"context"
	"sync"
)

// Repository owns the GroupGift collection. Implementations must be safe for
// concurrent use and must serialize Apply calls for the same campaign id.
type Repository interface {
	// Create assigns the next campaign id to g and stores it.
	Create(ctx context.Context, g *GroupGift) error
	GetByID(ctx context.Context, id int64) (*GroupGift, error)
	GetAll(ctx context.Context) ([]GroupGift, error)
	GetByRecipient(ctx context.Context, recipientID int64) ([]GroupGift, error)
	GetByCreator(ctx context.Context, createdBy string) ([]GroupGift, error)
	// Update replaces the whole stored document.
	Update(ctx context.Context, g *GroupGift) error
	Delete(ctx context.Context, id int64) error
	// Apply runs fn against a private copy of the campaign and persists the
	// copy only when fn returns nil. It is the atomic read-modify-write used
	// by every ledger operation.
	Apply(ctx context.Context, id int64, fn func(g *GroupGift) error) (*GroupGift, error)
}

// keyedMutex hands out one mutex per campaign id so campaigns never contend with each other.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*keyedEntry)}
}

func (k *keyedMutex) Lock(id int64) func() {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
