package groupgift

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps campaigns in process memory. It backs tests and the
// default local configuration.
type MemoryRepository struct {
	mu     sync.RWMutex
	gifts  map[int64]GroupGift
	lastID int64
	locks  *keyedMutex
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		gifts: make(map[int64]GroupGift),
		locks: newKeyedMutex(),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, g *GroupGift) error {
	if err := ctx.Err(); err != nil {
		return repoErr("create", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	g.ID = r.lastID
	r.gifts[g.ID] = g.Clone()
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id int64) (*GroupGift, error) {
	if err := ctx.Err(); err != nil {
		return nil, repoErr("get", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.gifts[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	c := g.Clone()
	return &c, nil
}

func (r *MemoryRepository) GetAll(ctx context.Context) ([]GroupGift, error) {
	return r.filter(ctx, func(GroupGift) bool { return true })
}

func (r *MemoryRepository) GetByRecipient(ctx context.Context, recipientID int64) ([]GroupGift, error) {
	return r.filter(ctx, func(g GroupGift) bool { return g.RecipientID == recipientID })
}

func (r *MemoryRepository) GetByCreator(ctx context.Context, createdBy string) ([]GroupGift, error) {
	return r.filter(ctx, func(g GroupGift) bool { return g.CreatedBy == createdBy })
}

func (r *MemoryRepository) Update(ctx context.Context, g *GroupGift) error {
	if err := ctx.Err(); err != nil {
		return repoErr("update", err)
	}

	unlock := r.locks.Lock(g.ID)
	defer unlock()

	return r.put(g)
}

func (r *MemoryRepository) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return repoErr("delete", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.gifts[id]; !ok {
		return ErrCampaignNotFound
	}
	delete(r.gifts, id)
	return nil
}

func (r *MemoryRepository) Apply(ctx context.Context, id int64, fn func(g *GroupGift) error) (*GroupGift, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	g, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(g); err != nil {
		return nil, err
	}
	if err := r.put(g); err != nil {
		return nil, err
	}
	return g, nil
}

// put stores g if its campaign still exists. Callers hold the campaign lock.
func (r *MemoryRepository) put(g *GroupGift) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.gifts[g.ID]; !ok {
		return ErrCampaignNotFound
	}
	r.gifts[g.ID] = g.Clone()
	return nil
}

func (r *MemoryRepository) filter(ctx context.Context, keep func(GroupGift) bool) ([]GroupGift, error) {
	if err := ctx.Err(); err != nil {
		return nil, repoErr("list", err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]GroupGift, 0, len(r.gifts))
	for _, g := range r.gifts {
		if keep(g) {
			out = append(out, g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}
