package memory

import (
	"context"
	"sync"

	"github.com/raakeshmj/gobill/internal/db"
	"github.com/raakeshmj/gobill/internal/repository"
)

// MemoryRepository keeps clients and subscriptions in process memory.
// State is not shared between instances; use the postgres repository for that.
type MemoryRepository struct {
	clients map[string]*db.Client
	subs    []*db.Subscription
	byID    map[string]int // id -> index into subs
	mu      sync.RWMutex
}

func New() *MemoryRepository {
	return &MemoryRepository{
		clients: make(map[string]*db.Client),
		byID:    make(map[string]int),
	}
}

// Client Repo Implementation
func (r *MemoryRepository) GetClient(ctx context.Context, clientID string) (*db.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.clients[clientID]; ok {
		return c, nil
	}
	return nil, repository.ErrNotFound
}

// PutClient registers or replaces a client. Used at startup only.
func (r *MemoryRepository) PutClient(c *db.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ID] = c
}

// Subscription Repo Implementation
func (r *MemoryRepository) List(ctx context.Context, filter repository.SubscriptionFilter) ([]*db.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*db.Subscription, 0, len(r.subs))
	for _, s := range r.subs {
		if filter.CustomerID != "" && s.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && string(s.Status) != filter.Status {
			continue
		}
		if filter.Plan != "" && string(s.Plan) != filter.Plan {
			continue
		}
		list = append(list, s.Clone())
	}
	return list, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*db.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i, ok := r.byID[id]; ok {
		return r.subs[i].Clone(), nil
	}
	return nil, repository.ErrNotFound
}

func (r *MemoryRepository) FindActiveByCustomer(ctx context.Context, customerID string) (*db.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s := r.activeFor(customerID, ""); s != nil {
		return s.Clone(), nil
	}
	return nil, repository.ErrNotFound
}

func (r *MemoryRepository) Create(ctx context.Context, sub *db.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub.Status == db.StatusActive && r.activeFor(sub.CustomerID, "") != nil {
		return repository.ErrActiveExists
	}
	r.byID[sub.ID] = len(r.subs)
	r.subs = append(r.subs, sub.Clone())
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, sub *db.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.byID[sub.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if sub.Status == db.StatusActive && r.activeFor(sub.CustomerID, sub.ID) != nil {
		return repository.ErrActiveExists
	}
	r.subs[i] = sub.Clone()
	return nil
}

// activeFor returns the active subscription of customerID other than
// excludeID. Caller holds the lock.
func (r *MemoryRepository) activeFor(customerID, excludeID string) *db.Subscription {
	for _, s := range r.subs {
		if s.CustomerID == customerID && s.Status == db.StatusActive && s.ID != excludeID {
			return s
		}
	}
	return nil
}

// Interface check
var _ repository.ClientRepository = (*MemoryRepository)(nil)
var _ repository.SubscriptionRepository = (*MemoryRepository)(nil)
