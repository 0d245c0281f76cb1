package calls

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store useful for tests and local runs.
// The mutex makes each Upsert atomic, which is the property the Postgres
// statement provides in production.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{calls: map[string]Call{}, clock: time.Now}
}

func (s *MemoryStore) Upsert(ctx context.Context, providerCallID string, p Patch) (Call, error) {
	if providerCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock().UTC()
	c, ok := s.calls[providerCallID]
	if !ok {
		c = Call{ProviderCallID: providerCallID, Direction: DirectionInbound, Status: CallStatusInitiated, StartedAt: now, CreatedAt: now}
	}
	c = apply(c, p)
	c.UpdatedAt = now
	s.calls[providerCallID] = c
	return c, nil
}

func (s *MemoryStore) Get(ctx context.Context, providerCallID string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[providerCallID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) FindOpenByCounterparty(ctx context.Context, orgID, phone string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best Call
	found := false
	for _, c := range s.calls {
		if c.OrgID != orgID || c.Status.IsTerminal() {
			continue
		}
		if c.From != phone && c.To != phone {
			continue
		}
		if !found || c.CreatedAt.After(best.CreatedAt) {
			best = c
			found = true
		}
	}
	if !found {
		return Call{}, ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) List(ctx context.Context, orgID string, from, to time.Time) ([]Call, error) {
	if orgID == "" {
		return nil, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, 0)
	for _, c := range s.calls {
		if c.OrgID != orgID {
			continue
		}
		if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}
