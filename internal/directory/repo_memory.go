package directory

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is a simple in-memory Directory useful for tests and early development.
//
// NOTE: This is not intended for production; use PostgresRepo.
type MemoryRepo struct {
	mu sync.RWMutex

	numbers     []PhoneNumber
	departments []Department
	agents      []Agent
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) AddNumber(n PhoneNumber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numbers = append(r.numbers, n)
}

func (r *MemoryRepo) AddDepartment(d Department) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.departments = append(r.departments, d)
}

func (r *MemoryRepo) AddAgent(a Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = append(r.agents, a)
}

// SetAvailable flips an agent's availability flag.
func (r *MemoryRepo) SetAvailable(agentID string, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.agents {
		if r.agents[i].ID == agentID {
			r.agents[i].IsAvailable = available
		}
	}
}

func (r *MemoryRepo) ResolveNumber(ctx context.Context, dialed string) (PhoneNumber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, n := range r.numbers {
		if n.Number == dialed {
			return n, nil
		}
	}
	return PhoneNumber{}, ErrNotFound
}

func (r *MemoryRepo) Department(ctx context.Context, id string) (Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.departments {
		if d.ID == id {
			return d, nil
		}
	}
	return Department{}, ErrNotFound
}

func (r *MemoryRepo) Departments(ctx context.Context, orgID string) ([]Department, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Department, 0)
	for _, d := range r.departments {
		if d.OrgID == orgID {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) AgentsByDepartment(ctx context.Context, departmentID string) ([]Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0)
	for _, a := range r.agents {
		if a.DepartmentID == departmentID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RoundRobinOrder != out[j].RoundRobinOrder {
			return out[i].RoundRobinOrder < out[j].RoundRobinOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepo) AgentByExtension(ctx context.Context, orgID, extension string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.OrgID == orgID && a.Extension != "" && a.Extension == extension {
			return a, nil
		}
	}
	return Agent{}, ErrNotFound
}

func (r *MemoryRepo) Agent(ctx context.Context, id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.ID == id {
			return a, nil
		}
	}
	return Agent{}, ErrNotFound
}

// MemoryCursors is a mutex-guarded CursorStore.
type MemoryCursors struct {
	mu      sync.Mutex
	cursors map[string]int
}

func NewMemoryCursors() *MemoryCursors { return &MemoryCursors{cursors: map[string]int{}} }

func (m *MemoryCursors) Cursor(ctx context.Context, departmentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[departmentID], nil
}

func (m *MemoryCursors) CompareAndSet(ctx context.Context, departmentID string, old, next int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursors[departmentID] != old {
		return false, nil
	}
	m.cursors[departmentID] = next
	return true, nil
}
