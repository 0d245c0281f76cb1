package directory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingDirectory struct {
	*MemoryRepo
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingDirectory) hit(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[name]++
}

func (c *countingDirectory) Department(ctx context.Context, id string) (Department, error) {
	c.hit("Department")
	return c.MemoryRepo.Department(ctx, id)
}

func (c *countingDirectory) AgentsByDepartment(ctx context.Context, id string) ([]Agent, error) {
	c.hit("AgentsByDepartment")
	return c.MemoryRepo.AgentsByDepartment(ctx, id)
}

func TestMemoryRepo_OrdersDepartmentsAndAgents(t *testing.T) {
	r := NewMemoryRepo()
	r.AddDepartment(Department{ID: "service", OrgID: "org", SortOrder: 2})
	r.AddDepartment(Department{ID: "sales", OrgID: "org", SortOrder: 1})
	r.AddDepartment(Department{ID: "elsewhere", OrgID: "other", SortOrder: 0})
	r.AddAgent(Agent{ID: "b", DepartmentID: "sales", RoundRobinOrder: 2})
	r.AddAgent(Agent{ID: "a", DepartmentID: "sales", RoundRobinOrder: 1})

	depts, err := r.Departments(context.Background(), "org")
	if err != nil {
		t.Fatalf("departments: %v", err)
	}
	if len(depts) != 2 || depts[0].ID != "sales" || depts[1].ID != "service" {
		t.Fatalf("unexpected departments: %+v", depts)
	}
	agents, err := r.AgentsByDepartment(context.Background(), "sales")
	if err != nil {
		t.Fatalf("agents: %v", err)
	}
	if len(agents) != 2 || agents[0].ID != "a" {
		t.Fatalf("unexpected agents: %+v", agents)
	}
}

func TestMemoryRepo_AgentByExtension(t *testing.T) {
	r := NewMemoryRepo()
	r.AddAgent(Agent{ID: "a", OrgID: "org", Extension: "101"})
	a, err := r.AgentByExtension(context.Background(), "org", "101")
	if err != nil || a.ID != "a" {
		t.Fatalf("expected agent a, got %+v (%v)", a, err)
	}
	if _, err := r.AgentByExtension(context.Background(), "other", "101"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across orgs, got %v", err)
	}
}

func TestCached_ServesRepeatReadsFromCache(t *testing.T) {
	inner := &countingDirectory{MemoryRepo: NewMemoryRepo(), calls: map[string]int{}}
	inner.AddDepartment(Department{ID: "sales", OrgID: "org"})
	c := NewCached(inner, time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := c.Department(context.Background(), "sales"); err != nil {
			t.Fatalf("department: %v", err)
		}
	}
	if inner.calls["Department"] != 1 {
		t.Fatalf("expected 1 underlying read, got %d", inner.calls["Department"])
	}

	c.Flush()
	_, _ = c.Department(context.Background(), "sales")
	if inner.calls["Department"] != 2 {
		t.Fatalf("expected reload after flush, got %d", inner.calls["Department"])
	}
}

func TestCached_DoesNotCacheMissesOrAgents(t *testing.T) {
	inner := &countingDirectory{MemoryRepo: NewMemoryRepo(), calls: map[string]int{}}
	c := NewCached(inner, time.Minute)

	for i := 0; i < 2; i++ {
		if _, err := c.Department(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		_, _ = c.AgentsByDepartment(context.Background(), "sales")
	}
	if inner.calls["Department"] != 2 {
		t.Fatalf("expected misses to be retried, got %d reads", inner.calls["Department"])
	}
	if inner.calls["AgentsByDepartment"] != 2 {
		t.Fatalf("expected agent lists to bypass cache, got %d reads", inner.calls["AgentsByDepartment"])
	}
}

func TestMemoryCursors_CompareAndSet(t *testing.T) {
	m := NewMemoryCursors()
	ctx := context.Background()

	ok, err := m.CompareAndSet(ctx, "sales", 0, 1)
	if err != nil || !ok {
		t.Fatalf("expected first swap to win, got %v %v", ok, err)
	}
	ok, _ = m.CompareAndSet(ctx, "sales", 0, 2)
	if ok {
		t.Fatalf("expected stale swap to lose")
	}
	cur, _ := m.Cursor(ctx, "sales")
	if cur != 1 {
		t.Fatalf("expected cursor 1, got %d", cur)
	}
}

func TestMemoryCursors_ConcurrentClaimsAreExclusive(t *testing.T) {
	m := NewMemoryCursors()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := m.CompareAndSet(ctx, "sales", 0, 1); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}

func TestCursorScriptCompiles(t *testing.T) {
	if cursorCASScript == nil {
		t.Fatalf("expected script to be initialized")
	}
	var _ CursorStore = (*RedisCursors)(nil)
	var _ Directory = (*PostgresRepo)(nil)
	var _ Directory = (*Cached)(nil)
}
