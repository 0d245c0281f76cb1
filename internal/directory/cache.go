package directory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cached fronts a Directory with a short-lived in-process cache so a live
// call does not wait on the database for reference data it read seconds ago.
//
// Only successful reads are cached; ErrNotFound and transient errors always
// go back to the underlying Directory on the next request.
type Cached struct {
	next  Directory
	cache *cache.Cache
}

func NewCached(next Directory, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cached{next: next, cache: cache.New(ttl, 2*ttl)}
}

// Flush drops every cached entry.
func (c *Cached) Flush() { c.cache.Flush() }

func (c *Cached) ResolveNumber(ctx context.Context, dialed string) (PhoneNumber, error) {
	return cached(c, "num:"+dialed, func() (PhoneNumber, error) { return c.next.ResolveNumber(ctx, dialed) })
}

func (c *Cached) Department(ctx context.Context, id string) (Department, error) {
	return cached(c, "dept:"+id, func() (Department, error) { return c.next.Department(ctx, id) })
}

func (c *Cached) Departments(ctx context.Context, orgID string) ([]Department, error) {
	return cached(c, "depts:"+orgID, func() ([]Department, error) { return c.next.Departments(ctx, orgID) })
}

// AgentsByDepartment is not cached: availability flips often and a stale
// flag would ring an agent who just went offline.
func (c *Cached) AgentsByDepartment(ctx context.Context, departmentID string) ([]Agent, error) {
	return c.next.AgentsByDepartment(ctx, departmentID)
}

func (c *Cached) AgentByExtension(ctx context.Context, orgID, extension string) (Agent, error) {
	return cached(c, "ext:"+orgID+":"+extension, func() (Agent, error) { return c.next.AgentByExtension(ctx, orgID, extension) })
}

func (c *Cached) Agent(ctx context.Context, id string) (Agent, error) {
	return cached(c, "agent:"+id, func() (Agent, error) { return c.next.Agent(ctx, id) })
}

func cached[T any](c *Cached, key string, load func() (T, error)) (T, error) {
	if v, ok := c.cache.Get(key); ok {
		if out, ok := v.(T); ok {
			return out, nil
		}
	}
	out, err := load()
	if err != nil {
		return out, err
	}
	c.cache.SetDefault(key, out)
	return out, nil
}
