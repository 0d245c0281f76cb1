package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisCursors stores round-robin cursors as plain integer keys and advances
// them with a compare-and-set Lua script.
type RedisCursors struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCursors(rdb *redis.Client) *RedisCursors {
	return &RedisCursors{rdb: rdb, prefix: "rr:dept:"}
}

var cursorCASScript = redis.NewScript(`
-- KEYS[1] = cursor key
-- ARGV[1] = expected current value (int, missing key counts as 0)
-- ARGV[2] = next value (int)
--
-- Returns:
--  1 if swapped
--  0 if the stored value did not match
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2])
return 1
`)

func (r *RedisCursors) key(departmentID string) string { return r.prefix + departmentID }

func (r *RedisCursors) Cursor(ctx context.Context, departmentID string) (int, error) {
	if r.rdb == nil {
		return 0, fmt.Errorf("redis client is nil")
	}
	if departmentID == "" {
		return 0, fmt.Errorf("department id is required")
	}
	n, err := r.rdb.Get(ctx, r.key(departmentID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (r *RedisCursors) CompareAndSet(ctx context.Context, departmentID string, old, next int) (bool, error) {
	if r.rdb == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	if departmentID == "" {
		return false, fmt.Errorf("department id is required")
	}
	res, err := cursorCASScript.Run(ctx, r.rdb, []string{r.key(departmentID)}, old, next).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}
