package directory

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("directory: not found")

// Directory is the read API over departments, agents and dialed numbers.
//
// Departments returns rows ordered by SortOrder; AgentsByDepartment returns
// every agent of the department (available or not) ordered by
// RoundRobinOrder then ID.
type Directory interface {
	ResolveNumber(ctx context.Context, dialed string) (PhoneNumber, error)
	Department(ctx context.Context, id string) (Department, error)
	Departments(ctx context.Context, orgID string) ([]Department, error)
	AgentsByDepartment(ctx context.Context, departmentID string) ([]Agent, error)
	AgentByExtension(ctx context.Context, orgID, extension string) (Agent, error)
	Agent(ctx context.Context, id string) (Agent, error)
}

// CursorStore holds the per-department round-robin cursor: the order value
// of the agent rung most recently. Zero means no agent has been rung yet.
//
// CompareAndSet must be atomic at the data layer so two concurrent calls in
// the same department cannot both claim the same turn.
type CursorStore interface {
	Cursor(ctx context.Context, departmentID string) (int, error)
	CompareAndSet(ctx context.Context, departmentID string, old, next int) (bool, error)
}
