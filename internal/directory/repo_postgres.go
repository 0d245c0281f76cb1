package directory

import (
	"context"
	"database/sql"
	"errors"
)

// NOTE: This repository assumes the following tables exist:
// - phone_numbers
// - departments
// - agents (UNIQUE (department_id, round_robin_order))

// PostgresRepo implements Directory on database/sql.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const departmentColumns = `id, org_id, name, hold_music_url, max_queue_wait_seconds, ring_timeout_seconds, sort_order, created_at, updated_at`

const agentColumns = `id, org_id, department_id, display_name, number, extension, is_available, round_robin_order`

func (r *PostgresRepo) ResolveNumber(ctx context.Context, dialed string) (PhoneNumber, error) {
	const q = `
SELECT number, org_id, COALESCE(department_id, ''), greeting
FROM phone_numbers
WHERE number = $1
`
	var n PhoneNumber
	if err := r.db.QueryRowContext(ctx, q, dialed).Scan(&n.Number, &n.OrgID, &n.DepartmentID, &n.Greeting); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PhoneNumber{}, ErrNotFound
		}
		return PhoneNumber{}, err
	}
	return n, nil
}

func (r *PostgresRepo) Department(ctx context.Context, id string) (Department, error) {
	q := `SELECT ` + departmentColumns + ` FROM departments WHERE id = $1`
	return scanDepartment(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) Departments(ctx context.Context, orgID string) ([]Department, error) {
	q := `SELECT ` + departmentColumns + ` FROM departments WHERE org_id = $1 ORDER BY sort_order, id`
	rows, err := r.db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Department, 0)
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) AgentsByDepartment(ctx context.Context, departmentID string) ([]Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents WHERE department_id = $1 ORDER BY round_robin_order, id`
	rows, err := r.db.QueryContext(ctx, q, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Agent, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) AgentByExtension(ctx context.Context, orgID, extension string) (Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents WHERE org_id = $1 AND extension = $2 AND extension <> '' ORDER BY id LIMIT 1`
	return scanAgent(r.db.QueryRowContext(ctx, q, orgID, extension))
}

func (r *PostgresRepo) Agent(ctx context.Context, id string) (Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	return scanAgent(r.db.QueryRowContext(ctx, q, id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDepartment(r rowScanner) (Department, error) {
	var d Department
	if err := r.Scan(
		&d.ID,
		&d.OrgID,
		&d.Name,
		&d.HoldMusicURL,
		&d.MaxQueueWaitSeconds,
		&d.RingTimeoutSeconds,
		&d.SortOrder,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Department{}, ErrNotFound
		}
		return Department{}, err
	}
	return d, nil
}

func scanAgent(r rowScanner) (Agent, error) {
	var a Agent
	if err := r.Scan(
		&a.ID,
		&a.OrgID,
		&a.DepartmentID,
		&a.DisplayName,
		&a.Number,
		&a.Extension,
		&a.IsAvailable,
		&a.RoundRobinOrder,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, err
	}
	return a, nil
}
