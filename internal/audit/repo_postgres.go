package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends audit events to the audit_events table.
// The table carries no UPDATE/DELETE grants for the application role.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, org_id, type, actor_user_id, actor_role, ip_address,
  call_id, agent_id, department_id, message, metadata, created_at
)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, '')::jsonb, $12)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.OrgID,
		string(e.Type),
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.CallID,
		e.AgentID,
		e.DepartmentID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
