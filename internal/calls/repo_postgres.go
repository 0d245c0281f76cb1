package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the calls table from migrations/0001_callrouting.sql:
// UNIQUE (provider_call_id) is what makes Upsert idempotent.

// PostgresStore implements Store on database/sql (pgx stdlib driver).
type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const callColumns = `provider_call_id, org_id, direction, from_number, to_number, caller_name, status,
       started_at, ended_at, duration_seconds, department_id, agent_id, agent_leg_id,
       cursor_snapshot, conference_room, recording_url, voicemail_url, transcription,
       created_at, updated_at`

// upsertCallSQL applies a Patch in one statement. Parameters left NULL keep the
// stored value. The status CASE mirrors Advance: a terminal row keeps its
// status and a live row never moves backwards.
const upsertCallSQL = `
INSERT INTO calls (
  provider_call_id, org_id, direction, from_number, to_number, caller_name, status,
  started_at, ended_at, duration_seconds, department_id, agent_id, agent_leg_id,
  cursor_snapshot, conference_room, recording_url, voicemail_url, transcription,
  created_at, updated_at
) VALUES (
  $1,
  COALESCE($2::text, ''),
  COALESCE($3::text, 'inbound'),
  COALESCE($4::text, ''),
  COALESCE($5::text, ''),
  COALESCE($6::text, ''),
  COALESCE($7::text, 'initiated'),
  COALESCE($8::timestamptz, $19),
  $9::timestamptz,
  COALESCE($10::int, 0),
  COALESCE($11::text, ''),
  COALESCE($12::text, ''),
  COALESCE($13::text, ''),
  COALESCE($14::int, 0),
  COALESCE($15::text, ''),
  COALESCE($16::text, ''),
  COALESCE($17::text, ''),
  COALESCE($18::text, ''),
  $19, $19
)
ON CONFLICT (provider_call_id) DO UPDATE SET
  org_id           = COALESCE($2::text, calls.org_id),
  direction        = COALESCE($3::text, calls.direction),
  from_number      = COALESCE($4::text, calls.from_number),
  to_number        = COALESCE($5::text, calls.to_number),
  caller_name      = COALESCE($6::text, calls.caller_name),
  status = CASE
    WHEN $7::text IS NULL THEN calls.status
    WHEN calls.status IN ('completed', 'no_answer', 'busy', 'failed', 'canceled', 'voicemail') THEN calls.status
    WHEN array_position(ARRAY['initiated', 'ringing', 'in_progress', 'transferred'], $7::text)
       < array_position(ARRAY['initiated', 'ringing', 'in_progress', 'transferred'], calls.status) THEN calls.status
    ELSE $7::text
  END,
  started_at       = COALESCE($8::timestamptz, calls.started_at),
  ended_at         = COALESCE($9::timestamptz, calls.ended_at),
  duration_seconds = COALESCE($10::int, calls.duration_seconds),
  department_id    = COALESCE($11::text, calls.department_id),
  agent_id         = COALESCE($12::text, calls.agent_id),
  agent_leg_id     = COALESCE($13::text, calls.agent_leg_id),
  cursor_snapshot  = COALESCE($14::int, calls.cursor_snapshot),
  conference_room  = COALESCE($15::text, calls.conference_room),
  recording_url    = COALESCE($16::text, calls.recording_url),
  voicemail_url    = COALESCE($17::text, calls.voicemail_url),
  transcription    = COALESCE($18::text, calls.transcription),
  updated_at       = $19
RETURNING ` + callColumns

func (s *PostgresStore) Upsert(ctx context.Context, providerCallID string, p Patch) (Call, error) {
	if providerCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	var status *string
	if p.Status != nil && p.Status.Valid() {
		v := string(*p.Status)
		status = &v
	}
	var direction *string
	if p.Direction != nil {
		v := string(*p.Direction)
		direction = &v
	}

	row := s.db.QueryRowContext(ctx, upsertCallSQL,
		providerCallID,
		nullString(p.OrgID),
		nullString(direction),
		nullString(p.From),
		nullString(p.To),
		nullString(p.CallerName),
		nullString(status),
		nullTime(p.StartedAt),
		nullTime(p.EndedAt),
		nullInt(p.DurationSeconds),
		nullString(p.DepartmentID),
		nullString(p.AgentID),
		nullString(p.AgentLegID),
		nullInt(p.CursorSnapshot),
		nullString(p.ConferenceRoom),
		nullString(p.RecordingURL),
		nullString(p.VoicemailURL),
		nullString(p.Transcription),
		s.clock().UTC(),
	)
	return scanCall(row)
}

func (s *PostgresStore) Get(ctx context.Context, providerCallID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE provider_call_id = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, providerCallID))
}

func (s *PostgresStore) FindOpenByCounterparty(ctx context.Context, orgID, phone string) (Call, error) {
	q := `SELECT ` + callColumns + `
FROM calls
WHERE org_id = $1
  AND (from_number = $2 OR to_number = $2)
  AND status NOT IN ('completed', 'no_answer', 'busy', 'failed', 'canceled', 'voicemail')
ORDER BY created_at DESC
LIMIT 1`
	return scanCall(s.db.QueryRowContext(ctx, q, orgID, phone))
}

func (s *PostgresStore) List(ctx context.Context, orgID string, from, to time.Time) ([]Call, error) {
	if orgID == "" {
		return nil, ErrInvalidArgument
	}
	q := `SELECT ` + callColumns + `
FROM calls
WHERE org_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q, orgID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(r rowScanner) (Call, error) {
	var c Call
	var ended sql.NullTime
	if err := r.Scan(
		&c.ProviderCallID,
		&c.OrgID,
		&c.Direction,
		&c.From,
		&c.To,
		&c.CallerName,
		&c.Status,
		&c.StartedAt,
		&ended,
		&c.DurationSeconds,
		&c.DepartmentID,
		&c.AgentID,
		&c.AgentLegID,
		&c.CursorSnapshot,
		&c.ConferenceRoom,
		&c.RecordingURL,
		&c.VoicemailURL,
		&c.Transcription,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	if ended.Valid {
		t := ended.Time
		c.EndedAt = &t
	}
	return c, nil
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}
