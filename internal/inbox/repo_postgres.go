package inbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the following tables exist:
// - conversations (UNIQUE (org_id, contact_phone))
// - conversation_messages (UNIQUE (conversation_id, external_id))

// PostgresRepo implements Repository on database/sql.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const conversationColumns = `id, org_id, contact_phone, contact_name, status, last_message_at, last_message_preview, last_message_channel, unread_count, created_at, updated_at`

func (r *PostgresRepo) FindOrCreate(ctx context.Context, orgID, phone, contactName string, now time.Time) (Conversation, error) {
	// The no-op DO UPDATE makes RETURNING yield the existing row on conflict.
	q := `
INSERT INTO conversations (id, org_id, contact_phone, contact_name, status, unread_count, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'open', 0, $5, $5)
ON CONFLICT (org_id, contact_phone) DO UPDATE
SET contact_name = CASE WHEN conversations.contact_name = '' THEN EXCLUDED.contact_name ELSE conversations.contact_name END
RETURNING ` + conversationColumns
	return scanConversation(r.db.QueryRowContext(ctx, q, uuid.NewString(), orgID, phone, contactName, now))
}

func (r *PostgresRepo) UpsertMessage(ctx context.Context, m Message) (Message, bool, error) {
	media, err := json.Marshal(m.MediaURLs)
	if err != nil {
		return Message{}, false, err
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	const q = `
INSERT INTO conversation_messages (
  id, conversation_id, channel, direction, body, media_urls, external_id,
  recording_url, duration_seconds, preview, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11, $12)
ON CONFLICT (conversation_id, external_id) DO UPDATE
SET channel = EXCLUDED.channel,
    direction = EXCLUDED.direction,
    body = EXCLUDED.body,
    media_urls = CASE WHEN jsonb_array_length(EXCLUDED.media_urls) > 0 THEN EXCLUDED.media_urls ELSE conversation_messages.media_urls END,
    recording_url = COALESCE(NULLIF(EXCLUDED.recording_url, ''), conversation_messages.recording_url),
    duration_seconds = EXCLUDED.duration_seconds,
    preview = EXCLUDED.preview,
    updated_at = EXCLUDED.updated_at
RETURNING id, created_at, media_urls::text, recording_url, (xmax = 0) AS inserted
`
	if m.MediaURLs == nil {
		media = []byte("[]")
	}
	var (
		mediaOut string
		created  bool
	)
	if err := r.db.QueryRowContext(ctx, q,
		m.ID,
		m.ConversationID,
		string(m.Channel),
		string(m.Direction),
		m.Body,
		string(media),
		m.ExternalID,
		m.RecordingURL,
		m.DurationSeconds,
		m.Preview,
		m.CreatedAt,
		m.UpdatedAt,
	).Scan(&m.ID, &m.CreatedAt, &mediaOut, &m.RecordingURL, &created); err != nil {
		return Message{}, false, err
	}
	if err := json.Unmarshal([]byte(mediaOut), &m.MediaURLs); err != nil {
		return Message{}, false, err
	}
	return m, created, nil
}

func (r *PostgresRepo) Touch(ctx context.Context, conversationID string, m Message, incrementUnread bool) error {
	const q = `
UPDATE conversations
SET last_message_preview = CASE WHEN last_message_at IS NULL OR last_message_at <= $2 THEN $3 ELSE last_message_preview END,
    last_message_channel = CASE WHEN last_message_at IS NULL OR last_message_at <= $2 THEN $4 ELSE last_message_channel END,
    last_message_at = GREATEST(COALESCE(last_message_at, $2), $2),
    unread_count = unread_count + CASE WHEN $5 THEN 1 ELSE 0 END,
    status = 'open',
    updated_at = $6
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, conversationID, m.CreatedAt, m.Preview, string(m.Channel), incrementUnread, m.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Conversation(ctx context.Context, id string) (Conversation, error) {
	q := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	return scanConversation(r.db.QueryRowContext(ctx, q, id))
}

const messageColumns = `id, conversation_id, channel, direction, body, media_urls::text, external_id,
       recording_url, duration_seconds, preview, created_at, updated_at`

func (r *PostgresRepo) MessageByExternalID(ctx context.Context, conversationID, externalID string) (Message, error) {
	q := `SELECT ` + messageColumns + ` FROM conversation_messages WHERE conversation_id = $1 AND external_id = $2`
	return scanMessage(r.db.QueryRowContext(ctx, q, conversationID, externalID))
}

func (r *PostgresRepo) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	q := `SELECT ` + messageColumns + ` FROM conversation_messages WHERE conversation_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMessage(r rowScanner) (Message, error) {
	var (
		m     Message
		media string
	)
	if err := r.Scan(
		&m.ID,
		&m.ConversationID,
		&m.Channel,
		&m.Direction,
		&m.Body,
		&media,
		&m.ExternalID,
		&m.RecordingURL,
		&m.DurationSeconds,
		&m.Preview,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	if err := json.Unmarshal([]byte(media), &m.MediaURLs); err != nil {
		return Message{}, err
	}
	return m, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner) (Conversation, error) {
	var (
		c       Conversation
		lastAt  sql.NullTime
		channel sql.NullString
	)
	if err := r.Scan(
		&c.ID,
		&c.OrgID,
		&c.ContactPhone,
		&c.ContactName,
		&c.Status,
		&lastAt,
		&c.LastMessagePreview,
		&channel,
		&c.UnreadCount,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}
	if lastAt.Valid {
		t := lastAt.Time
		c.LastMessageAt = &t
	}
	c.LastMessageChannel = Channel(channel.String)
	return c, nil
}
