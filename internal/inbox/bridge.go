package inbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidArgument = errors.New("inbox: invalid argument")

// Bridge feeds telephony events into the unified inbox.
//
// Every Record* call finds or creates the conversation for the org and
// counterparty, upserts one message keyed by the provider correlation id,
// and refreshes the conversation's last-message metadata. Unread counts only
// move for newly created inbound messages, so provider retries are harmless.
type Bridge struct {
	repo  Repository
	clock func() time.Time
}

func NewBridge(repo Repository) *Bridge {
	return &Bridge{repo: repo, clock: time.Now}
}

type SMS struct {
	OrgID       string
	From        string
	ContactName string
	Body        string
	MediaURLs   []string
	MessageSid  string
}

type Voicemail struct {
	OrgID           string
	Phone           string
	ContactName     string
	CallSid         string
	RecordingURL    string
	DurationSeconds int
}

type CallRecord struct {
	OrgID           string
	Phone           string
	ContactName     string
	CallSid         string
	Direction       Direction
	Answered        bool
	DurationSeconds int
}

func (b *Bridge) RecordSMS(ctx context.Context, in SMS) (Message, error) {
	if in.MessageSid == "" {
		return Message{}, fmt.Errorf("%w: message sid required", ErrInvalidArgument)
	}
	return b.record(ctx, in.OrgID, in.From, in.ContactName, Message{
		Channel:    ChannelSMS,
		Direction:  DirectionInbound,
		Body:       in.Body,
		MediaURLs:  in.MediaURLs,
		ExternalID: in.MessageSid,
		Preview:    TextPreview(in.Body, len(in.MediaURLs)),
	})
}

// RecordVoicemail replaces any call placeholder for the same CallSid.
func (b *Bridge) RecordVoicemail(ctx context.Context, in Voicemail) (Message, error) {
	if in.CallSid == "" {
		return Message{}, fmt.Errorf("%w: call sid required", ErrInvalidArgument)
	}
	return b.record(ctx, in.OrgID, in.Phone, in.ContactName, Message{
		Channel:         ChannelVoicemail,
		Direction:       DirectionInbound,
		ExternalID:      in.CallSid,
		RecordingURL:    in.RecordingURL,
		DurationSeconds: in.DurationSeconds,
		Preview:         PreviewVoicemail,
	})
}

// AttachTranscription fills the body of an existing voicemail message.
func (b *Bridge) AttachTranscription(ctx context.Context, orgID, phone, callSid, text string) (Message, error) {
	if callSid == "" {
		return Message{}, fmt.Errorf("%w: call sid required", ErrInvalidArgument)
	}
	return b.record(ctx, orgID, phone, "", Message{
		Channel:    ChannelVoicemail,
		Direction:  DirectionInbound,
		Body:       strings.TrimSpace(text),
		ExternalID: callSid,
		Preview:    PreviewVoicemail,
	})
}

func (b *Bridge) RecordCall(ctx context.Context, in CallRecord) (Message, error) {
	if in.CallSid == "" {
		return Message{}, fmt.Errorf("%w: call sid required", ErrInvalidArgument)
	}
	dir := in.Direction
	if dir == "" {
		dir = DirectionInbound
	}
	return b.record(ctx, in.OrgID, in.Phone, in.ContactName, Message{
		Channel:         ChannelCall,
		Direction:       dir,
		ExternalID:      in.CallSid,
		DurationSeconds: in.DurationSeconds,
		Preview:         CallPreview(dir, in.Answered, in.DurationSeconds),
	})
}

func (b *Bridge) record(ctx context.Context, orgID, phone, contactName string, m Message) (Message, error) {
	if b.repo == nil {
		return Message{}, errors.New("inbox: repository not configured")
	}
	if orgID == "" || strings.TrimSpace(phone) == "" {
		return Message{}, fmt.Errorf("%w: org and phone required", ErrInvalidArgument)
	}
	now := b.clock().UTC()

	conv, err := b.repo.FindOrCreate(ctx, orgID, strings.TrimSpace(phone), contactName, now)
	if err != nil {
		return Message{}, fmt.Errorf("inbox: find conversation: %w", err)
	}

	m.ConversationID = conv.ID
	m.CreatedAt = now
	m.UpdatedAt = now

	prev, err := b.repo.MessageByExternalID(ctx, conv.ID, m.ExternalID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return Message{}, fmt.Errorf("inbox: load message: %w", err)
	case prev.Channel == ChannelVoicemail && m.Channel == ChannelCall:
		// A voicemail already replaced the call placeholder.
		return prev, nil
	case m.Channel == ChannelVoicemail:
		if m.Body == "" {
			m.Body = prev.Body
		}
		if m.DurationSeconds == 0 {
			m.DurationSeconds = prev.DurationSeconds
		}
	}

	saved, created, err := b.repo.UpsertMessage(ctx, m)
	if err != nil {
		return Message{}, fmt.Errorf("inbox: upsert message: %w", err)
	}
	if err := b.repo.Touch(ctx, conv.ID, saved, created && saved.Direction == DirectionInbound); err != nil {
		return Message{}, fmt.Errorf("inbox: touch conversation: %w", err)
	}
	return saved, nil
}
