package inbox

import "time"

// Conversation is the unified-inbox thread for one org and counterparty phone.
//
// Invariant: (OrgID, ContactPhone) is unique.
type Conversation struct {
	ID           string `json:"id" db:"id"`
	OrgID        string `json:"org_id" db:"org_id"`
	ContactPhone string `json:"contact_phone" db:"contact_phone"`
	ContactName  string `json:"contact_name,omitempty" db:"contact_name"`
	Status       string `json:"status" db:"status"`

	LastMessageAt      *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`
	LastMessagePreview string     `json:"last_message_preview,omitempty" db:"last_message_preview"`
	LastMessageChannel Channel    `json:"last_message_channel,omitempty" db:"last_message_channel"`
	UnreadCount        int        `json:"unread_count" db:"unread_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

const StatusOpen = "open"

// Message is one entry in a conversation.
//
// Invariant: (ConversationID, ExternalID) is unique; a second write with the
// same ExternalID updates the message in place.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	Channel        Channel   `json:"channel" db:"channel"`
	Direction      Direction `json:"direction" db:"direction"`
	Body           string    `json:"body" db:"body"`
	MediaURLs      []string  `json:"media_urls,omitempty" db:"media_urls"`
	// ExternalID is the provider correlation id (MessageSid or CallSid).
	ExternalID      string `json:"external_id" db:"external_id"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`
	DurationSeconds int    `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Preview         string `json:"preview" db:"preview"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Channel string

const (
	ChannelSMS       Channel = "sms"
	ChannelVoicemail Channel = "voicemail"
	ChannelCall      Channel = "call"
)

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)
