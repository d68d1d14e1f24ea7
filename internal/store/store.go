// ABOUTME: Store interface and record types for fold-relay persistence
// ABOUTME: Defines Channel, Message, Bookmark, Note, Agent and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrChannelExists is returned when creating or renaming to a channel name
// that is already taken. Names are unique across archived channels too.
var ErrChannelExists = errors.New("channel already exists")

// ErrInvalidInput is returned for empty or missing required fields. Wrapped
// messages name the offending field so a thin CLI can render them directly.
var ErrInvalidInput = errors.New("invalid input")

// Channel is the unit of message partitioning. A channel is active by
// default, archived when ArchivedAt is set (hidden from default listings but
// still readable and writable), and gone once deleted.
type Channel struct {
	ID         string
	Name       string
	Topic      string
	CreatedAt  time.Time
	ArchivedAt *time.Time
	PinnedAt   *time.Time
	Notes      string
}

// Archived reports whether the channel has been soft-deleted.
func (c *Channel) Archived() bool { return c.ArchivedAt != nil }

// Message is an immutable entry in a channel. The ID is time-ordered, so
// (CreatedAt, ID) totally orders messages within a channel.
type Message struct {
	ID        string
	ChannelID string
	SenderID  string
	Content   string
	CreatedAt time.Time
}

// Bookmark is a consumer cursor: the agent has seen every message in the
// channel up to and including LastSeenID.
type Bookmark struct {
	AgentID    string
	ChannelID  string
	LastSeenID string
	UpdatedAt  time.Time
}

// Note is an append-only channel annotation, outside bookmark ordering.
type Note struct {
	ID        string
	ChannelID string
	AgentID   string
	Content   string
	CreatedAt time.Time
}

// Agent maps a human-readable identity to a stable id.
type Agent struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// ChannelSummary is a channel annotated for listings.
type ChannelSummary struct {
	Channel
	MessageCount int64
	NoteCount    int64
	LastActivity *time.Time
	// UnreadCount is populated only when a consumer agent id was supplied
	// to ListChannels.
	UnreadCount int64
}

// ListOptions controls ListChannels.
type ListOptions struct {
	IncludeArchived bool
	// AgentID, when set, annotates each channel with that agent's unread
	// count.
	AgentID string
}

// ChannelExport is a complete snapshot of one channel.
type ChannelExport struct {
	Channel  *Channel   `json:"channel"`
	Messages []*Message `json:"messages"`
	Notes    []*Note    `json:"notes"`
}

// Store defines the persistence surface for the relay. No other code may
// touch the underlying tables directly.
type Store interface {
	// Channel registry
	CreateChannel(ctx context.Context, name, topic string) (*Channel, error)
	ResolveChannel(ctx context.Context, name string) (*Channel, error)
	GetChannel(ctx context.Context, name string) (*Channel, error)
	RenameChannel(ctx context.Context, oldName, newName string) (bool, error)
	ArchiveChannel(ctx context.Context, name string) error
	PinChannel(ctx context.Context, name string) error
	UnpinChannel(ctx context.Context, name string) error
	DeleteChannel(ctx context.Context, name string) error
	ListChannels(ctx context.Context, opts ListOptions) ([]*ChannelSummary, error)

	// Messages and bookmarks
	AppendMessage(ctx context.Context, msg *Message) error
	ChannelMessages(ctx context.Context, channelID string) ([]*Message, error)
	UnreadCount(ctx context.Context, channelID, agentID string) (int64, error)
	ReadNew(ctx context.Context, channelID, agentID string) ([]*Message, error)
	GetBookmark(ctx context.Context, agentID, channelID string) (*Bookmark, error)

	// Notes
	AddNote(ctx context.Context, note *Note) error
	ListNotes(ctx context.Context, channelID string) ([]*Note, error)

	// Agents
	EnsureAgent(ctx context.Context, name string) (*Agent, error)
	GetAgentByName(ctx context.Context, name string) (*Agent, error)

	// Export
	ExportChannel(ctx context.Context, name string) (*ChannelExport, error)

	// Close releases any resources held by the store
	Close() error
}
