// ABOUTME: Service is the public surface of the message bus: send, peek, recv, poll, export
// ABOUTME: All callers go through here; no collaborator touches the tables directly

package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/fold-relay/internal/ident"
	"github.com/2389/fold-relay/internal/store"
)

// BusStore defines what the service needs from storage.
type BusStore interface {
	CreateChannel(ctx context.Context, name, topic string) (*store.Channel, error)
	ResolveChannel(ctx context.Context, name string) (*store.Channel, error)
	GetChannel(ctx context.Context, name string) (*store.Channel, error)
	RenameChannel(ctx context.Context, oldName, newName string) (bool, error)
	ArchiveChannel(ctx context.Context, name string) error
	PinChannel(ctx context.Context, name string) error
	UnpinChannel(ctx context.Context, name string) error
	DeleteChannel(ctx context.Context, name string) error
	ListChannels(ctx context.Context, opts store.ListOptions) ([]*store.ChannelSummary, error)

	AppendMessage(ctx context.Context, msg *store.Message) error
	ChannelMessages(ctx context.Context, channelID string) ([]*store.Message, error)
	UnreadCount(ctx context.Context, channelID, agentID string) (int64, error)
	ReadNew(ctx context.Context, channelID, agentID string) ([]*store.Message, error)

	AddNote(ctx context.Context, note *store.Note) error
	ListNotes(ctx context.Context, channelID string) ([]*store.Note, error)

	ExportChannel(ctx context.Context, name string) (*store.ChannelExport, error)
}

// IdentityResolver translates a human-readable identity into a stable agent
// id. It is a collaborator boundary: the bus never interprets identities.
type IdentityResolver interface {
	ResolveAgent(ctx context.Context, identity string) (string, error)
}

// Delivery is the result of one recv/poll: the new messages in ascending
// order, their count, and the distinct senders among them in first
// appearance order.
type Delivery struct {
	Messages []*store.Message
	Count    int
	Senders  []string
}

// Service coordinates the message bus. Construct with New and share one
// instance; every operation is a short synchronous unit of work against the
// store.
type Service struct {
	store    BusStore
	identity IdentityResolver
	events   EventSink
	ids      *ident.Generator
	logger   *slog.Logger
}

// New creates a Service. A nil sink disables event emission and a nil
// logger falls back to slog.Default.
func New(st BusStore, identity IdentityResolver, events EventSink, ids *ident.Generator, logger *slog.Logger) *Service {
	if events == nil {
		events = NopSink{}
	}
	if ids == nil {
		ids = ident.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		identity: identity,
		events:   events,
		ids:      ids,
		logger:   logger.With("component", "relay"),
	}
}

// Send appends a message to a channel, creating the channel if it does not
// exist yet, and returns the sender's agent id.
func (s *Service) Send(ctx context.Context, channel, identity, content string) (string, error) {
	if channel == "" {
		return "", fmt.Errorf("%w: channel name is required", store.ErrInvalidInput)
	}
	if identity == "" {
		return "", fmt.Errorf("%w: sender identity is required", store.ErrInvalidInput)
	}

	ch, err := s.store.ResolveChannel(ctx, channel)
	if err != nil {
		return "", err
	}

	agentID, err := s.identity.ResolveAgent(ctx, identity)
	if err != nil {
		return "", fmt.Errorf("resolving sender identity: %w", err)
	}

	id, err := s.ids.NextString()
	if err != nil {
		return "", fmt.Errorf("stamping message id: %w", err)
	}

	msg := &store.Message{
		ID:        id,
		ChannelID: ch.ID,
		SenderID:  agentID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return "", err
	}

	s.events.Emit(ctx, Event{
		Source:   "relay",
		Type:     "message.sent",
		Identity: identity,
		Data: map[string]any{
			"channel":    ch.Name,
			"message_id": msg.ID,
		},
	})

	return agentID, nil
}

// ResolveIdentity exposes the identity boundary for callers that need the
// agent id itself, such as the consumer side of recv.
func (s *Service) ResolveIdentity(ctx context.Context, identity string) (string, error) {
	return s.identity.ResolveAgent(ctx, identity)
}

// Peek returns every message in the channel in ascending order, plus the
// consumer's unread count when an agent id is supplied. It never advances
// any bookmark, so interleaving Peek with Recv changes nothing.
func (s *Service) Peek(ctx context.Context, channel, agentID string) ([]*store.Message, int64, error) {
	ch, err := s.store.ResolveChannel(ctx, channel)
	if err != nil {
		return nil, 0, err
	}

	msgs, err := s.store.ChannelMessages(ctx, ch.ID)
	if err != nil {
		return nil, 0, err
	}

	var unread int64
	if agentID != "" {
		unread, err = s.store.UnreadCount(ctx, ch.ID, agentID)
		if err != nil {
			return nil, 0, err
		}
	}
	return msgs, unread, nil
}

// Recv returns the messages past the consumer's bookmark and advances the
// bookmark to the last one. A consumer with no bookmark yet sees the whole
// channel. Delivery is at-most-once per bookmark advance: a consumer that
// needs at-least-once must act idempotently on what it fetched.
func (s *Service) Recv(ctx context.Context, channel, agentID string) (*Delivery, error) {
	if agentID == "" {
		return nil, fmt.Errorf("%w: consumer agent id is required", store.ErrInvalidInput)
	}

	ch, err := s.store.ResolveChannel(ctx, channel)
	if err != nil {
		return nil, err
	}

	msgs, err := s.store.ReadNew(ctx, ch.ID, agentID)
	if err != nil {
		return nil, err
	}

	return &Delivery{
		Messages: msgs,
		Count:    len(msgs),
		Senders:  distinctSenders(msgs),
	}, nil
}

// Poll is the fixed-interval polling contract for front-ends: identical to
// Recv, named for the timer loop that calls it.
func (s *Service) Poll(ctx context.Context, channel, agentID string) (*Delivery, error) {
	return s.Recv(ctx, channel, agentID)
}

// AddNote attaches a free-form note to a channel, outside bookmark ordering.
func (s *Service) AddNote(ctx context.Context, channel, identity, content string) (*store.Note, error) {
	if channel == "" {
		return nil, fmt.Errorf("%w: channel name is required", store.ErrInvalidInput)
	}
	if identity == "" {
		return nil, fmt.Errorf("%w: author identity is required", store.ErrInvalidInput)
	}

	ch, err := s.store.ResolveChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	agentID, err := s.identity.ResolveAgent(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("resolving author identity: %w", err)
	}

	note := &store.Note{ChannelID: ch.ID, AgentID: agentID, Content: content}
	if err := s.store.AddNote(ctx, note); err != nil {
		return nil, err
	}

	s.events.Emit(ctx, Event{
		Source:   "relay",
		Type:     "note.added",
		Identity: identity,
		Data:     map[string]any{"channel": ch.Name, "note_id": note.ID},
	})
	return note, nil
}

// Notes returns a channel's notes in creation order.
func (s *Service) Notes(ctx context.Context, channel string) ([]*store.Note, error) {
	ch, err := s.store.GetChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	return s.store.ListNotes(ctx, ch.ID)
}

// Export produces a complete snapshot of an existing channel. Unlike the
// send/receive path it does not create the channel implicitly.
func (s *Service) Export(ctx context.Context, channel string) (*store.ChannelExport, error) {
	return s.store.ExportChannel(ctx, channel)
}

// CreateChannel, RenameChannel, ArchiveChannel, PinChannel, UnpinChannel,
// DeleteChannel and ListChannels pass through to the registry so callers
// have a single surface.

func (s *Service) CreateChannel(ctx context.Context, name, topic string) (*store.Channel, error) {
	return s.store.CreateChannel(ctx, name, topic)
}

func (s *Service) RenameChannel(ctx context.Context, oldName, newName string) (bool, error) {
	return s.store.RenameChannel(ctx, oldName, newName)
}

func (s *Service) ArchiveChannel(ctx context.Context, name string) error {
	return s.store.ArchiveChannel(ctx, name)
}

func (s *Service) PinChannel(ctx context.Context, name string) error {
	return s.store.PinChannel(ctx, name)
}

func (s *Service) UnpinChannel(ctx context.Context, name string) error {
	return s.store.UnpinChannel(ctx, name)
}

func (s *Service) DeleteChannel(ctx context.Context, name string) error {
	err := s.store.DeleteChannel(ctx, name)
	if err == nil {
		s.events.Emit(ctx, Event{
			Source: "relay",
			Type:   "channel.deleted",
			Data:   map[string]any{"channel": name},
		})
	}
	return err
}

func (s *Service) ListChannels(ctx context.Context, opts store.ListOptions) ([]*store.ChannelSummary, error) {
	return s.store.ListChannels(ctx, opts)
}

// distinctSenders returns the distinct sender ids in first-appearance order.
func distinctSenders(msgs []*store.Message) []string {
	seen := make(map[string]bool, len(msgs))
	var senders []string
	for _, m := range msgs {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			senders = append(senders, m.SenderID)
		}
	}
	return senders
}
