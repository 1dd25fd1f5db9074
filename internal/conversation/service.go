// ABOUTME: Conversation service orchestrating provider turns, the message log and live broadcast
// ABOUTME: Record first, then ask the provider; failures come back as assistant text

package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/chat-relay/internal/provider"
	"github.com/2389/chat-relay/internal/store"
)

// MessageStore defines what the service needs from the conversation log
type MessageStore interface {
	Append(msg store.Message) uint64
	AppendIf(msg store.Message, gen uint64) bool
	List() []store.Message
	Get(id string) (store.Message, bool)
	Clear()
	Len() int
}

// ProviderResolver maps a provider id to a client, applying the default
type ProviderResolver interface {
	Resolve(id string) provider.Client
}

// Recorder receives a copy of every appended message (e.g. the audit ledger)
type Recorder interface {
	Record(ctx context.Context, msg store.Message, provider string) error
}

const recordTimeout = 5 * time.Second

// Service is the single entry point for conversation operations.
// It is safe for concurrent use; the provider call runs without holding any lock.
type Service struct {
	store     MessageStore
	providers ProviderResolver
	hub       *Broadcaster
	recorder  Recorder
	logger    *slog.Logger
}

// New creates a new conversation Service
func New(messages MessageStore, providers ProviderResolver, hub *Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     messages,
		providers: providers,
		hub:       hub,
		logger:    logger.With("component", "conversation"),
	}
}

// SetRecorder attaches a recorder that is handed every appended message.
// Must be called before the service starts handling requests.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// ListMessages returns a snapshot of the conversation in chronological order
func (s *Service) ListMessages() []store.Message {
	return s.store.List()
}

// GetMessage looks up one message by id
func (s *Service) GetMessage(id string) (store.Message, bool) {
	return s.store.Get(id)
}

// SendMessage runs one turn: the user message is appended and published, the
// provider is asked for a reply, and the assistant message is appended and
// published. An empty providerID selects the default provider. The returned
// assistant message may carry fallback text; SendMessage itself cannot fail.
//
// If the conversation is cleared while the provider call is outstanding, the
// reply is published and returned but not appended to the log.
func (s *Service) SendMessage(ctx context.Context, content, providerID string) store.Message {
	t := s.newTurn(s.providers.Resolve(providerID), content)

	reply, err := t.run(ctx)
	if err != nil {
		return newMessage(store.RoleAssistant, provider.EmptyResponseText)
	}
	return reply
}

// ClearMessages empties the conversation. Subscribers are not notified.
func (s *Service) ClearMessages() bool {
	s.store.Clear()
	s.logger.Info("conversation cleared")
	return true
}

// Subscribe returns a channel of messages appended after this call.
// See Broadcaster.Subscribe for lifetime rules.
func (s *Service) Subscribe(ctx context.Context) (<-chan store.Message, string) {
	return s.hub.Subscribe(ctx)
}

// Empty reports whether the conversation currently holds no messages
func (s *Service) Empty() bool {
	return s.store.Len() == 0
}

// Stats returns the message count and live subscriber count
func (s *Service) Stats() (messages, subscribers int) {
	return s.store.Len(), s.hub.SubscriberCount()
}

// record hands msg to the recorder with its own timeout; errors are logged only
func (s *Service) record(msg store.Message, providerID string) {
	if s.recorder == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := s.recorder.Record(ctx, msg, providerID); err != nil {
		s.logger.Error("failed to record message",
			"error", err,
			"message_id", msg.ID,
			"role", msg.Role)
	}
}

func newMessage(role store.Role, content string) store.Message {
	return store.Message{
		ID:        uuid.New().String(),
		Content:   content,
		Role:      role,
		Timestamp: time.Now().UTC(),
	}
}
