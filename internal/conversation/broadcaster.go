// ABOUTME: In-memory fan-out broadcaster for newly appended conversation messages
// ABOUTME: Each subscriber gets its own FIFO backlog so publishers never block

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/chat-relay/internal/store"
)

// Broadcaster provides in-memory pub/sub for appended messages.
// Every subscriber attached at publish time receives every message exactly once,
// in publish order. Slow subscribers accumulate a backlog instead of losing
// messages; with maxBacklog > 0 a subscriber whose backlog exceeds the limit is
// disconnected.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool
	maxBacklog  int
	logger      *slog.Logger
}

// subscriber owns an unbounded queue drained into out by its pump goroutine
type subscriber struct {
	id string

	mu    sync.Mutex
	queue []store.Message

	signal    chan struct{} // capacity 1, nudges the pump
	done      chan struct{}
	closeOnce sync.Once
	out       chan store.Message
}

// NewBroadcaster creates a broadcaster. maxBacklog <= 0 means unbounded.
// Pass nil logger for default.
func NewBroadcaster(maxBacklog int, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBacklog < 0 {
		maxBacklog = 0
	}
	return &Broadcaster{
		subscribers: make(map[string]*subscriber),
		maxBacklog:  maxBacklog,
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for messages published from now on.
// Returns a channel that receives messages and a subscription ID for later
// unsubscription. The channel is closed when ctx is cancelled, on Unsubscribe,
// on eviction, or when the broadcaster is closed.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan store.Message, string) {
	sub := &subscriber{
		id:     uuid.New().String(),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan store.Message),
	}
	go sub.pump()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.out, sub.id
	}
	b.subscribers[sub.id] = sub
	count := len(b.subscribers)
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", sub.id, "subscribers", count)

	// Auto-cleanup on context cancellation
	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(sub.id)
		case <-sub.done:
		}
	}()

	return sub.out, sub.id
}

// Publish queues msg for every current subscriber. It never blocks on a
// subscriber. Publishing after Close is a no-op.
func (b *Broadcaster) Publish(msg store.Message) {
	// Write lock serializes publishers so all subscribers see one order
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for id, sub := range b.subscribers {
		if !sub.enqueue(msg, b.maxBacklog) {
			delete(b.subscribers, id)
			sub.close()
			b.logger.Warn("subscriber evicted, backlog limit exceeded",
				"sub_id", id,
				"max_backlog", b.maxBacklog)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
// Undelivered messages are discarded.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	sub, ok := b.subscribers[subID]
	if ok {
		delete(b.subscribers, subID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	sub.close()
	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		sub.close()
		delete(b.subscribers, id)
	}

	b.logger.Debug("broadcaster closed")
}

// enqueue appends msg to the backlog. Returns false if the backlog limit
// would be exceeded.
func (s *subscriber) enqueue(msg store.Message, maxBacklog int) bool {
	s.mu.Lock()
	if maxBacklog > 0 && len(s.queue) >= maxBacklog {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return true
}

func (s *subscriber) next() (store.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return store.Message{}, false
	}
	msg := s.queue[0]
	s.queue[0] = store.Message{}
	s.queue = s.queue[1:]
	if len(s.queue) == 0 {
		s.queue = nil
	}
	return msg, true
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// pump forwards queued messages to out until the subscriber is closed
func (s *subscriber) pump() {
	defer close(s.out)

	for {
		msg, ok := s.next()
		if !ok {
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}

		select {
		case s.out <- msg:
		case <-s.done:
			return
		}
	}
}
