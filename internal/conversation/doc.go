// Package conversation owns the relay's single conversation.
//
// # Service
//
// Service ties the provider registry, the message log and the broadcaster
// together:
//
//	svc := conversation.New(store.NewMessageStore(), registry, conversation.NewBroadcaster(0, logger), logger)
//
// Operations:
//
//   - SendMessage(ctx, content, providerID): run one turn, return the assistant message
//   - ListMessages(): snapshot of the log
//   - GetMessage(id): single lookup
//   - ClearMessages(): empty the log (not broadcast)
//   - Subscribe(ctx): live feed of appended messages
//
// A turn records the user message before the provider is called and the
// assistant message after it returns. The provider never fails, so every turn
// appends exactly two messages, unless the log is cleared while the provider
// call is outstanding; the reply is then published and returned but not
// stored. Each step runs as the entry action of a small state machine
// (github.com/qmuntal/stateless).
//
// # Broadcasting
//
// Broadcaster fans each appended message out to every subscriber. Each
// subscriber has an unbounded FIFO backlog drained by its own goroutine, so a
// publisher never waits on a reader and a reader never misses a message. An
// optional backlog limit disconnects readers that fall too far behind.
//
// # Recording
//
// SetRecorder attaches a best-effort sink (the SQLite audit ledger) that is
// handed every appended message along with the provider that served the turn.
package conversation
