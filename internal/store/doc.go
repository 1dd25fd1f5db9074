// Package store holds the conversation log and the optional audit ledger.
//
// # Message
//
// Message is the single data type that flows through the relay:
//
//	{ID, Content, Role, Timestamp}
//
// IDs are UUIDv4 strings, Role is "user" or "assistant". Messages are values
// and are never mutated after creation.
//
// # MessageStore
//
// MessageStore is the in-memory, append-only ordered log:
//
//   - Append: O(1) amortized, safe for concurrent callers
//   - List: snapshot copy, unaffected by later appends or clears
//   - Get: indexed lookup, returns (Message{}, false) when absent
//   - Clear: atomic with respect to List and Get, starts a new generation
//   - AppendIf: append only if no Clear happened since a given generation
//
// The log lives only as long as the process.
//
// # Ledger
//
// Ledger is an append-only SQLite record (modernc.org/sqlite, WAL mode) of every
// message the relay appended, together with the provider that served the turn.
// It exists for operators; nothing reads it back into the MessageStore.
package store
