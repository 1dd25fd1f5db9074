// ABOUTME: Append-only SQLite audit ledger of relayed messages using modernc.org/sqlite
// ABOUTME: Write-only record for operators; never loaded back into the conversation log

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// LedgerEntry is one recorded message plus the provider that handled its turn
type LedgerEntry struct {
	Message
	Provider   string
	RecordedAt time.Time
}

// Ledger records every appended message to SQLite
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewLedger opens (or creates) the ledger database at path.
// Parent directories are created if needed.
func NewLedger(path string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ledger")

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	if path == ":memory:" {
		// Each connection to :memory: is its own database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE,
			role        TEXT NOT NULL,
			content     TEXT NOT NULL,
			provider    TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			recorded_at TEXT NOT NULL,

			CHECK (role IN ('user', 'assistant'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}

	logger.Info("audit ledger initialized", "path", path)
	return &Ledger{db: db, logger: logger}, nil
}

// Record appends one message to the ledger
func (l *Ledger) Record(ctx context.Context, msg Message, provider string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO messages (id, role, content, provider, created_at, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Role), msg.Content, provider,
		msg.Timestamp.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("recording message %s: %w", msg.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, oldest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, role, content, provider, created_at, recorded_at FROM (
			SELECT * FROM messages ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var role, createdAt, recordedAt string
		if err := rows.Scan(&e.ID, &role, &e.Content, &e.Provider, &createdAt, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		e.Role = Role(role)
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
		}
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("parsing recorded_at %q: %w", recordedAt, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of recorded messages
func (l *Ledger) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting ledger rows: %w", err)
	}
	return n, nil
}

// Close releases the database handle
func (l *Ledger) Close() error {
	return l.db.Close()
}
