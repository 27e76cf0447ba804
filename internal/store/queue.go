// Package store implements the durable store-and-forward queue on an
// embedded SQLite file. Every routable record is persisted PENDING before
// any delivery attempt; an ACK transitions the row to DELIVERED.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sony/gobreaker"
	_ "modernc.org/sqlite"

	"github.com/helphub/relay-service/internal/domain/model"
)

const (
	statusPending   = "PENDING"
	statusDelivered = "DELIVERED"

	// seenCacheSize bounds the recently-stored id cache that short-circuits
	// the insert-or-ignore path for duplicate ids.
	seenCacheSize = 4096
)

// Queue owns the storage handle exclusively. Mutating operations serialize
// on an internal mutex (one logical writer at a time); readers share the
// same connection and observe consistent snapshots per query.
type Queue struct {
	db      *sql.DB
	logger  *slog.Logger
	mu      sync.Mutex
	seen    *lru.Cache[string, struct{}]
	breaker *gobreaker.CircuitBreaker
}

// Open creates the data directory if needed, opens (or creates) the queue
// file and applies pending migrations. The path ":memory:" yields an
// ephemeral queue for tests.
func Open(path string, logger *slog.Logger) (*Queue, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open queue storage %s: %w", path, err)
	}
	// A single connection keeps the writer serialized and is required for
	// the in-memory variant to see its own schema.
	db.SetMaxOpenConns(1)

	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	q := &Queue{
		db:     db,
		logger: logger,
		seen:   seen,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "queue-store",
			Timeout: 5 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("storage breaker state change",
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		}),
	}
	if err := q.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate queue storage: %w", err)
	}
	return q, nil
}

func (q *Queue) Close() error { return q.db.Close() }

// Store inserts rec as a PENDING row. Idempotent on id: re-inserting the
// same id is a no-op. An error means the record was not persisted and must
// not be transmitted. Repeated storage failures trip the breaker so that
// routing fast-fails rather than risking partial delivery.
func (q *Queue) Store(rec model.Record) error {
	if _, ok := q.seen.Get(rec.ID); ok {
		return nil
	}
	_, err := q.breaker.Execute(func() (any, error) {
		q.mu.Lock()
		defer q.mu.Unlock()
		var to any
		if rec.To != "" {
			to = rec.To
		}
		_, err := q.db.Exec(
			`INSERT OR IGNORE INTO messages
			   (id, from_client, to_client, type, timestamp, body, priority, status)
			 VALUES (?,?,?,?,?,?,?,?)`,
			rec.ID, rec.From, to, string(rec.Kind), rec.Timestamp, rec.Body,
			int(rec.Priority), statusPending,
		)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("store record %s: %w", rec.ID, err)
	}
	q.seen.Add(rec.ID, struct{}{})
	return nil
}

// MarkDelivered transitions the row to DELIVERED and stamps the delivery
// time. A missing id is a silent no-op.
func (q *Queue) MarkDelivered(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, err := q.db.Exec(
		`UPDATE messages SET status = ?, delivered_timestamp = ? WHERE id = ?`,
		statusDelivered, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("mark delivered %s: %w", id, err)
	}
	return nil
}

// PendingFor returns the replay batch for identity: PENDING rows addressed
// to it, plus PENDING broadcasts it did not originate, ordered by priority
// descending then timestamp ascending.
func (q *Queue) PendingFor(identity string) ([]model.Record, error) {
	rows, err := q.db.Query(
		`SELECT id, from_client, to_client, type, timestamp, body, priority
		   FROM messages
		  WHERE (to_client = ? AND status = ?)
		     OR (type = ? AND status = ? AND from_client != ?)
		  ORDER BY priority DESC, timestamp ASC`,
		identity, statusPending, string(model.KindBroadcast), statusPending, identity,
	)
	if err != nil {
		return nil, fmt.Errorf("pending for %s: %w", identity, err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		var (
			rec  model.Record
			to   sql.NullString
			kind string
			prio int
		)
		if err := rows.Scan(&rec.ID, &rec.From, &to, &kind, &rec.Timestamp, &rec.Body, &prio); err != nil {
			return nil, err
		}
		rec.Kind = model.Kind(kind)
		rec.To = to.String
		rec.Priority = model.PriorityFromLevel(prio)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertLastSeen records activity for identity in the client directory.
func (q *Queue) UpsertLastSeen(identity string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, err := q.db.Exec(
		`INSERT INTO clients (id, last_seen) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET last_seen = excluded.last_seen`,
		identity, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert last_seen %s: %w", identity, err)
	}
	return nil
}

// PendingCount returns the number of PENDING rows.
func (q *Queue) PendingCount() (int64, error) {
	return q.count(`SELECT COUNT(*) FROM messages WHERE status = ?`, statusPending)
}

// TotalCount returns the number of rows ever stored.
func (q *Queue) TotalCount() (int64, error) {
	return q.count(`SELECT COUNT(*) FROM messages`)
}

func (q *Queue) count(query string, args ...any) (int64, error) {
	var n int64
	if err := q.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// IdentitiesWithPendingDirect returns the distinct addressees of PENDING
// addressed rows. Broadcasts have no addressee and are excluded.
func (q *Queue) IdentitiesWithPendingDirect() ([]string, error) {
	rows, err := q.db.Query(
		`SELECT DISTINCT to_client FROM messages
		  WHERE status = ? AND to_client IS NOT NULL
		  ORDER BY to_client`,
		statusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("identities with pending: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
