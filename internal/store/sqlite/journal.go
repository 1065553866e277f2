package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trading-signalsv1/internal/logger"
	"trading-signalsv1/internal/strategy"

	"github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultRecentLimit bounds Recent when the caller passes a non-positive limit.
const DefaultRecentLimit = 50

// Journal persists accepted signals to SQLite for audit and later review.
type Journal struct {
	mu         sync.Mutex
	db         *sql.DB
	sq         squirrel.StatementBuilderType
	instrument string
}

// Filter narrows a journal query. Zero fields match everything.
type Filter struct {
	Type  strategy.Action
	Since time.Time
	Limit int
}

// Record is a row from the signals table.
type Record struct {
	ID           string    `json:"id"`
	Instrument   string    `json:"instrument"`
	Type         string    `json:"type"`
	Entry        float64   `json:"entry"`
	StopLoss     float64   `json:"stop_loss"`
	TakeProfit   float64   `json:"take_profit"`
	Timestamp    time.Time `json:"timestamp"`
	StrategyName string    `json:"strategy_name"`
	Reason       string    `json:"reason"`
	TraceID      string    `json:"trace_id,omitempty"`
}

// Open opens (or creates) the journal database at dbPath with WAL mode.
func Open(dbPath, instrument string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("signal journal opened", slog.String("path", dbPath), slog.String("instrument", instrument))
	return &Journal{
		db:         db,
		sq:         squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		instrument: instrument,
	}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signals (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			id            TEXT    NOT NULL UNIQUE,
			instrument    TEXT    NOT NULL,
			type          TEXT    NOT NULL,
			entry         REAL    NOT NULL,
			stop_loss     REAL    NOT NULL,
			take_profit   REAL    NOT NULL,
			ts_ms         INTEGER NOT NULL,
			strategy      TEXT    NOT NULL,
			reason        TEXT,
			trace_id      TEXT    NOT NULL DEFAULT '',
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_signals_ts ON signals(instrument, ts_ms);
	`)
	if err != nil {
		return err
	}
	return addColumnIfMissing(db, "signals", "trace_id", "TEXT NOT NULL DEFAULT ''")
}

// addColumnIfMissing upgrades journals created before column existed.
func addColumnIfMissing(db *sql.DB, table, column, decl string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Record persists sig with the trace ID carried by ctx, if any.
// Re-recording the same signal ID is a no-op.
func (j *Journal) Record(ctx context.Context, sig strategy.Signal) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.sq.
		Insert("signals").
		Options("OR IGNORE").
		Columns("id", "instrument", "type", "entry", "stop_loss", "take_profit", "ts_ms", "strategy", "reason", "trace_id").
		Values(
			sig.ID, j.instrument, string(sig.Type), sig.Entry, sig.StopLoss,
			sig.TakeProfit, sig.Timestamp.UnixMilli(), sig.StrategyName, sig.Reason,
			logger.TraceID(ctx),
		).
		RunWith(j.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("journal insert %s: %w", sig.ID, err)
	}
	return nil
}

// Recent returns the last limit signals, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	return j.Query(ctx, Filter{Limit: limit})
}

// Query returns this journal's instrument's signals matching f, newest first.
func (j *Journal) Query(ctx context.Context, f Filter) ([]Record, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	q := j.sq.
		Select("id", "instrument", "type", "entry", "stop_loss", "take_profit", "ts_ms", "strategy", "reason", "trace_id").
		From("signals").
		Where(squirrel.Eq{"instrument": j.instrument}).
		OrderBy("seq DESC").
		Limit(uint64(limit))
	if f.Type != "" {
		q = q.Where(squirrel.Eq{"type": string(f.Type)})
	}
	if !f.Since.IsZero() {
		q = q.Where(squirrel.GtOrEq{"ts_ms": f.Since.UnixMilli()})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("journal build query: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		var (
			r      Record
			tsMs   int64
			reason sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Instrument, &r.Type, &r.Entry, &r.StopLoss,
			&r.TakeProfit, &tsMs, &r.StrategyName, &reason, &r.TraceID); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		r.Timestamp = time.UnixMilli(tsMs).UTC()
		r.Reason = reason.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Run records signals from sigCh until ctx is cancelled or the channel is
// closed. Each row is tagged with the signal's trace ID. onErr is optional.
func (j *Journal) Run(ctx context.Context, sigCh <-chan strategy.Signal, onErr func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}
			sigCtx := logger.SignalContext(ctx, j.instrument, sig.Timestamp)
			if err := j.Record(sigCtx, sig); err != nil {
				slog.Error("journal write failed", append(logger.LogWithTrace(sigCtx), slog.Any("error", err))...)
				if onErr != nil {
					onErr(err)
				}
			}
		}
	}
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
