// Package sqlite journals finalized candles so a restart can inspect what
// the engine saw. Writes are batched in transactions off the hot path; the
// builder's OnFinal hook only enqueues.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"marketpulse/internal/model"
)

const (
	batchSize  = 100
	flushDelay = 200 * time.Millisecond
	queueLen   = 1024
)

// Journal is a single-writer batched candle store.
type Journal struct {
	db *sql.DB
	ch chan model.Candle
}

// Open opens (or creates) the database in WAL mode and applies the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol  TEXT    NOT NULL,
			tf      INTEGER NOT NULL,
			ts      INTEGER NOT NULL,
			open    INTEGER NOT NULL,
			high    INTEGER NOT NULL,
			low     INTEGER NOT NULL,
			close   INTEGER NOT NULL,
			volume  INTEGER,
			oi      INTEGER,
			ticks   INTEGER,
			PRIMARY KEY (symbol, tf, ts)
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened candle journal at %s", path)
	return &Journal{db: db, ch: make(chan model.Candle, queueLen)}, nil
}

// Append enqueues one finalized candle. A full queue drops the candle rather
// than stalling the builder.
func (j *Journal) Append(c model.Candle) error {
	select {
	case j.ch <- c:
		return nil
	default:
		return fmt.Errorf("sqlite: journal queue full, dropped %s/%ds candle", c.Symbol, c.TF)
	}
}

// Run drains the queue into batched transactions. Flushes at batchSize or
// flushDelay, whichever comes first. Blocks until ctx is done.
func (j *Journal) Run(ctx context.Context) {
	batch := make([]model.Candle, 0, batchSize)
	timer := time.NewTimer(flushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := j.insertBatch(batch); err != nil {
			log.Printf("[sqlite] batch insert failed: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case c := <-j.ch:
			batch = append(batch, c)
			if len(batch) >= batchSize {
				flush()
				timer.Reset(flushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(flushDelay)
		}
	}
}

func (j *Journal) insertBatch(batch []model.Candle) error {
	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO candles (symbol, tf, ts, open, high, low, close, volume, oi, ticks)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range batch {
		if _, err := stmt.Exec(string(c.Symbol), c.TF, c.TS.Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume, c.OIClose, c.Ticks); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s/%ds@%d: %w", c.Symbol, c.TF, c.TS.Unix(), err)
		}
	}
	return tx.Commit()
}

// Recent returns the newest n candles for (symbol, tf), oldest first.
func (j *Journal) Recent(sym model.Symbol, tf, n int) ([]model.Candle, error) {
	rows, err := j.db.Query(`
		SELECT symbol, tf, ts, open, high, low, close, volume, oi, ticks
		FROM candles
		WHERE symbol = ? AND tf = ?
		ORDER BY ts DESC LIMIT ?
	`, string(sym), tf, n)
	if err != nil {
		return nil, fmt.Errorf("sqlite query: %w", err)
	}
	defer rows.Close()

	var out []model.Candle
	for rows.Next() {
		var c model.Candle
		var symStr string
		var tsUnix int64
		if err := rows.Scan(&symStr, &c.TF, &tsUnix, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.OIClose, &c.Ticks); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		c.Symbol = model.Symbol(symStr)
		c.TS = time.Unix(tsUnix, 0).In(time.FixedZone("IST", 5*3600+30*60))
		out = append(out, c)
	}
	// reverse to oldest-first
	for i, k := 0, len(out)-1; i < k; i, k = i+1, k-1 {
		out[i], out[k] = out[k], out[i]
	}
	return out, rows.Err()
}

// Close flushes nothing further and closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
