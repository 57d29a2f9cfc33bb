// Package indexdb maintains an optional SQLite read-model index of tick and
// fault rows. It is purely observational: the engine never reads it back, and
// a slow or failed index never stalls the tick pipeline.
package indexdb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"modhost.dev/internal/engine"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqFault
)

type req struct {
	kind reqKind

	tick  engine.TickLogEntry
	fault engine.FaultEntry
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// High buffer: bursty fault runs (a broken mod panicking every tick)
		// must not stall the tick goroutine.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			stage TEXT NOT NULL,
			suppressed INTEGER NOT NULL,
			screens INTEGER NOT NULL,
			commands INTEGER NOT NULL,
			duration_ms REAL NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS faults (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			phase TEXT NOT NULL,
			actor TEXT NOT NULL,
			message TEXT NOT NULL,
			peers INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_faults_tick ON faults(tick);`,
		`CREATE INDEX IF NOT EXISTS idx_faults_actor_tick ON faults(actor, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteTick(entry engine.TickLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqTick, tick: entry}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
	return nil
}

func (s *SQLiteIndex) WriteFault(entry engine.FaultEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqFault, fault: entry}:
	default:
	}
	return nil
}

func (s *SQLiteIndex) loop() {
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,stage,suppressed,screens,commands,duration_ms,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertFault, _ := s.db.Prepare(`INSERT INTO faults(tick,phase,actor,message,peers,recorded_at,raw_json) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		if insertTick != nil {
			_ = insertTick.Close()
		}
		if insertFault != nil {
			_ = insertFault.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.Begin()
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			if insertTick == nil {
				continue
			}
			b, _ := json.Marshal(r.tick)
			if _, err := tx.Stmt(insertTick).Exec(
				int64(r.tick.Tick),
				r.tick.Stage,
				boolToInt(r.tick.Suppressed),
				r.tick.Screens,
				r.tick.Commands,
				r.tick.DurationMs,
				string(b),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		case reqFault:
			if insertFault == nil {
				continue
			}
			b, _ := json.Marshal(r.fault)
			if _, err := tx.Stmt(insertFault).Exec(
				int64(r.fault.Tick),
				r.fault.Phase,
				r.fault.Actor,
				r.fault.Message,
				r.fault.Peers,
				r.fault.RecordedAt,
				string(b),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
