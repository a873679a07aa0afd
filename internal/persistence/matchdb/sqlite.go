// Package matchdb keeps a queryable sqlite index of session outcomes.
// Writes are funneled through a single writer goroutine so the session loop
// never blocks on disk.
package matchdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteMatchDB struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqSessionStarted reqKind = iota + 1
	reqParticipant
	reqElimination
	reqSessionEnded
)

type req struct {
	kind reqKind

	sessionID string
	tick      uint64

	hunterID     int64
	participants int

	pID   int64
	pName string
	pRole string

	reporterID      int64
	targetID        int64
	targetWasHunter bool

	winningRole string
	reason      string
}

func Open(path string) (*SQLiteMatchDB, error) {
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

	s := &SQLiteMatchDB{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads. NORMAL is a decent
	// durability/perf tradeoff for a derived index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			started_tick INTEGER NOT NULL,
			hunter_id INTEGER NOT NULL,
			participants INTEGER NOT NULL,
			ended_tick INTEGER,
			winning_role TEXT,
			reason TEXT,
			started_at TEXT NOT NULL,
			ended_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS participants (
			session_id TEXT NOT NULL,
			participant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			PRIMARY KEY (session_id, participant_id)
		);`,
		`CREATE TABLE IF NOT EXISTS eliminations (
			session_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			reporter_id INTEGER NOT NULL,
			target_id INTEGER NOT NULL,
			target_was_hunter INTEGER NOT NULL,
			PRIMARY KEY (session_id, tick, target_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_eliminations_target ON eliminations(target_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteMatchDB) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteMatchDB) SessionStarted(sessionID string, tick uint64, hunterID int64, participants int) {
	s.enqueue(req{kind: reqSessionStarted, sessionID: sessionID, tick: tick, hunterID: hunterID, participants: participants})
}

func (s *SQLiteMatchDB) ParticipantSeen(sessionID string, id int64, name string, role string) {
	s.enqueue(req{kind: reqParticipant, sessionID: sessionID, pID: id, pName: name, pRole: role})
}

func (s *SQLiteMatchDB) EliminationRecorded(sessionID string, tick uint64, reporterID, targetID int64, targetWasHunter bool) {
	s.enqueue(req{kind: reqElimination, sessionID: sessionID, tick: tick, reporterID: reporterID, targetID: targetID, targetWasHunter: targetWasHunter})
}

func (s *SQLiteMatchDB) SessionEnded(sessionID string, tick uint64, winningRole, reason string) {
	s.enqueue(req{kind: reqSessionEnded, sessionID: sessionID, tick: tick, winningRole: winningRole, reason: reason})
}

func (s *SQLiteMatchDB) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; the journal remains the source
		// of truth.
	}
}

func (s *SQLiteMatchDB) loop() {
	ctx := context.Background()

	insertSession, _ := s.db.Prepare(`INSERT OR REPLACE INTO sessions(session_id,started_tick,hunter_id,participants,started_at) VALUES(?,?,?,?,?)`)
	insertParticipant, _ := s.db.Prepare(`INSERT OR REPLACE INTO participants(session_id,participant_id,name,role) VALUES(?,?,?,?)`)
	insertElimination, _ := s.db.Prepare(`INSERT OR REPLACE INTO eliminations(session_id,tick,reporter_id,target_id,target_was_hunter) VALUES(?,?,?,?,?)`)
	updateEnded, _ := s.db.Prepare(`UPDATE sessions SET ended_tick=?, winning_role=?, reason=?, ended_at=? WHERE session_id=?`)
	defer func() {
		for _, st := range []*sql.Stmt{insertSession, insertParticipant, insertElimination, updateEnded} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 256
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
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
		now := time.Now().UTC().Format(time.RFC3339Nano)
		var err error
		switch r.kind {
		case reqSessionStarted:
			if insertSession != nil {
				_, err = tx.Stmt(insertSession).Exec(r.sessionID, int64(r.tick), r.hunterID, r.participants, now)
			}
		case reqParticipant:
			if insertParticipant != nil {
				_, err = tx.Stmt(insertParticipant).Exec(r.sessionID, r.pID, r.pName, r.pRole)
			}
		case reqElimination:
			if insertElimination != nil {
				_, err = tx.Stmt(insertElimination).Exec(r.sessionID, int64(r.tick), r.reporterID, r.targetID, boolInt(r.targetWasHunter))
			}
		case reqSessionEnded:
			if updateEnded != nil {
				_, err = tx.Stmt(updateEnded).Exec(int64(r.tick), r.winningRole, r.reason, now, r.sessionID)
			}
		}
		if err != nil {
			rollback()
			continue
		}
		opCount++
		// Commit when drained so low-volume sessions become visible to
		// queries promptly.
		if opCount >= commitEvery || len(s.ch) == 0 || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Flush blocks until the writer has drained everything enqueued before the
// call. Test helper.
func (s *SQLiteMatchDB) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	for len(s.ch) > 0 {
		time.Sleep(5 * time.Millisecond)
	}
	// One more sleep so the in-flight request commits.
	time.Sleep(20 * time.Millisecond)
	_, _ = s.db.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('flushed_at',?)`, time.Now().UTC().Format(time.RFC3339Nano))
}

// SessionRow is the query shape for one recorded session.
type SessionRow struct {
	SessionID    string
	StartedTick  uint64
	HunterID     int64
	Participants int
	EndedTick    uint64
	WinningRole  string
	Reason       string
}

func (s *SQLiteMatchDB) SessionByID(id string) (SessionRow, error) {
	var row SessionRow
	var endedTick sql.NullInt64
	var winning, reason sql.NullString
	err := s.db.QueryRow(
		`SELECT session_id, started_tick, hunter_id, participants, ended_tick, winning_role, reason FROM sessions WHERE session_id=?`, id,
	).Scan(&row.SessionID, &row.StartedTick, &row.HunterID, &row.Participants, &endedTick, &winning, &reason)
	if err != nil {
		return row, err
	}
	if endedTick.Valid {
		row.EndedTick = uint64(endedTick.Int64)
	}
	row.WinningRole = winning.String
	row.Reason = reason.String
	return row, nil
}

func (s *SQLiteMatchDB) EliminationCount(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM eliminations WHERE session_id=?`, sessionID).Scan(&n)
	return n, err
}
