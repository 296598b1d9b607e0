// File: internal/history/store.go
// quiznet server - match history store
//
// Persists a one-line record per finished session so operators can see
// past results after a restart (spec.md's explicit non-goal is
// persistence of LIVE sessions across restarts - a finished session's
// summary is a completely different, append-only concern). Grounded on
// the teacher's DB_TYPE-switched connection setup (internal/database):
// sqlite for a single-file deployment, postgres for anything bigger.

package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"quiznet/internal/session"
)

// Store durably records finished-session summaries. It implements
// session.HistoryRecorder.
type Store struct {
	db *sql.DB
}

// Config selects the backing database, mirroring the teacher's
// DB_TYPE/DB_NAME/DB_HOST/... configuration fields.
type Config struct {
	Type string // "sqlite" or "postgres"
	Name string // file path (sqlite) or database name (postgres)
	Host string
	Port int
	User string
	Pass string
}

// Open connects to the configured database and creates the history
// table if it doesn't already exist.
func Open(cfg Config) (*Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Type {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("history: unsupported DB_TYPE %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("history: ping: %w", err)
	}

	if _, err := db.Exec(schemaFor(cfg.Type)); err != nil {
		return nil, fmt.Errorf("history: schema: %w", err)
	}

	log.Printf("history: connected (%s)", cfg.Type)
	return &Store{db: db}, nil
}

func openSQLite(cfg Config) (*sql.DB, error) {
	if dir := filepath.Dir(cfg.Name); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite3", cfg.Name)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Printf("history: warning: failed to set WAL mode: %v", err)
	}
	return db, nil
}

func openPostgres(cfg Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Pass, cfg.Name,
	)
	return sql.Open("postgres", dsn)
}

func schemaFor(dbType string) string {
	idType := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if dbType == "postgres" {
		idType = "SERIAL PRIMARY KEY"
	}
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS session_history (
	id %s,
	session_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	mode TEXT NOT NULL,
	nb_questions INTEGER NOT NULL,
	winner TEXT,
	ranking_json TEXT NOT NULL,
	finished_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_session_history_session_id ON session_history(session_id);
`, idType)
}

// Record implements session.HistoryRecorder. Failures are logged and
// swallowed (spec.md §7: a collaborator failure must never affect a
// live session's broadcast).
func (s *Store) Record(summary session.SessionSummary) {
	rankingJSON, err := json.Marshal(summary.Ranking)
	if err != nil {
		log.Printf("history: marshal ranking for session %d: %v", summary.SessionID, err)
		return
	}

	_, err = s.db.Exec(
		`INSERT INTO session_history (session_id, name, mode, nb_questions, winner, ranking_json)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		summary.SessionID, summary.Name, summary.Mode, summary.NbQuestions, summary.Winner, string(rankingJSON),
	)
	if err != nil {
		log.Printf("history: record session %d: %v", summary.SessionID, err)
	}
}

// Recent returns the most recently finished sessions, newest first.
func (s *Store) Recent(limit int) ([]Record, error) {
	rows, err := s.db.Query(
		`SELECT session_id, name, mode, nb_questions, winner, ranking_json, finished_at
		 FROM session_history ORDER BY id DESC LIMIT $1`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var rankingJSON string
		var winner sql.NullString
		if err := rows.Scan(&r.SessionID, &r.Name, &r.Mode, &r.NbQuestions, &winner, &rankingJSON, &r.FinishedAt); err != nil {
			return nil, err
		}
		r.Winner = winner.String
		if err := json.Unmarshal([]byte(rankingJSON), &r.Ranking); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record is a row of a finished session's history.
type Record struct {
	SessionID   int
	Name        string
	Mode        string
	NbQuestions int
	Winner      string
	Ranking     []session.RankingEntry
	FinishedAt  string
}
