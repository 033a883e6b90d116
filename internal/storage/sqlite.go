package storage

import (
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = FULL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS streams (
    name       TEXT PRIMARY KEY,
    updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS records (
    stream TEXT NOT NULL,
    seq    INTEGER NOT NULL,
    line   TEXT NOT NULL,
    PRIMARY KEY (stream, seq)
);
`

// SQLStore keeps every stream in one SQLite database, one row per line.
// Lines written to a stream become durable when the stream is flushed.
type SQLStore struct {
	path string
	db   *sql.DB
}

func NewSQLStore(path string) *SQLStore {
	return &SQLStore{path: path}
}

func (s *SQLStore) Init() error {
	if s.db != nil {
		return nil
	}
	if s.path == "" {
		return fmt.Errorf("no database path configured")
	}
	if err := ensureDir(s.path); err != nil {
		return fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return fmt.Errorf("init schema: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLStore) Open(name string, mode Mode) (Stream, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	switch mode {
	case ModeRead:
		exists, err := s.Exists(name)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		lines, err := s.lines(name)
		if err != nil {
			return nil, err
		}
		return &sqlReadStream{lines: lines}, nil

	case ModeWrite:
		if err := s.truncate(name); err != nil {
			return nil, err
		}
		return &sqlWriteStream{db: s.db, name: name}, nil

	default:
		return nil, fmt.Errorf("unknown open mode %d", mode)
	}
}

func (s *SQLStore) Exists(name string) (bool, error) {
	if s.db == nil {
		return false, ErrNotInitialized
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM streams WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query stream %s: %w", name, err)
	}
	return n > 0, nil
}

func (s *SQLStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLStore) truncate(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin truncate: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.Exec(`
		INSERT INTO streams (name, updated_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at
	`, name, now); err != nil {
		return fmt.Errorf("create stream %s: %w", name, err)
	}
	if _, err := tx.Exec(`DELETE FROM records WHERE stream = ?`, name); err != nil {
		return fmt.Errorf("truncate stream %s: %w", name, err)
	}
	return tx.Commit()
}

func (s *SQLStore) lines(name string) ([]string, error) {
	rows, err := s.db.Query(`SELECT line FROM records WHERE stream = ? ORDER BY seq ASC`, name)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var lines []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type sqlReadStream struct {
	lines []string
	next  int
}

func (r *sqlReadStream) ReadLine() (string, error) {
	if r.next >= len(r.lines) {
		return "", io.EOF
	}
	line := r.lines[r.next]
	r.next++
	return line, nil
}

func (r *sqlReadStream) WriteLine(string) error { return ErrReadOnly }
func (r *sqlReadStream) Flush() error           { return nil }
func (r *sqlReadStream) Close() error           { return nil }

type sqlWriteStream struct {
	db      *sql.DB
	name    string
	seq     int64
	pending []string
}

func (w *sqlWriteStream) ReadLine() (string, error) { return "", ErrWriteOnly }

func (w *sqlWriteStream) WriteLine(line string) error {
	w.pending = append(w.pending, line)
	return nil
}

// Flush commits the staged lines in one transaction.
func (w *sqlWriteStream) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO records (stream, seq, line) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	seq := w.seq
	for _, line := range w.pending {
		seq++
		if _, err := stmt.Exec(w.name, seq, line); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	w.seq = seq
	w.pending = nil
	return nil
}

func (w *sqlWriteStream) Close() error {
	return w.Flush()
}
