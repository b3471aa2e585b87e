// Package notestore persists annotation records in a SQLite database.
package notestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phroun/textcore"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS notes (
	file      TEXT    NOT NULL,
	id        INTEGER NOT NULL,
	line_no   INTEGER NOT NULL,
	column_no INTEGER NOT NULL,
	content   TEXT    NOT NULL,
	PRIMARY KEY (file, id)
)`

// SQLiteStore keeps the notes of many files in one database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create notes table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the records saved for file, ordered by position.
func (s *SQLiteStore) Load(ctx context.Context, file string) ([]textcore.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, line_no, column_no, content FROM notes WHERE file = ? ORDER BY line_no, column_no, id`, file)
	if err != nil {
		return nil, fmt.Errorf("load notes for %s: %w", file, err)
	}
	defer rows.Close()

	var records []textcore.Record
	for rows.Next() {
		var id, line, column int64
		var content string
		if err := rows.Scan(&id, &line, &column, &content); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		records = append(records, textcore.Record{
			ID:      uint64(id),
			File:    file,
			Line:    uint32(line),
			Column:  uint32(column),
			Content: content,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load notes for %s: %w", file, err)
	}
	return records, nil
}

// Save replaces the records stored for file.
func (s *SQLiteStore) Save(ctx context.Context, file string, records []textcore.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save for %s: %w", file, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE file = ?`, file); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear notes for %s: %w", file, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO notes (file, id, line_no, column_no, content) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare note insert: %w", err)
	}
	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, file, int64(rec.ID), int64(rec.Line), int64(rec.Column), rec.Content); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("insert note %d: %w", rec.ID, err)
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit notes for %s: %w", file, err)
	}
	return nil
}

// Files lists every file that has saved notes.
func (s *SQLiteStore) Files(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT file FROM notes ORDER BY file`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// Delete removes all notes saved for file.
func (s *SQLiteStore) Delete(ctx context.Context, file string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE file = ?`, file); err != nil {
		return fmt.Errorf("delete notes for %s: %w", file, err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
