package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/glebarez/go-sqlite"

	"github.com/comigor/cryptosec-go/internal/logger"
)

// SQLite is a Repository backed by a SQLite file. Tags are stored as a
// comma-separated column; matching happens per tag in Go.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and seeds it
// with the catalogue when the table is empty. Use ":memory:" for a private
// in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := "file:" + path + "?_busy_timeout=10000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared across queries.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY,
        title TEXT NOT NULL,
        type TEXT NOT NULL,
        size TEXT,
        date TEXT,
        tags TEXT
    );`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.seed(ctx, Catalogue()); err != nil {
		db.Close()
		return nil, err
	}
	logger.L.Info("sqlite document store initialized", "path", path)
	return s, nil
}

func (s *SQLite) seed(ctx context.Context, docs []Document) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents;`).Scan(&n); err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	if n > 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents (id, title, type, size, date, tags) VALUES (?,?,?,?,?,?);`,
			d.ID, d.Title, d.Type, d.Size, d.Date, strings.Join(d.Tags, ",")); err != nil {
			tx.Rollback()
			return fmt.Errorf("seed document %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// List returns every document ordered by id.
func (s *SQLite) List(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, type, size, date, tags FROM documents;`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		d, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortByID(out)
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, title, type, size, date, tags FROM documents WHERE id = ?;`, id)
	d, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return d, err
}

func (s *SQLite) Search(ctx context.Context, query string) ([]Document, error) {
	docs, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(docs, query), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Document, error) {
	var (
		d          Document
		size, date sql.NullString
		tags       sql.NullString
	)
	if err := r.Scan(&d.ID, &d.Title, &d.Type, &size, &date, &tags); err != nil {
		return Document{}, err
	}
	d.Size = size.String
	d.Date = date.String
	d.Tags = []string{}
	if tags.String != "" {
		d.Tags = strings.Split(tags.String, ",")
	}
	return d, nil
}
