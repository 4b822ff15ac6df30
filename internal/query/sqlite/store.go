package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/querygrade/querygrade/internal/dataset"
	"github.com/querygrade/querygrade/internal/query"
)

const driverName = "sqlite3"

var errStoreClosed = errors.New("store is closed")

// Engine opens private in-memory SQLite databases. Tables are created without
// declared column types, so each inserted value keeps its own storage class.
type Engine struct {
	Logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	return &Engine{Logger: logger}
}

func (e *Engine) Open(ctx context.Context) (query.Store, error) {
	db, err := sql.Open(driverName, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// every pooled connection would get its own empty :memory: database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Store{db: db, logger: e.Logger}, nil
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	closeErr error
}

func (s *Store) Load(ctx context.Context, ds dataset.Dataset) error {
	if s.isClosed() {
		return errStoreClosed
	}
	if err := ds.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range ds.Tables {
		if err := s.loadTable(ctx, tx, table); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load tx: %w", err)
	}
	return nil
}

func (s *Store) loadTable(ctx context.Context, tx *sql.Tx, table dataset.Table) error {
	quotedColumns := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		quotedColumns = append(quotedColumns, query.QuoteIdent(column))
	}
	tableName := query.QuoteIdent(table.Name)

	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(quotedColumns, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q: %w", table.Name, err)
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", tableName, query.Placeholders(len(quotedColumns)))
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert for %q: %w", table.Name, err)
	}
	defer func() { _ = stmt.Close() }()

	for index, values := range table.TypedRows() {
		args, misaligned := query.BindRow(values, len(quotedColumns))
		if misaligned && s.logger != nil {
			s.logger.WarnContext(ctx, "row width does not match header",
				slog.String("table", table.Name),
				slog.Int("row", index+1),
				slog.Int("values", len(values)),
				slog.Int("columns", len(quotedColumns)),
			)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d into %q: %w", index+1, table.Name, err)
		}
	}
	return nil
}

func (s *Store) Run(ctx context.Context, sqlText string) (query.Result, error) {
	if s.isClosed() {
		return query.Result{}, &query.ExecutionError{SQL: sqlText, Err: errStoreClosed}
	}
	return query.Execute(ctx, s.db, sqlText)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.closeErr
	}
	s.closed = true
	s.closeErr = s.db.Close()
	return s.closeErr
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
