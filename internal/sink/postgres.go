package sink

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// TableName is the table PostgresWriter loads into
const TableName = "georender_records"

// PostgresOptions configures a PostgresWriter
type PostgresOptions struct {
	ConnString   string
	Schema       string
	DropExisting bool
	CreateIndex  bool
	Log          *zap.Logger
}

// PostgresWriter streams entries into PostgreSQL with a single COPY
type PostgresWriter struct {
	opts  PostgresOptions
	pool  *pgxpool.Pool
	table pgx.Identifier
	rows  chan []any
	done  chan error
	count atomic.Int64
}

// NewPostgresWriter connects, prepares the table and starts the COPY
func NewPostgresWriter(ctx context.Context, opts PostgresOptions) (*PostgresWriter, error) {
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	poolConfig, err := pgxpool.ParseConfig(opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	w := &PostgresWriter{
		opts:  opts,
		pool:  pool,
		table: pgx.Identifier{opts.Schema, TableName},
		rows:  make(chan []any, 10000),
		done:  make(chan error, 1),
	}
	if err := w.prepare(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	go func() {
		n, err := pool.CopyFrom(ctx, w.table,
			[]string{"osm_id", "osm_type", "kind", "record"},
			&rowSource{rows: w.rows})
		if err != nil {
			// keep draining so writers blocked on the channel return
			go func() {
				for range w.rows {
				}
			}()
			w.done <- fmt.Errorf("COPY failed: %w", err)
			return
		}
		w.count.Store(n)
		w.done <- nil
	}()

	return w, nil
}

func (w *PostgresWriter) prepare(ctx context.Context) error {
	if w.opts.Schema != "public" {
		sql := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{w.opts.Schema}.Sanitize())
		if _, err := w.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	table := w.table.Sanitize()
	if w.opts.DropExisting {
		if _, err := w.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}

	createSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			osm_id BIGINT NOT NULL,
			osm_type CHAR(1) NOT NULL,
			kind SMALLINT NOT NULL,
			record BYTEA NOT NULL
		)
	`, table)
	if _, err := w.pool.Exec(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Write queues an entry for the COPY
func (w *PostgresWriter) Write(e Entry) error {
	row := []any{e.OsmID, e.OsmType, int16(e.Kind), e.Data}
	select {
	case w.rows <- row:
		return nil
	case err := <-w.done:
		// COPY ended early; put the result back for Close
		w.done <- err
		if err == nil {
			err = fmt.Errorf("COPY already finished")
		}
		return err
	}
}

// Close ends the COPY, builds the index and closes the pool
func (w *PostgresWriter) Close() error {
	defer w.pool.Close()
	close(w.rows)
	if err := <-w.done; err != nil {
		return err
	}
	w.opts.Log.Info("Records loaded",
		zap.String("table", w.table.Sanitize()),
		zap.Int64("rows", w.count.Load()))

	if !w.opts.CreateIndex {
		return nil
	}
	ctx := context.Background()
	idx := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (osm_type, osm_id)",
		pgx.Identifier{TableName + "_osm_idx"}.Sanitize(), w.table.Sanitize())
	if _, err := w.pool.Exec(ctx, idx); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if _, err := w.pool.Exec(ctx, fmt.Sprintf("ANALYZE %s", w.table.Sanitize())); err != nil {
		return fmt.Errorf("failed to analyze: %w", err)
	}
	return nil
}

// Rows returns the number of rows copied, valid after Close
func (w *PostgresWriter) Rows() int64 {
	return w.count.Load()
}

// rowSource implements pgx.CopyFromSource for streaming rows
type rowSource struct {
	rows    <-chan []any
	current []any
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]any, error) {
	return r.current, nil
}

func (r *rowSource) Err() error {
	return nil
}
