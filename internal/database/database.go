// Package database wraps the relational store behind the two write
// primitives the pipeline needs: an atomic keyed upsert for tables with a
// uniqueness constraint, and a read-then-write fallback for tables without
// one.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NathnaelYimer/historical-bill/internal/gcp"
)

const (
	upsertAttempts = 3
	backoffBase    = time.Second
)

// DB wraps a pgx connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Connect builds a pool from the given credentials and verifies it with a
// ping.
func Connect(ctx context.Context, creds *gcp.DBCredentials) (*DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		url.QueryEscape(creds.Username), url.QueryEscape(creds.Password),
		creds.Host, creds.Port, creds.DBName)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// withTransaction runs fn inside a transaction, rolling back on error.
func (db *DB) withTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
				slog.Error("transaction rollback failed", "error", rbErr, "original_error", err)
			}
			return
		}
		err = tx.Commit(ctx)
	}()
	err = fn(tx)
	return err
}

// Upsert inserts the row, overwriting all non-key columns when the conflict
// key already exists. Transient failures are retried with exponential
// backoff because connection and contention errors are expected to
// self-correct.
func (db *DB) Upsert(ctx context.Context, schema, table string, row map[string]any, conflictCols []string) error {
	sql, args := buildUpsertSQL(schema, table, row, conflictCols)
	err := withRetry(ctx, upsertAttempts, backoffBase, func() error {
		return db.withTransaction(ctx, func(tx pgx.Tx) error {
			_, err := tx.Exec(ctx, sql, args...)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("failed to upsert into %s.%s: %w", schema, table, err)
	}
	return nil
}

// InsertOrUpdate writes a row to a table that lacks a usable uniqueness
// constraint: it checks existence by key inside a transaction, then updates
// or inserts. The check-then-write race window is accepted; there is a
// single writer per key in practice. No retry wrapper here, the caller owns
// retries for this path.
func (db *DB) InsertOrUpdate(ctx context.Context, schema, table string, row map[string]any, keyCol string) error {
	err := db.withTransaction(ctx, func(tx pgx.Tx) error {
		var exists bool
		checkSQL := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s.%s WHERE %s = $1)", schema, table, keyCol)
		if err := tx.QueryRow(ctx, checkSQL, row[keyCol]).Scan(&exists); err != nil {
			return fmt.Errorf("existence check failed: %w", err)
		}
		var sql string
		var args []any
		if exists {
			sql, args = buildUpdateSQL(schema, table, row, keyCol)
		} else {
			sql, args = buildInsertSQL(schema, table, row)
		}
		_, err := tx.Exec(ctx, sql, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert or update %s.%s: %w", schema, table, err)
	}
	return nil
}

// sortedColumns gives deterministic column order for generated statements.
func sortedColumns(row map[string]any) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

func buildInsertSQL(schema, table string, row map[string]any) (string, []any) {
	cols := sortedColumns(row)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[col]
	}
	sql := fmt.Sprintf("INSERT INTO %s.%s (%s) VALUES (%s)",
		schema, table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	return sql, args
}

func buildUpsertSQL(schema, table string, row map[string]any, conflictCols []string) (string, []any) {
	sql, args := buildInsertSQL(schema, table, row)
	conflictSet := make(map[string]bool, len(conflictCols))
	for _, col := range conflictCols {
		conflictSet[col] = true
	}
	var assignments []string
	for _, col := range sortedColumns(row) {
		if conflictSet[col] {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	sql += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflictCols, ", "), strings.Join(assignments, ", "))
	return sql, args
}

func buildUpdateSQL(schema, table string, row map[string]any, keyCol string) (string, []any) {
	var assignments []string
	var args []any
	i := 1
	for _, col := range sortedColumns(row) {
		if col == keyCol {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, row[col])
		i++
	}
	sql := fmt.Sprintf("UPDATE %s.%s SET %s WHERE %s = $%d",
		schema, table, strings.Join(assignments, ", "), keyCol, i)
	args = append(args, row[keyCol])
	return sql, args
}

// withRetry runs fn up to attempts times with exponential backoff between
// failures.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var lastErr error
	backoff := base
	for i := 0; i < attempts; i++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		slog.Warn("database write failed, will retry", "attempt", i+1, "max_attempts", attempts, "backoff", backoff.String(), "error", lastErr)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
