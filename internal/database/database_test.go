package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBuildInsertSQL(t *testing.T) {
	row := map[string]any{
		"order_id": "NYORDER147",
		"title":    "Special Prosecutor",
		"src":      "governor.ny.gov",
	}
	sql, args := buildInsertSQL("ny", "executive_orders", row)
	require.Equal(t, "INSERT INTO ny.executive_orders (order_id, src, title) VALUES ($1, $2, $3)", sql)
	require.Equal(t, []any{"NYORDER147", "governor.ny.gov", "Special Prosecutor"}, args)
}

func TestBuildUpsertSQL(t *testing.T) {
	row := map[string]any{
		"order_id": "NYORDER147",
		"title":    "Special Prosecutor",
		"src":      "governor.ny.gov",
	}
	sql, args := buildUpsertSQL("ny", "executive_orders", row, []string{"order_id"})
	require.Equal(t,
		"INSERT INTO ny.executive_orders (order_id, src, title) VALUES ($1, $2, $3)"+
			" ON CONFLICT (order_id) DO UPDATE SET src = EXCLUDED.src, title = EXCLUDED.title",
		sql)
	require.Equal(t, []any{"NYORDER147", "governor.ny.gov", "Special Prosecutor"}, args)
}

func TestBuildUpdateSQL(t *testing.T) {
	row := map[string]any{
		"order_id": "NYORDER147",
		"text":     "order body",
		"src":      "governor.ny.gov",
	}
	sql, args := buildUpdateSQL("ny", "order_texts", row, "order_id")
	require.Equal(t, "UPDATE ny.order_texts SET src = $1, text = $2 WHERE order_id = $3", sql)
	require.Equal(t, []any{"governor.ny.gov", "order body", "NYORDER147"}, args)
}

func TestWithRetry(t *testing.T) {
	t.Run("eventual success", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			if calls < 3 {
				return errors.New("deadlock detected")
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("exhausted returns last error", func(t *testing.T) {
		calls := 0
		wantErr := errors.New("connection refused")
		err := withRetry(context.Background(), 3, time.Millisecond, func() error {
			calls++
			return wantErr
		})
		require.ErrorIs(t, err, wantErr)
		require.Equal(t, 3, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := withRetry(ctx, 3, time.Minute, func() error {
			calls++
			return errors.New("transient")
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, calls)
	})
}
