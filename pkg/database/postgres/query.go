package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Querier 语句执行者，Client 与 Tx 均实现
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	ExecBatch(ctx context.Context, sql string, argsList [][]any) (int64, error)
}

var (
	_ Querier = (*Client)(nil)
	_ Querier = (*txWrapper)(nil)
)

type timeoutProvider interface {
	queryTimeout() time.Duration
}

// applyQueryTimeout 应用查询超时到 context
func applyQueryTimeout(ctx context.Context, q Querier) (context.Context, context.CancelFunc) {
	if tp, ok := q.(timeoutProvider); ok && tp.queryTimeout() > 0 {
		return context.WithTimeout(ctx, tp.queryTimeout())
	}
	return ctx, func() {}
}

func (c *Client) queryTimeout() time.Duration {
	return c.cfg.QueryTimeout
}

// QueryOne 查询单条记录，按 db 标签映射到 T
func QueryOne[T any](ctx context.Context, q Querier, sql string, args ...any) (*T, error) {
	ctx, cancel := applyQueryTimeout(ctx, q)
	defer cancel()

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectOneRow(rows, pgx.RowToAddrOfStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return out, nil
}

// QueryAll 查询多条记录，按 db 标签映射到 T
func QueryAll[T any](ctx context.Context, q Querier, sql string, args ...any) ([]*T, error) {
	ctx, cancel := applyQueryTimeout(ctx, q)
	defer cancel()

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return out, nil
}

// Query 执行查询，调用方负责关闭 rows
func (c *Client) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return rows, nil
}

// Exec 执行写操作（INSERT/UPDATE/DELETE）
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	ctx, cancel := applyQueryTimeout(ctx, c)
	defer cancel()

	result, err := c.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	return result.RowsAffected(), nil
}

// ExecBatch 批量执行同一语句（使用 Pipeline）
func (c *Client) ExecBatch(ctx context.Context, sql string, argsList [][]any) (int64, error) {
	ctx, cancel := applyQueryTimeout(ctx, c)
	defer cancel()

	return execBatch(ctx, c.pool, sql, argsList)
}

type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

func execBatch(ctx context.Context, s batchSender, sql string, argsList [][]any) (int64, error) {
	if len(argsList) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, args := range argsList {
		batch.Queue(sql, args...)
	}

	results := s.SendBatch(ctx, batch)
	defer results.Close()

	var totalAffected int64
	for i := 0; i < len(argsList); i++ {
		ct, err := results.Exec()
		if err != nil {
			return totalAffected, fmt.Errorf("batch exec failed at index %d: %w", i, err)
		}
		totalAffected += ct.RowsAffected()
	}
	return totalAffected, nil
}
