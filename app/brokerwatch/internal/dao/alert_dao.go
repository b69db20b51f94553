package dao

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/metrics"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/model"
	"github.com/lk2023060901/brokerwatch/app/brokerwatch/internal/tracker"
	"github.com/lk2023060901/brokerwatch/pkg/database/postgres"
	"github.com/lk2023060901/brokerwatch/pkg/logger"
)

//go:embed schema.sql
var schema string

const (
	alertTable     = "alert_records"
	uniqueViolated = "23505"
)

var alertColumns = []string{
	"id", "tenant_id", "server_id", "fingerprint", "alert_id", "detection",
	"first_seen_at", "last_seen_at", "resolved", "resolved_at",
}

var _ tracker.Store = (*AlertDAO)(nil)

// alertRow alert_records 表的一行
type alertRow struct {
	ID          string     `db:"id"`
	TenantID    string     `db:"tenant_id"`
	ServerID    string     `db:"server_id"`
	Fingerprint string     `db:"fingerprint"`
	AlertID     string     `db:"alert_id"`
	Detection   []byte     `db:"detection"`
	FirstSeenAt time.Time  `db:"first_seen_at"`
	LastSeenAt  time.Time  `db:"last_seen_at"`
	Resolved    bool       `db:"resolved"`
	ResolvedAt  *time.Time `db:"resolved_at"`
}

func (r *alertRow) toModel() (*model.AlertRecord, error) {
	rec := &model.AlertRecord{
		ID:          r.ID,
		TenantID:    r.TenantID,
		ServerID:    r.ServerID,
		Fingerprint: r.Fingerprint,
		AlertID:     r.AlertID,
		FirstSeenAt: r.FirstSeenAt.UTC(),
		LastSeenAt:  r.LastSeenAt.UTC(),
		Resolved:    r.Resolved,
	}
	if r.ResolvedAt != nil {
		t := r.ResolvedAt.UTC()
		rec.ResolvedAt = &t
	}
	if err := json.Unmarshal(r.Detection, &rec.Detection); err != nil {
		return nil, fmt.Errorf("failed to unmarshal detection of %s: %w", r.ID, err)
	}
	return rec, nil
}

// AlertDAO 告警记录数据访问对象（PostgreSQL）
type AlertDAO struct {
	db      *postgres.Client
	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewAlertDAO(db *postgres.Client, l logger.Logger, m *metrics.Metrics) *AlertDAO {
	return &AlertDAO{
		db:      db,
		logger:  l.Named("dao.alert"),
		metrics: m,
	}
}

// Migrate 创建表与索引（幂等）
func (d *AlertDAO) Migrate(ctx context.Context) error {
	if _, err := d.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate alert schema: %w", err)
	}
	d.logger.Info("alert schema ready", "table", alertTable)
	return nil
}

func (d *AlertDAO) observe(op string, start time.Time, err error) {
	if d.metrics != nil {
		d.metrics.RecordDBQuery(op, err == nil, time.Since(start))
	}
}

// LoadOpen 实现 tracker.Store
func (d *AlertDAO) LoadOpen(ctx context.Context, tenantID, serverID string) (recs []*model.AlertRecord, err error) {
	start := time.Now()
	defer func() { d.observe("select", start, err) }()

	query, args, err := postgres.QueryBuilder.
		Select(alertColumns...).
		From(alertTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "server_id": serverID, "resolved": false}).
		OrderBy("first_seen_at", "fingerprint").
		ToSql()
	if err != nil {
		return nil, err
	}
	return d.query(ctx, query, args...)
}

// ListResolved 返回最近解决的记录，按解决时间倒序
func (d *AlertDAO) ListResolved(ctx context.Context, tenantID, serverID string, limit uint64) (recs []*model.AlertRecord, err error) {
	start := time.Now()
	defer func() { d.observe("select", start, err) }()

	query, args, err := postgres.QueryBuilder.
		Select(alertColumns...).
		From(alertTable).
		Where(squirrel.Eq{"tenant_id": tenantID, "server_id": serverID, "resolved": true}).
		OrderBy("resolved_at DESC", "fingerprint").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, err
	}
	return d.query(ctx, query, args...)
}

func (d *AlertDAO) query(ctx context.Context, query string, args ...any) ([]*model.AlertRecord, error) {
	rows, err := postgres.QueryAll[alertRow](ctx, d.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert records: %w", err)
	}
	out := make([]*model.AlertRecord, 0, len(rows))
	for _, r := range rows {
		rec, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Commit 实现 tracker.Store，整个变更集在一个事务中提交
func (d *AlertDAO) Commit(ctx context.Context, cs *tracker.ChangeSet) (err error) {
	if cs.Empty() {
		return nil
	}
	start := time.Now()
	defer func() { d.observe("commit", start, err) }()

	return d.db.WithTx(ctx, func(tx postgres.Tx) error {
		for _, r := range cs.Insert {
			if err := insertRecord(ctx, tx, r); err != nil {
				return err
			}
		}
		for _, r := range cs.Refresh {
			if err := refreshRecord(ctx, tx, r); err != nil {
				return err
			}
		}
		for _, r := range cs.Resolve {
			if err := resolveRecord(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertRecord(ctx context.Context, tx postgres.Tx, r *model.AlertRecord) error {
	detection, err := json.Marshal(r.Detection)
	if err != nil {
		return err
	}
	query, args, err := postgres.QueryBuilder.
		Insert(alertTable).
		Columns(alertColumns...).
		Values(r.ID, r.TenantID, r.ServerID, r.Fingerprint, r.AlertID, detection,
			r.FirstSeenAt, r.LastSeenAt, false, nil).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolated {
			return fmt.Errorf("%w: %s", tracker.ErrOpenConflict, r.Fingerprint)
		}
		return fmt.Errorf("failed to insert alert record: %w", err)
	}
	return nil
}

func refreshRecord(ctx context.Context, tx postgres.Tx, r *model.AlertRecord) error {
	detection, err := json.Marshal(r.Detection)
	if err != nil {
		return err
	}
	return updateOpen(ctx, tx, r.ID, postgres.QueryBuilder.
		Update(alertTable).
		Set("detection", detection).
		Set("alert_id", r.AlertID).
		Set("last_seen_at", r.LastSeenAt))
}

func resolveRecord(ctx context.Context, tx postgres.Tx, r *model.AlertRecord) error {
	return updateOpen(ctx, tx, r.ID, postgres.QueryBuilder.
		Update(alertTable).
		Set("resolved", true).
		Set("resolved_at", r.ResolvedAt))
}

// updateOpen 只更新仍打开的记录，未命中时返回 ErrRecordNotOpen
func updateOpen(ctx context.Context, tx postgres.Tx, id string, b squirrel.UpdateBuilder) error {
	query, args, err := b.Where(squirrel.Eq{"id": id, "resolved": false}).ToSql()
	if err != nil {
		return err
	}
	n, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update alert record: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", tracker.ErrRecordNotOpen, id)
	}
	return nil
}
