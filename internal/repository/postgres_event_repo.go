package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/wasteflow/internal/model"
)

// PostgresDisposalEventRepo はPostgreSQLを使用した処分イベントリポジトリ。
type PostgresDisposalEventRepo struct {
	db *sql.DB
}

// NewPostgresDisposalEventRepo はPostgresDisposalEventRepoを生成する。
func NewPostgresDisposalEventRepo(db *sql.DB) *PostgresDisposalEventRepo {
	return &PostgresDisposalEventRepo{db: db}
}

// ListByCompanyAndRange は指定会社の[from, to)期間のイベントをscheduled_at昇順で返す。
func (r *PostgresDisposalEventRepo) ListByCompanyAndRange(ctx context.Context, companyID string, from, to time.Time) ([]*model.DisposalEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, company_id, created_by, title, waste_type, scheduled_at, notes, created_at
		 FROM disposal_events
		 WHERE company_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		 ORDER BY scheduled_at`,
		companyID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list disposal events: %w", err)
	}
	defer rows.Close()

	var events []*model.DisposalEvent
	for rows.Next() {
		e := &model.DisposalEvent{}
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.CreatedBy, &e.Title, &e.WasteType,
			&e.ScheduledAt, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan disposal event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate disposal events: %w", err)
	}

	return events, nil
}

// Create はイベントを作成する。
func (r *PostgresDisposalEventRepo) Create(ctx context.Context, event *model.DisposalEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO disposal_events
		 (id, company_id, created_by, title, waste_type, scheduled_at, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.CompanyID, event.CreatedBy, event.Title, event.WasteType,
		event.ScheduledAt, event.Notes, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert disposal event: %w", err)
	}
	return nil
}

// compile-time interface check
var _ DisposalEventRepository = (*PostgresDisposalEventRepo)(nil)
