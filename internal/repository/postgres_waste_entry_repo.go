package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wasteflow/internal/model"
)

// PostgresWasteEntryRepo はPostgreSQLを使用した廃棄物ログリポジトリ。
type PostgresWasteEntryRepo struct {
	db *sql.DB
}

// NewPostgresWasteEntryRepo はPostgresWasteEntryRepoを生成する。
func NewPostgresWasteEntryRepo(db *sql.DB) *PostgresWasteEntryRepo {
	return &PostgresWasteEntryRepo{db: db}
}

const wasteEntryColumns = `id, company_id, created_by, waste_type, quantity_kg,
	unit_cost, entry_date, notes, created_at`

// FindByID は指定IDのエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresWasteEntryRepo) FindByID(ctx context.Context, id string) (*model.WasteEntry, error) {
	e := &model.WasteEntry{}
	err := r.db.QueryRowContext(ctx,
		`SELECT `+wasteEntryColumns+` FROM waste_entries WHERE id = $1`, id,
	).Scan(&e.ID, &e.CompanyID, &e.CreatedBy, &e.WasteType, &e.QuantityKg,
		&e.UnitCost, &e.EntryDate, &e.Notes, &e.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find waste entry by ID: %w", err)
	}
	return e, nil
}

// ListByCompany は指定会社のエントリをentry_date降順で返す。
func (r *PostgresWasteEntryRepo) ListByCompany(ctx context.Context, companyID string) ([]*model.WasteEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+wasteEntryColumns+` FROM waste_entries
		 WHERE company_id = $1 ORDER BY entry_date DESC, created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list waste entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.WasteEntry
	for rows.Next() {
		e := &model.WasteEntry{}
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.CreatedBy, &e.WasteType, &e.QuantityKg,
			&e.UnitCost, &e.EntryDate, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan waste entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate waste entries: %w", err)
	}

	return entries, nil
}

// Create はエントリを作成する。
func (r *PostgresWasteEntryRepo) Create(ctx context.Context, entry *model.WasteEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO waste_entries
		 (id, company_id, created_by, waste_type, quantity_kg, unit_cost, entry_date, notes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.CompanyID, entry.CreatedBy, entry.WasteType, entry.QuantityKg,
		entry.UnitCost, entry.EntryDate, entry.Notes, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert waste entry: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのエントリを削除する。
func (r *PostgresWasteEntryRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM waste_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete waste entry: %w", err)
	}
	return requireRowAffected(result, "waste entry", id)
}

// SummarizeMonthly は指定会社・指定年の月次集計を返す。エントリのない月は含まれない。
// 金額はquantity_kg * unit_costの合計。
func (r *PostgresWasteEntryRepo) SummarizeMonthly(ctx context.Context, companyID string, year int) ([]*model.MonthlyReportRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT EXTRACT(MONTH FROM entry_date)::int AS month,
		        COUNT(*)::int,
		        COALESCE(SUM(quantity_kg), 0),
		        COALESCE(SUM(quantity_kg * unit_cost), 0)
		 FROM waste_entries
		 WHERE company_id = $1 AND EXTRACT(YEAR FROM entry_date) = $2
		 GROUP BY month
		 ORDER BY month`,
		companyID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize waste entries: %w", err)
	}
	defer rows.Close()

	var report []*model.MonthlyReportRow
	for rows.Next() {
		row := &model.MonthlyReportRow{Year: year}
		if err := rows.Scan(&row.Month, &row.EntryCount, &row.TotalKg, &row.TotalCost); err != nil {
			return nil, fmt.Errorf("failed to scan report row: %w", err)
		}
		report = append(report, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report rows: %w", err)
	}

	return report, nil
}

// compile-time interface check
var _ WasteEntryRepository = (*PostgresWasteEntryRepo)(nil)
