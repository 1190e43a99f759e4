package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wasteflow/internal/model"
)

// PostgresPaymentRepo はPostgreSQLを使用した決済記録リポジトリ。
type PostgresPaymentRepo struct {
	db *sql.DB
}

// NewPostgresPaymentRepo はPostgresPaymentRepoを生成する。
func NewPostgresPaymentRepo(db *sql.DB) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{db: db}
}

// Create は決済記録を作成する。
// (provider, provider_event_id)のUNIQUE制約により、重複適用はDBレベルでも防がれる。
func (r *PostgresPaymentRepo) Create(ctx context.Context, payment *model.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments
		 (id, provider, provider_event_id, user_id, company_id, plan, amount_cents, currency, status, created_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, '')::uuid, $6, $7, $8, $9, $10)`,
		payment.ID, payment.Provider, payment.ProviderEventID, payment.UserID,
		payment.CompanyID, payment.Plan, payment.AmountCents, payment.Currency,
		payment.Status, payment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// ExistsByProviderEvent は指定プロバイダーイベントが適用済みかを返す。
func (r *PostgresPaymentRepo) ExistsByProviderEvent(ctx context.Context, provider, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE provider = $1 AND provider_event_id = $2)`,
		provider, eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check payment existence: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ PaymentRepository = (*PostgresPaymentRepo)(nil)
