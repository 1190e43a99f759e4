package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wasteflow/internal/model"
)

// PostgresCertificateRepo はPostgreSQLを使用した処分証明書リポジトリ。
// ファイル本体はbyteaカラムに保存する。
type PostgresCertificateRepo struct {
	db *sql.DB
}

// NewPostgresCertificateRepo はPostgresCertificateRepoを生成する。
func NewPostgresCertificateRepo(db *sql.DB) *PostgresCertificateRepo {
	return &PostgresCertificateRepo{db: db}
}

// Create は証明書をファイル本体ごと作成する。
func (r *PostgresCertificateRepo) Create(ctx context.Context, cert *model.DisposalCertificate) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO disposal_certificates
		 (id, company_id, uploaded_by, file_name, mime_type, file_size, file_data, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		cert.ID, cert.CompanyID, cert.UploadedBy, cert.FileName, cert.MimeType,
		cert.FileSize, cert.FileData, cert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert certificate: %w", err)
	}
	return nil
}

// ListByCompany は指定会社の証明書メタデータ一覧を作成日降順で返す。
// 一覧表示でファイル本体を転送しないため、file_dataは取得しない。
func (r *PostgresCertificateRepo) ListByCompany(ctx context.Context, companyID string) ([]*model.DisposalCertificate, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, company_id, uploaded_by, file_name, mime_type, file_size, created_at
		 FROM disposal_certificates
		 WHERE company_id = $1 ORDER BY created_at DESC`,
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	var certs []*model.DisposalCertificate
	for rows.Next() {
		c := &model.DisposalCertificate{}
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.UploadedBy, &c.FileName,
			&c.MimeType, &c.FileSize, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		certs = append(certs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate certificates: %w", err)
	}

	return certs, nil
}

// FindByID は指定IDの証明書をファイル本体込みで取得する。見つからない場合はnilを返す。
func (r *PostgresCertificateRepo) FindByID(ctx context.Context, id string) (*model.DisposalCertificate, error) {
	c := &model.DisposalCertificate{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, company_id, uploaded_by, file_name, mime_type, file_size, file_data, created_at
		 FROM disposal_certificates WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.CompanyID, &c.UploadedBy, &c.FileName, &c.MimeType,
		&c.FileSize, &c.FileData, &c.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find certificate by ID: %w", err)
	}
	return c, nil
}

// compile-time interface check
var _ CertificateRepository = (*PostgresCertificateRepo)(nil)
