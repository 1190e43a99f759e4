// Package waste は廃棄物ログ・処分イベント・処分証明書・月次レポートの
// テナントスコープ機能を提供する。
//
// 全ての読み取りはセッションのアクティブな会社選択にスコープされる。
// 選択がnilの間は下位ストアを呼ばずに空の結果を返す。
// 取得完了時に選択が変わっていた場合、取得結果は破棄される
// （選択切り替え直後に別テナントのデータが混入するのを防ぐ）。
package waste

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/wasteflow/internal/authz"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/repository"
	"github.com/hitoshi/wasteflow/internal/scope"
	"github.com/hitoshi/wasteflow/internal/security"
)

// EntryInput は廃棄物ログエントリ作成の入力値。
type EntryInput struct {
	WasteType  string
	QuantityKg float64
	UnitCost   float64
	EntryDate  time.Time
	Notes      string
}

// EventInput は処分イベント作成の入力値。
type EventInput struct {
	Title       string
	WasteType   string
	ScheduledAt time.Time
	Notes       string
}

// CertificateInput は処分証明書アップロードの入力値。
type CertificateInput struct {
	FileName string
	MimeType string
	FileData []byte
}

// Service は廃棄物関連機能のサービス。
type Service struct {
	entries       repository.WasteEntryRepository
	events        repository.DisposalEventRepository
	certificates  repository.CertificateRepository
	sanitizer     security.FieldSanitizerService
	maxUploadSize int64
}

// NewService は廃棄物サービスを生成する。
func NewService(
	entries repository.WasteEntryRepository,
	events repository.DisposalEventRepository,
	certificates repository.CertificateRepository,
	sanitizer security.FieldSanitizerService,
	maxUploadSize int64,
) *Service {
	return &Service{
		entries:       entries,
		events:        events,
		certificates:  certificates,
		sanitizer:     sanitizer,
		maxUploadSize: maxUploadSize,
	}
}

// requireWritableScope は書き込み操作の前提条件を検証し、対象会社IDを返す。
// 会社が未選択の場合はNO_COMPANY_SELECTED。
// clientは選択中の会社の割当ユーザーである場合のみ書き込みできる。
// adminは任意の選択中の会社に書き込みできる。
func requireWritableScope(session *model.Session, selector *scope.Selector) (string, error) {
	if session == nil || session.Identity == nil {
		return "", model.NewForbiddenError()
	}

	company := selector.Get()
	if company == nil {
		return "", model.NewNoCompanySelectedError()
	}

	if !authz.IsAdmin(session) && company.AssignedUserUID != session.Identity.ID {
		return "", model.NewForbiddenError()
	}
	return company.ID, nil
}

// ListEntries は選択中の会社の廃棄物ログをentry_date降順で返す。
// 会社が未選択の場合はストアを呼ばずに空のスライスを返す。
func (s *Service) ListEntries(ctx context.Context, selector *scope.Selector) ([]*model.WasteEntry, error) {
	companyID := selector.CompanyID()
	if companyID == "" {
		return []*model.WasteEntry{}, nil
	}

	entries, err := s.entries.ListByCompany(ctx, companyID)
	if err != nil {
		slog.Error("failed to list waste entries",
			slog.String("company_id", companyID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDataFetchFailedError()
	}

	// 取得中に選択が切り替わった場合は結果を破棄する
	if selector.CompanyID() != companyID {
		slog.Debug("stale entry fetch discarded", slog.String("company_id", companyID))
		return []*model.WasteEntry{}, nil
	}
	return entries, nil
}

// AddEntry は選択中の会社に廃棄物ログエントリを作成する。
func (s *Service) AddEntry(ctx context.Context, session *model.Session, selector *scope.Selector, input EntryInput) (*model.WasteEntry, error) {
	companyID, err := requireWritableScope(session, selector)
	if err != nil {
		return nil, err
	}

	if input.WasteType == "" {
		return nil, model.NewInvalidInputError("waste type is required")
	}
	if input.QuantityKg <= 0 {
		return nil, model.NewInvalidInputError("quantity must be positive")
	}
	if input.UnitCost < 0 {
		return nil, model.NewInvalidInputError("unit cost must not be negative")
	}
	if input.EntryDate.IsZero() {
		input.EntryDate = time.Now()
	}

	entry := &model.WasteEntry{
		ID:         uuid.New().String(),
		CompanyID:  companyID,
		CreatedBy:  session.Identity.ID,
		WasteType:  input.WasteType,
		QuantityKg: input.QuantityKg,
		UnitCost:   input.UnitCost,
		EntryDate:  input.EntryDate,
		Notes:      s.sanitizer.Sanitize(input.Notes),
		CreatedAt:  time.Now(),
	}

	if err := s.entries.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create waste entry: %w", err)
	}
	return entry, nil
}

// DeleteEntry は廃棄物ログエントリを削除する。
// 削除できるのはエントリの作成者本人またはadminのみ。
// エントリは選択中の会社に属していなければならない。
func (s *Service) DeleteEntry(ctx context.Context, session *model.Session, selector *scope.Selector, entryID string) error {
	companyID, err := requireWritableScope(session, selector)
	if err != nil {
		return err
	}

	entry, err := s.entries.FindByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("failed to get waste entry: %w", err)
	}
	if entry == nil || entry.CompanyID != companyID {
		return model.NewEntryNotFoundError(entryID)
	}

	if !authz.IsAdmin(session) && entry.CreatedBy != session.Identity.ID {
		return model.NewForbiddenError()
	}

	if err := s.entries.DeleteByID(ctx, entryID); err != nil {
		return fmt.Errorf("failed to delete waste entry: %w", err)
	}
	return nil
}

// ListEvents は選択中の会社の指定年月の処分イベントをscheduled_at昇順で返す。
// 会社が未選択の場合はストアを呼ばずに空のスライスを返す。
func (s *Service) ListEvents(ctx context.Context, selector *scope.Selector, year, month int) ([]*model.DisposalEvent, error) {
	companyID := selector.CompanyID()
	if companyID == "" {
		return []*model.DisposalEvent{}, nil
	}

	if month < 1 || month > 12 {
		return nil, model.NewInvalidInputError(fmt.Sprintf("invalid month: %d", month))
	}

	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	events, err := s.events.ListByCompanyAndRange(ctx, companyID, from, to)
	if err != nil {
		slog.Error("failed to list disposal events",
			slog.String("company_id", companyID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDataFetchFailedError()
	}

	if selector.CompanyID() != companyID {
		slog.Debug("stale event fetch discarded", slog.String("company_id", companyID))
		return []*model.DisposalEvent{}, nil
	}
	return events, nil
}

// AddEvent は選択中の会社に処分イベントを作成する。
func (s *Service) AddEvent(ctx context.Context, session *model.Session, selector *scope.Selector, input EventInput) (*model.DisposalEvent, error) {
	companyID, err := requireWritableScope(session, selector)
	if err != nil {
		return nil, err
	}

	if input.Title == "" {
		return nil, model.NewInvalidInputError("event title is required")
	}
	if input.ScheduledAt.IsZero() {
		return nil, model.NewInvalidInputError("scheduled date is required")
	}

	event := &model.DisposalEvent{
		ID:          uuid.New().String(),
		CompanyID:   companyID,
		CreatedBy:   session.Identity.ID,
		Title:       s.sanitizer.Sanitize(input.Title),
		WasteType:   input.WasteType,
		ScheduledAt: input.ScheduledAt,
		Notes:       s.sanitizer.Sanitize(input.Notes),
		CreatedAt:   time.Now(),
	}

	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to create disposal event: %w", err)
	}
	return event, nil
}

// UploadCertificate は選択中の会社に処分証明書をアップロードする。
// ファイル本体はDBにbyteaとして保存される。サイズ上限を超える場合は拒否する。
func (s *Service) UploadCertificate(ctx context.Context, session *model.Session, selector *scope.Selector, input CertificateInput) (*model.DisposalCertificate, error) {
	companyID, err := requireWritableScope(session, selector)
	if err != nil {
		return nil, err
	}

	if input.FileName == "" {
		return nil, model.NewInvalidInputError("file name is required")
	}
	if len(input.FileData) == 0 {
		return nil, model.NewInvalidInputError("file is empty")
	}
	if int64(len(input.FileData)) > s.maxUploadSize {
		return nil, model.NewFileTooLargeError(s.maxUploadSize)
	}

	cert := &model.DisposalCertificate{
		ID:         uuid.New().String(),
		CompanyID:  companyID,
		UploadedBy: session.Identity.ID,
		FileName:   s.sanitizer.Sanitize(input.FileName),
		MimeType:   input.MimeType,
		FileSize:   int64(len(input.FileData)),
		FileData:   input.FileData,
		CreatedAt:  time.Now(),
	}

	if err := s.certificates.Create(ctx, cert); err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	slog.Info("certificate uploaded",
		slog.String("company_id", companyID),
		slog.String("certificate_id", cert.ID),
		slog.Int64("file_size", cert.FileSize),
	)
	return cert, nil
}

// ListCertificates は選択中の会社の証明書メタデータ一覧を返す。
// FileDataは含まれない。会社が未選択の場合はストアを呼ばずに空のスライスを返す。
func (s *Service) ListCertificates(ctx context.Context, selector *scope.Selector) ([]*model.DisposalCertificate, error) {
	companyID := selector.CompanyID()
	if companyID == "" {
		return []*model.DisposalCertificate{}, nil
	}

	certs, err := s.certificates.ListByCompany(ctx, companyID)
	if err != nil {
		slog.Error("failed to list certificates",
			slog.String("company_id", companyID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDataFetchFailedError()
	}

	if selector.CompanyID() != companyID {
		slog.Debug("stale certificate fetch discarded", slog.String("company_id", companyID))
		return []*model.DisposalCertificate{}, nil
	}
	return certs, nil
}

// GetCertificateFile は証明書をファイル本体込みで取得する。
// 証明書は選択中の会社に属していなければならない。
func (s *Service) GetCertificateFile(ctx context.Context, selector *scope.Selector, certificateID string) (*model.DisposalCertificate, error) {
	companyID := selector.CompanyID()
	if companyID == "" {
		return nil, model.NewNoCompanySelectedError()
	}

	cert, err := s.certificates.FindByID(ctx, certificateID)
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	if cert == nil || cert.CompanyID != companyID {
		return nil, model.NewEntryNotFoundError(certificateID)
	}
	return cert, nil
}

// MonthlyReport は選択中の会社の指定年の月次財務レポートを返す。
// エントリのない月は行に含まれない。
// 会社が未選択の場合はストアを呼ばずに空のスライスを返す。
func (s *Service) MonthlyReport(ctx context.Context, selector *scope.Selector, year int) ([]*model.MonthlyReportRow, error) {
	companyID := selector.CompanyID()
	if companyID == "" {
		return []*model.MonthlyReportRow{}, nil
	}

	if year < 2000 || year > 2100 {
		return nil, model.NewInvalidInputError(fmt.Sprintf("invalid year: %d", year))
	}

	rows, err := s.entries.SummarizeMonthly(ctx, companyID, year)
	if err != nil {
		slog.Error("failed to summarize monthly report",
			slog.String("company_id", companyID),
			slog.Int("year", year),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDataFetchFailedError()
	}

	if selector.CompanyID() != companyID {
		slog.Debug("stale report fetch discarded", slog.String("company_id", companyID))
		return []*model.MonthlyReportRow{}, nil
	}
	return rows, nil
}
