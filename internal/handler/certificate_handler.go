package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/wasteflow/internal/middleware"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/scope"
	"github.com/hitoshi/wasteflow/internal/waste"
)

// CertificateServiceInterface は証明書ハンドラーが必要とするサービスインターフェース。
type CertificateServiceInterface interface {
	UploadCertificate(ctx context.Context, session *model.Session, selector *scope.Selector, input waste.CertificateInput) (*model.DisposalCertificate, error)
	ListCertificates(ctx context.Context, selector *scope.Selector) ([]*model.DisposalCertificate, error)
	GetCertificateFile(ctx context.Context, selector *scope.Selector, certificateID string) (*model.DisposalCertificate, error)
}

// CertificateHandler は処分証明書のHTTPハンドラー。
type CertificateHandler struct {
	service       CertificateServiceInterface
	maxUploadSize int64
}

// NewCertificateHandler はCertificateHandlerを生成する。
func NewCertificateHandler(service CertificateServiceInterface, maxUploadSize int64) *CertificateHandler {
	return &CertificateHandler{
		service:       service,
		maxUploadSize: maxUploadSize,
	}
}

// Upload は選択中の会社に処分証明書をアップロードする。
// multipart/form-dataのfileフィールドでファイルを受け取る。
// POST /api/waste/certificates
func (h *CertificateHandler) Upload(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// multipart全体のサイズをファイル上限+フォームオーバーヘッド分で制限する
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+1024)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		middleware.WriteError(w, model.NewFileTooLargeError(h.maxUploadSize))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, model.NewInvalidInputError("file field is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		slog.Error("failed to read uploaded file", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	cert, err := h.service.UploadCertificate(r.Context(), as.Resolver.Session(), as.Scope, waste.CertificateInput{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		FileData: data,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, certificateJSON(cert))
}

// List は選択中の会社の証明書メタデータ一覧を返す。
// 会社が未選択の場合は空のリストを返す。
// GET /api/waste/certificates
func (h *CertificateHandler) List(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	certs, err := h.service.ListCertificates(r.Context(), as.Scope)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	list := make([]map[string]interface{}, 0, len(certs))
	for _, c := range certs {
		list = append(list, certificateJSON(c))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"certificates": list})
}

// Download は証明書のファイル本体を返す。
// GET /api/waste/certificates/{id}/file
func (h *CertificateHandler) Download(w http.ResponseWriter, r *http.Request) {
	as, err := middleware.ActiveSessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	cert, err := h.service.GetCertificateFile(r.Context(), as.Scope, chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	mimeType := cert.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(cert.FileSize, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", cert.FileName))
	w.Write(cert.FileData)
}
