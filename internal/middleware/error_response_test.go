package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/wasteflow/internal/model"
)

func TestWriteError_APIErrorStatusMapping(t *testing.T) {
	tests := []struct {
		code       string
		wantStatus int
	}{
		{model.ErrCodeInvalidCredentials, http.StatusUnauthorized},
		{model.ErrCodeDuplicateEmail, http.StatusConflict},
		{model.ErrCodeForbidden, http.StatusForbidden},
		{model.ErrCodeProfileNotFound, http.StatusNotFound},
		{model.ErrCodeCompanyNotFound, http.StatusNotFound},
		{model.ErrCodeEntryNotFound, http.StatusNotFound},
		{model.ErrCodeNoCompanySelected, http.StatusBadRequest},
		{model.ErrCodeInvalidInput, http.StatusBadRequest},
		{model.ErrCodeFileTooLarge, http.StatusRequestEntityTooLarge},
		{model.ErrCodeWebhookRejected, http.StatusUnprocessableEntity},
		{model.ErrCodeDataFetchFailed, http.StatusBadGateway},
		{model.ErrCodeAnalysisFailed, http.StatusBadGateway},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, &model.APIError{Code: tt.code, Message: "テスト", Category: "test", Action: "なし"})

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if body.Code != tt.code {
				t.Errorf("body code = %q, want %q", body.Code, tt.code)
			}
		})
	}
}

// APIError以外のエラーは詳細を漏らさず500として扱うこと。
func TestWriteError_GenericErrorBecomesInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("body code = %q, want INTERNAL_ERROR", body.Code)
	}
	if body.Message == "pq: connection refused" {
		t.Error("internal error details must not leak to the response")
	}
}

func TestWriteErrorResponse_SetsJSONContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, http.StatusBadRequest, model.NewInvalidInputError("bad"))

	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
}
