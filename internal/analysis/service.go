// Package analysis はAIデータ分析プロバイダーとの連携を提供する。
//
// 選択中の会社の廃棄物ログをCSVに整形してホステッドモデルに送信し、
// スキーマ検証済みの分析結果を返す。プレミアム機能のため、
// authz.IsPremiumFeatureAuthorizedで許可された場合のみ実行できる。
package analysis

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/wasteflow/internal/authz"
	"github.com/hitoshi/wasteflow/internal/model"
	"github.com/hitoshi/wasteflow/internal/repository"
	"github.com/hitoshi/wasteflow/internal/scope"
	"github.com/hitoshi/wasteflow/internal/security"
)

// maxResponseBytes は分析プロバイダーの応答サイズ上限。
const maxResponseBytes = 1 << 20 // 1MB

// maxRecommendations は分析結果に含める推奨事項の上限数。
const maxRecommendations = 20

// providerResponse は分析プロバイダーの応答スキーマ。
// この形に適合しない応答は全て拒否する。
type providerResponse struct {
	Summary         string   `json:"summary"`
	Recommendations []string `json:"recommendations"`
}

// Service はAI分析のサービス。
type Service struct {
	entries  repository.WasteEntryRepository
	client   *http.Client
	endpoint string
	apiKey   string
}

// NewService は分析サービスを生成する。
// HTTPクライアントはSSRF防止機能付きのものを生成する。
func NewService(
	entries repository.WasteEntryRepository,
	guard security.OutboundGuardService,
	endpoint, apiKey string,
	timeout time.Duration,
) (*Service, error) {
	if endpoint != "" {
		if err := guard.ValidateURL(endpoint); err != nil {
			return nil, fmt.Errorf("invalid analysis endpoint: %w", err)
		}
	}
	return &Service{
		entries:  entries,
		client:   guard.NewSafeClient(timeout),
		endpoint: endpoint,
		apiKey:   apiKey,
	}, nil
}

// Run は選択中の会社の廃棄物ログを分析する。
// プレミアム判定はユーザー自身のプランと選択中の会社のプランの両方で行う。
func (s *Service) Run(ctx context.Context, session *model.Session, selector *scope.Selector) (*model.AnalysisResult, error) {
	company := selector.Get()
	if !authz.IsPremiumFeatureAuthorized(session, company) {
		return nil, model.NewForbiddenError()
	}
	if company == nil {
		return nil, model.NewNoCompanySelectedError()
	}
	if s.endpoint == "" {
		return nil, model.NewAnalysisFailedError("分析プロバイダーが設定されていません")
	}

	entries, err := s.entries.ListByCompany(ctx, company.ID)
	if err != nil {
		slog.Error("failed to load entries for analysis",
			slog.String("company_id", company.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewDataFetchFailedError()
	}
	if len(entries) == 0 {
		return nil, model.NewAnalysisFailedError("分析対象のデータがありません")
	}

	payload, err := buildCSV(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to build analysis payload: %w", err)
	}

	started := time.Now()
	result, err := s.request(ctx, payload)
	if err != nil {
		slog.Error("analysis request failed",
			slog.String("company_id", company.ID),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("error", err.Error()),
		)
		return nil, model.NewAnalysisFailedError("分析プロバイダーへのリクエストに失敗しました")
	}

	slog.Info("analysis completed",
		slog.String("company_id", company.ID),
		slog.Int("entries", len(entries)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}

// buildCSV は廃棄物ログをプロバイダー送信用のCSVに整形する。
// 備考は保存時にサニタイズ済みだが、自由記述のため送信には含めない。
func buildCSV(entries []*model.WasteEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"entry_date", "waste_type", "quantity_kg", "unit_cost"}); err != nil {
		return nil, err
	}
	for _, e := range entries {
		record := []string{
			e.EntryDate.Format("2006-01-02"),
			e.WasteType,
			strconv.FormatFloat(e.QuantityKg, 'f', 2, 64),
			strconv.FormatFloat(e.UnitCost, 'f', 2, 64),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// request はCSVをプロバイダーに送信し、スキーマ検証済みの結果を返す。
func (s *Service) request(ctx context.Context, payload []byte) (*model.AnalysisResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analysis provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analysis provider returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis response: %w", err)
	}

	return parseResponse(body)
}

// parseResponse はプロバイダー応答をスキーマ検証してAnalysisResultに変換する。
// summaryが空、recommendationsに空要素が含まれる、件数超過の応答は拒否する。
func parseResponse(body []byte) (*model.AnalysisResult, error) {
	var parsed providerResponse
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("analysis response schema mismatch: %w", err)
	}

	if parsed.Summary == "" {
		return nil, fmt.Errorf("analysis response missing summary")
	}
	if len(parsed.Recommendations) > maxRecommendations {
		return nil, fmt.Errorf("analysis response has too many recommendations: %d", len(parsed.Recommendations))
	}
	for i, rec := range parsed.Recommendations {
		if rec == "" {
			return nil, fmt.Errorf("analysis response has empty recommendation at index %d", i)
		}
	}

	recommendations := parsed.Recommendations
	if recommendations == nil {
		recommendations = []string{}
	}
	return &model.AnalysisResult{
		Summary:         parsed.Summary,
		Recommendations: recommendations,
	}, nil
}
