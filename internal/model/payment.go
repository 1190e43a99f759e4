package model

import "time"

// PaymentStatus は決済イベントの適用状態を表す。
type PaymentStatus string

const (
	// PaymentStatusApplied はプラン更新まで適用済みであることを示す。
	PaymentStatusApplied PaymentStatus = "applied"
	// PaymentStatusRejected はプロバイダー照会で承認が確認できなかったことを示す。
	PaymentStatusRejected PaymentStatus = "rejected"
)

// Payment は決済プロバイダーのWebhookで受信し適用した決済イベントの記録。
// ProviderとProviderEventIDの組で一意。
type Payment struct {
	ID              string
	Provider        string // 例: "mercadopago", "stripe"
	ProviderEventID string
	UserID          string
	CompanyID       string // ユーザーに所属会社がない場合は空
	Plan            Plan
	AmountCents     int64
	Currency        string
	Status          PaymentStatus
	CreatedAt       time.Time
}

// AnalysisResult はAIデータ分析プロバイダーの応答を表す。
// スキーマ検証済みの出力のみがこの型に変換される。
type AnalysisResult struct {
	Summary         string
	Recommendations []string
}
