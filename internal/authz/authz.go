// Package authz はロールとプランに基づく認可述語を提供する。
//
// 全ての述語は純粋関数であり、ネットワーク呼び出しを行わない。
// 入力は解決済みのセッション状態のみ。
// セッションが未解決・部分的に解決の場合は常に拒否する（フェイルクローズ）。
// UIコンポーネントに分散しがちなロール・プラン判定は必ずこのパッケージを経由すること。
package authz

import "github.com/hitoshi/wasteflow/internal/model"

// IsAdmin はセッションのロールがadminの場合にtrueを返す。
func IsAdmin(session *model.Session) bool {
	return session != nil && session.Role == model.RoleAdmin
}

// IsPremiumFeatureAuthorized はプレミアム機能の利用可否を判定する。
// 以下のいずれかでtrueを返す:
//   - セッションのロールがadmin（プランに関わらず許可）
//   - セッションのプロフィールのプランがPremium
//   - companyOverrideが指定され、そのプランがPremium
//
// プレミアム判定はユーザー自身のプランと、操作中の会社コンテキストのプランの
// どちらでも満たせる（コンプライアンス画面はプロフィールのプラン、
// 課金フローは会社のプランを更新するため、両方の経路が必要）。
func IsPremiumFeatureAuthorized(session *model.Session, companyOverride *model.Company) bool {
	if IsAdmin(session) {
		return true
	}
	if session == nil || session.Identity == nil {
		return false
	}
	if session.Profile != nil && session.Profile.Plan == model.PlanPremium {
		return true
	}
	if companyOverride != nil && companyOverride.Plan == model.PlanPremium {
		return true
	}
	return false
}

// CanMutateTenantData は会社管理レコード（割当・プラン変更・削除）の
// 変更可否を判定する。adminのみ許可される。
// clientが自分の会社配下に廃棄物ログや処分イベントを作成する操作は
// この述語の対象外（より狭い別の書き込み権限として各サービスで判定する）。
func CanMutateTenantData(session *model.Session) bool {
	return IsAdmin(session)
}
