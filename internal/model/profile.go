// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限レベルを表す。
type Role string

const (
	// RoleAdmin は全テナントを管理できる管理者を示す。
	RoleAdmin Role = "admin"
	// RoleClient は割当会社のデータのみ参照できる一般ユーザーを示す。
	RoleClient Role = "client"
)

// AccountType はアカウント種別を表す。
type AccountType string

const (
	// AccountTypeIndividual は個人アカウントを示す。
	AccountTypeIndividual AccountType = "individual"
	// AccountTypeCompany は会社アカウントを示す。サインアップ時に会社レコードが同時作成される。
	AccountTypeCompany AccountType = "company"
)

// Plan はサブスクリプションプランを表す。
type Plan string

const (
	PlanFree    Plan = "Free"
	PlanPremium Plan = "Premium"
	PlanCustom  Plan = "Custom"
)

// Identity は認証プロバイダーが解決した外部アイデンティティを表す。
// IDは安定した不透明な識別子で、プロフィールの主キーと1:1対応する。
type Identity struct {
	ID    string
	Email string
}

// UserProfile はアプリケーションレベルのユーザープロフィールを表す。
// 外部アイデンティティIDをキーとして永続化される。論理スコープ内では物理削除しない。
type UserProfile struct {
	ID                string
	Email             string
	Role              Role
	AccountType       AccountType
	CompanyName       string // 会社アカウントのみ
	TaxID             string // 会社アカウントのみ
	IDNumber          string // 個人アカウントのみ
	Plan              Plan
	AssignedCompanyID string // 会社アカウントの所属会社ID。未所属の場合は空
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProfileSeed はサインアップ時に指定するプロフィールの初期値。
// Roleは含まない。サインアップで作成されるプロフィールのroleは常にclientである。
type ProfileSeed struct {
	AccountType AccountType
	CompanyName string
	TaxID       string
	IDNumber    string
}
