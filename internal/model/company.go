package model

import "time"

// Company はテナント（会社）を表す。データ分離の単位。
// AssignedUserUIDはこの会社を参照できるclientユーザーのID（単一の外部キー、集合ではない）。
// 割当の変更はadminのみが行える。
type Company struct {
	ID              string
	Name            string
	Description     string
	Plan            Plan
	AssignedUserUID string // 未割当の場合は空
	CoverImageURL   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
