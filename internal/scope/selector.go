// Package scope はアクティブなテナント（会社）選択の保持を提供する。
//
// Selectorは純粋なストアであり、選択に対するロール検証は行わない。
// 検証は呼び出し側がauthzパッケージの述語で行う。
// テナントスコープの全データ取得は、このSelectorの現在値から会社IDを取得しなければならない。
// 選択がnilの間、テナントスコープの取得は下位ストアを呼ばずに空の結果を返すこと。
package scope

import (
	"sync"

	"github.com/hitoshi/wasteflow/internal/model"
)

// Selector は1セッションのアクティブな会社選択を保持するスレッドセーフなストア。
type Selector struct {
	mu      sync.RWMutex
	company *model.Company
}

// NewSelector は選択なし（nil）の状態のSelectorを生成する。
func NewSelector() *Selector {
	return &Selector{}
}

// Set は選択をcompanyで置き換える。nilで選択を解除する。
func (s *Selector) Set(company *model.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.company = company
}

// Get は現在の選択を返す。未選択の場合はnilを返す。
func (s *Selector) Get() *model.Company {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.company
}

// CompanyID は現在選択中の会社IDを返す。未選択の場合は空文字を返す。
func (s *Selector) CompanyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.company == nil {
		return ""
	}
	return s.company.ID
}

// ResetIf は現在の選択が指定会社IDを指している場合にnilへリセットする。
// 会社削除時に、存在しないテナントへのスコープ取得を防ぐために使用する。
// リセットした場合はtrueを返す。
func (s *Selector) ResetIf(companyID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.company != nil && s.company.ID == companyID {
		s.company = nil
		return true
	}
	return false
}
