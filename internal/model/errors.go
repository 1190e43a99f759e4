package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, tenant, billing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeCompanyNotFound    = "COMPANY_NOT_FOUND"
	ErrCodeEntryNotFound      = "ENTRY_NOT_FOUND"
	ErrCodeNoCompanySelected  = "NO_COMPANY_SELECTED"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeDataFetchFailed    = "DATA_FETCH_FAILED"
	ErrCodeAnalysisFailed     = "ANALYSIS_FAILED"
	ErrCodeWebhookRejected    = "WEBHOOK_REJECTED"
	ErrCodeFileTooLarge       = "FILE_TOO_LARGE"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// 存在しないメールアドレスとパスワード不一致は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewDuplicateEmailError は登録済みメールアドレスでのサインアップエラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスで登録してください。",
	}
}

// NewProfileNotFoundError はアイデンティティは解決できたがプロフィールが存在しない場合の
// エラーを生成する。致命的ではなく、オンボーディング未完了として扱う。
func NewProfileNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("プロフィールが見つかりません: %s", userID),
		Category: "auth",
		Action:   "プロフィール登録を完了してください。",
	}
}

// NewForbiddenError は認可拒否エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に権限の付与を依頼してください。",
	}
}

// NewCompanyNotFoundError は会社が見つからない場合のエラーを生成する。
func NewCompanyNotFoundError(companyID string) *APIError {
	return &APIError{
		Code:     ErrCodeCompanyNotFound,
		Message:  fmt.Sprintf("指定された会社が見つかりません: %s", companyID),
		Category: "tenant",
		Action:   "会社IDを確認してください。",
	}
}

// NewEntryNotFoundError は廃棄物ログエントリが見つからない場合のエラーを生成する。
func NewEntryNotFoundError(entryID string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("指定されたエントリが見つかりません: %s", entryID),
		Category: "tenant",
		Action:   "エントリIDを確認してください。",
	}
}

// NewNoCompanySelectedError は会社が未選択の状態でテナントスコープの書き込みを
// 行おうとした場合のエラーを生成する。
func NewNoCompanySelectedError() *APIError {
	return &APIError{
		Code:     ErrCodeNoCompanySelected,
		Message:  "会社が選択されていません。",
		Category: "tenant",
		Action:   "対象の会社を選択してから再度お試しください。",
	}
}

// NewInvalidInputError は入力値検証エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewDataFetchFailedError はテナントスコープデータの取得失敗エラーを生成する。
func NewDataFetchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeDataFetchFailed,
		Message:  "データの取得に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAnalysisFailedError はAI分析の失敗エラーを生成する。
func NewAnalysisFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAnalysisFailed,
		Message:  fmt.Sprintf("データ分析に失敗しました: %s", reason),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewWebhookRejectedError は決済Webhookの検証失敗エラーを生成する。
func NewWebhookRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWebhookRejected,
		Message:  fmt.Sprintf("決済イベントを受理できません: %s", reason),
		Category: "billing",
		Action:   "決済プロバイダーの管理画面でイベントの状態を確認してください。",
	}
}

// NewFileTooLargeError はアップロードファイルのサイズ超過エラーを生成する。
func NewFileTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeFileTooLarge,
		Message:  fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", maxBytes),
		Category: "validation",
		Action:   "ファイルサイズを小さくして再度アップロードしてください。",
	}
}
