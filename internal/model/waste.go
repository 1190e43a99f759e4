package model

import "time"

// WasteEntry は廃棄物ログの1エントリを表す。
// CompanyIDでテナントにスコープされる。
type WasteEntry struct {
	ID         string
	CompanyID  string
	CreatedBy  string // 記録したユーザーのID
	WasteType  string // 例: "plastic", "organic", "hazardous"
	QuantityKg float64
	UnitCost   float64 // 処理単価（通貨単位/kg）
	EntryDate  time.Time
	Notes      string // 保存前にサニタイズされる
	CreatedAt  time.Time
}

// DisposalEvent は処分イベントカレンダーの1件を表す。
type DisposalEvent struct {
	ID          string
	CompanyID   string
	CreatedBy   string
	Title       string
	WasteType   string
	ScheduledAt time.Time
	Notes       string
	CreatedAt   time.Time
}

// DisposalCertificate は処分証明書のメタデータとファイル本体を表す。
// ファイルはbyteaとしてDBに保存される。一覧取得ではFileDataを含めない。
type DisposalCertificate struct {
	ID         string
	CompanyID  string
	UploadedBy string
	FileName   string
	MimeType   string
	FileSize   int64
	FileData   []byte
	CreatedAt  time.Time
}

// MonthlyReportRow は月次財務レポートの1行を表す。
// 指定年の各月について廃棄物ログを集計した結果。
type MonthlyReportRow struct {
	Year       int
	Month      int
	EntryCount int
	TotalKg    float64
	TotalCost  float64
}
