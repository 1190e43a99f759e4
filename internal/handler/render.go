package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/wasteflow/internal/model"
)

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// profileJSON はプロフィールのレスポンス表現を返す。
func profileJSON(p *model.UserProfile) map[string]interface{} {
	return map[string]interface{}{
		"id":                  p.ID,
		"email":               p.Email,
		"role":                string(p.Role),
		"account_type":        string(p.AccountType),
		"company_name":        p.CompanyName,
		"tax_id":              p.TaxID,
		"id_number":           p.IDNumber,
		"plan":                string(p.Plan),
		"assigned_company_id": p.AssignedCompanyID,
		"created_at":          p.CreatedAt.Format(time.RFC3339),
		"updated_at":          p.UpdatedAt.Format(time.RFC3339),
	}
}

// companyJSON は会社のレスポンス表現を返す。
func companyJSON(c *model.Company) map[string]interface{} {
	return map[string]interface{}{
		"id":                c.ID,
		"name":              c.Name,
		"description":       c.Description,
		"plan":              string(c.Plan),
		"assigned_user_uid": c.AssignedUserUID,
		"cover_image_url":   c.CoverImageURL,
		"created_at":        c.CreatedAt.Format(time.RFC3339),
		"updated_at":        c.UpdatedAt.Format(time.RFC3339),
	}
}

// entryJSON は廃棄物ログエントリのレスポンス表現を返す。
func entryJSON(e *model.WasteEntry) map[string]interface{} {
	return map[string]interface{}{
		"id":          e.ID,
		"company_id":  e.CompanyID,
		"created_by":  e.CreatedBy,
		"waste_type":  e.WasteType,
		"quantity_kg": e.QuantityKg,
		"unit_cost":   e.UnitCost,
		"entry_date":  e.EntryDate.Format("2006-01-02"),
		"notes":       e.Notes,
		"created_at":  e.CreatedAt.Format(time.RFC3339),
	}
}

// eventJSON は処分イベントのレスポンス表現を返す。
func eventJSON(e *model.DisposalEvent) map[string]interface{} {
	return map[string]interface{}{
		"id":           e.ID,
		"company_id":   e.CompanyID,
		"created_by":   e.CreatedBy,
		"title":        e.Title,
		"waste_type":   e.WasteType,
		"scheduled_at": e.ScheduledAt.Format(time.RFC3339),
		"notes":        e.Notes,
		"created_at":   e.CreatedAt.Format(time.RFC3339),
	}
}

// certificateJSON は処分証明書メタデータのレスポンス表現を返す。
// ファイル本体は含めない（ダウンロードは専用エンドポイント）。
func certificateJSON(c *model.DisposalCertificate) map[string]interface{} {
	return map[string]interface{}{
		"id":          c.ID,
		"company_id":  c.CompanyID,
		"uploaded_by": c.UploadedBy,
		"file_name":   c.FileName,
		"mime_type":   c.MimeType,
		"file_size":   c.FileSize,
		"created_at":  c.CreatedAt.Format(time.RFC3339),
	}
}

// reportRowJSON は月次レポート行のレスポンス表現を返す。
func reportRowJSON(row *model.MonthlyReportRow) map[string]interface{} {
	return map[string]interface{}{
		"year":        row.Year,
		"month":       row.Month,
		"entry_count": row.EntryCount,
		"total_kg":    row.TotalKg,
		"total_cost":  row.TotalCost,
	}
}
