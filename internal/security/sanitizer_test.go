package security

import "testing"

func TestSanitize(t *testing.T) {
	s := NewFieldSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列", "", ""},
		{"プレーンテキストはそのまま", "月次回収分のメモ", "月次回収分のメモ"},
		{"scriptタグは中身ごと除去", `<script>alert("xss")</script>安全な部分`, "安全な部分"},
		{"タグのみ除去しテキストは残す", "<b>重要</b>な備考", "重要な備考"},
		{"イベントハンドラ付きタグ", `<img src=x onerror="alert(1)">画像`, "画像"},
		{"前後の空白除去", "  備考  ", "備考"},
		{"エンティティは元に戻す", "A &amp; B", "A & B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// 同一入力に対して常に同一出力を返すこと（冪等）。
func TestSanitize_Idempotent(t *testing.T) {
	s := NewFieldSanitizer()

	inputs := []string{"プレーンテキスト", "<b>重要</b>な備考", "A & B"}
	for _, input := range inputs {
		once := s.Sanitize(input)
		twice := s.Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}
