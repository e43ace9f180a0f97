package security

import (
	"testing"
)

func TestSanitize_PlainTextPassesThrough(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	got := sanitizer.Sanitize("こんにちは world")
	if got != "こんにちは world" {
		t.Errorf("Sanitize = %q, want %q", got, "こんにちは world")
	}
}

func TestSanitize_StripsAllTags(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "scriptタグは中身ごと除去される",
			input: `hello <script>alert("xss")</script> world`,
			want:  "hello world",
		},
		{
			name:  "装飾タグも除去される",
			input: "<strong>太字</strong>と<em>斜体</em>",
			want:  "太字と斜体",
		},
		{
			name:  "aタグが除去されテキストのみ残る",
			input: `<a href="https://example.com">リンク</a>`,
			want:  "リンク",
		},
		{
			name:  "imgタグは痕跡なく消える",
			input: `before<img src="https://example.com/x.png">after`,
			want:  "beforeafter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			if got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// HTMLエンティティはプレーンテキストへ戻される
func TestSanitize_UnescapesEntities(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	got := sanitizer.Sanitize("a < b && c > d")
	if got != "a < b && c > d" {
		t.Errorf("Sanitize = %q, want %q", got, "a < b && c > d")
	}
}

func TestSanitize_CollapsesWhitespace(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	got := sanitizer.Sanitize("  hello \n\n  world\t! ")
	if got != "hello world !" {
		t.Errorf("Sanitize = %q, want %q", got, "hello world !")
	}
}

func TestSanitize_EmptyInput_ReturnsEmpty(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	if got := sanitizer.Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}

// タグのみの入力はサニタイズ後に空になる
func TestSanitize_TagOnlyInput_ReturnsEmpty(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	if got := sanitizer.Sanitize("<p></p><br>"); got != "" {
		t.Errorf("Sanitize = %q, want empty", got)
	}
}

// 冪等性: 2回適用しても結果は変わらない
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewMessageSanitizer()

	input := `hello <b>world</b> & <script>x</script> done`
	once := sanitizer.Sanitize(input)
	twice := sanitizer.Sanitize(once)
	if once != twice {
		t.Errorf("Sanitize not idempotent: %q vs %q", once, twice)
	}
}
