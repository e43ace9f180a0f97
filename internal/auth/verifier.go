// Package auth は署名付きinitDataの検証とユーザー認証を提供する。
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Verifier はTelegram形式の署名付きinitDataを検証する。
// 署名鍵はボットトークンそのものではなく、トークンのSHA-256ハッシュを使用する。
type Verifier struct {
	secret []byte
}

// NewVerifier はVerifierを生成する。secretには生のボットトークンを渡す。
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// ParseFields はinitDataを「&」区切りのkey=valueペアとして解析する。
// キー・値ともにパーセントデコードし、形式不正なペアは黙って読み飛ばす。
func ParseFields(initData string) map[string]string {
	fields := make(map[string]string)
	for _, pair := range strings.Split(initData, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			continue
		}
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			continue
		}
		decodedValue, err := url.QueryUnescape(value)
		if err != nil {
			continue
		}
		fields[decodedKey] = decodedValue
	}
	return fields
}

// Verify はinitDataの署名を検証する。
// hashフィールドを除く全フィールドをキーのバイト順にソートし、
// "key=value"行を改行で連結したチェック文字列に対するHMAC-SHA256を
// 提示されたhashと定数時間で比較する。あらゆる解析失敗は検証失敗として扱う
// （フェイルクローズ）。
func (v *Verifier) Verify(initData string) bool {
	if initData == "" {
		return false
	}

	fields := ParseFields(initData)
	providedHash, ok := fields["hash"]
	if !ok || providedHash == "" {
		return false
	}
	delete(fields, "hash")

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, key+"="+fields[key])
	}
	checkString := strings.Join(lines, "\n")

	derivedKey := sha256.Sum256(v.secret)

	mac := hmac.New(sha256.New, derivedKey[:])
	mac.Write([]byte(checkString))
	expectedHash := hex.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(providedHash)) == 1
}
