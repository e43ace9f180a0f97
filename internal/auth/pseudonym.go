package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// anonNamePrefixes は自動生成される表示名の語頭の候補。
var anonNamePrefixes = []string{"Guest", "Anon", "Visitor", "Stranger", "Wanderer"}

// GeneratePseudonym は「語頭＋4桁の乱数」形式の表示名を生成する（例: "Guest4821"）。
// Telegram上の本名やユーザー名を露出させないためのマスク名として使用する。
func GeneratePseudonym() (string, error) {
	prefixIdx, err := rand.Int(rand.Reader, big.NewInt(int64(len(anonNamePrefixes))))
	if err != nil {
		return "", fmt.Errorf("failed to pick pseudonym prefix: %w", err)
	}

	digits, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("failed to generate pseudonym digits: %w", err)
	}

	return fmt.Sprintf("%s%04d", anonNamePrefixes[prefixIdx.Int64()], digits.Int64()), nil
}
