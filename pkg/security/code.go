package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// CodeHasher keys one-time codes to the session they were issued for, so a
// stored hash is useless for any other session.
type CodeHasher struct {
	key []byte
}

func NewCodeHasher(key string) *CodeHasher {
	return &CodeHasher{key: []byte(key)}
}

func (h *CodeHasher) Hash(sessionToken, code string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(sessionToken))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *CodeHasher) Equal(storedHash, sessionToken, code string) bool {
	return hmac.Equal([]byte(storedHash), []byte(h.Hash(sessionToken, code)))
}

// GenerateCode returns a zero-padded random numeric code of the given width.
func GenerateCode(digits int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}
