package token

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"strconv"
)

const (
	linkTokenBytes = 32
	codeMin        = 100000
	codeMax        = 999999
)

// NewLinkToken returns 32 random bytes as 64 lowercase hex characters.
func NewLinkToken() (string, error) {
	b := make([]byte, linkTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewCode returns a 6-digit code drawn uniformly from [100000, 999999].
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeMax-codeMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+codeMin, 10), nil
}

// IsWellFormed reports whether value has the wire shape of purpose: exactly six
// ASCII digits for two-factor codes, exactly 64 lowercase hex characters otherwise
// (including an empty purpose).
func IsWellFormed(value string, purpose Purpose) bool {
	if purpose.NumericCode() {
		if len(value) != 6 {
			return false
		}
		for i := 0; i < len(value); i++ {
			if value[i] < '0' || value[i] > '9' {
				return false
			}
		}
		return true
	}
	if len(value) != 2*linkTokenBytes {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
