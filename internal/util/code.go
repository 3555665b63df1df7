package util

import (
	"crypto/rand"
	"math/big"
)

const (
	CodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength = 6
)

// GenerateCode returns a random session code drawn from CodeChars.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(CodeChars)))
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = CodeChars[n.Int64()]
	}
	return string(code), nil
}
