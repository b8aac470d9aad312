package otp

import (
	"crypto/rand"
	"math/big"
)

// GenerateCode returns CodeLength random decimal digits.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	ten := big.NewInt(10)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		buf[i] = byte('0' + n.Int64())
	}
	return string(buf), nil
}
