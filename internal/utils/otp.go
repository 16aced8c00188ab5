package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NewOTP returns a random six-digit verification code as a zero-padded
// string. Codes are emailed to users during registration and expire after a
// configured number of minutes.
func NewOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
