package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

const (
	otpDigits = 6
	// OTPTTL is how long a one-time code stays valid.
	OTPTTL = 10 * time.Minute
)

// GenerateOTP returns a random 6-digit one-time code.
func GenerateOTP() (string, error) {
	max := big.NewInt(1)
	for range otpDigits {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n), nil
}
