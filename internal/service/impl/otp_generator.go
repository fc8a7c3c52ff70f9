package impl

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var otpSpace = big.NewInt(1_000_000)

// RandomOTP draws codes uniformly from 000000-999999 using crypto/rand.
type RandomOTP struct{}

func (RandomOTP) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
