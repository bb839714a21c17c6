package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

var codeSuffixSpace = big.NewInt(1_000_000)

// GenerateBookingCode returns prefix + YYMMDD (UTC) + a random 6 digit suffix
func GenerateBookingCode(prefix string, now time.Time) (string, error) {
	n, err := rand.Int(rand.Reader, codeSuffixSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate booking code: %w", err)
	}
	return fmt.Sprintf("%s%s%06d", prefix, now.UTC().Format("060102"), n.Int64()), nil
}
