package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// GenerateSecret generates a cryptographically secure random secret
func GenerateSecret(bytes int) (string, error) {
	b := make([]byte, bytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RandomDigits returns n random decimal digits
func RandomDigits(n int) (string, error) {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("failed to generate random digit: %w", err)
		}
		sb.WriteByte(byte('0' + d.Int64()))
	}
	return sb.String(), nil
}

// GenerateBookingReference returns "BK" + year + 6 random digits
func GenerateBookingReference(now time.Time) (string, error) {
	digits, err := RandomDigits(6)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("BK%d%s", now.Year(), digits), nil
}

// GenerateTransactionReference returns the uppercased first three letters of
// the method, the date as YYYYMMDD and 6 random digits
func GenerateTransactionReference(method string, now time.Time) (string, error) {
	prefix := strings.ToUpper(strings.ReplaceAll(method, "-", ""))
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	digits, err := RandomDigits(6)
	if err != nil {
		return "", err
	}
	return prefix + now.Format("20060102") + digits, nil
}
