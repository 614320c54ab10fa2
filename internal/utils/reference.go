package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// GenerateReference generates a merchant transaction reference, unique per
// payment attempt. Timestamp plus a random suffix keeps concurrent requests
// from the same second from colliding.
func GenerateReference(prefix string) string {
	max := big.NewInt(9999)
	n, _ := rand.Int(rand.Reader, max)
	return fmt.Sprintf("%s_%s%04d", prefix, time.Now().Format("20060102150405"), n.Int64())
}

// NormalizePhone strips the messaging-channel prefix and the leading + so
// the number matches the payment channel's expected format (2547XXXXXXXX).
func NormalizePhone(from string) string {
	phone := strings.TrimPrefix(from, "whatsapp:")
	return strings.TrimPrefix(phone, "+")
}
