package helpers

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

const letterBytes = "ABCDEFGHJKLMNPQRSTUVWXYZ"

func randomLetters(src *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letterBytes[src.Intn(len(letterBytes))]
	}
	return string(b)
}

// GenerateReceiptNumber builds "YYMMDDhhmmss-<agent>-<suffix>". The caller checks for collisions.
func GenerateReceiptNumber(now time.Time, agentID uint) string {
	src := rand.New(rand.NewSource(now.UnixNano() + int64(agentID)*7919 + rand.Int63()))
	return fmt.Sprintf("%s-%d-%s", now.UTC().Format("060102150405"), agentID, randomLetters(src, 6))
}

// ReceiptOwner extracts the agent segment of a receipt number.
func ReceiptOwner(receipt string) string {
	parts := strings.Split(receipt, "-")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}
