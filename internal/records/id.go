package records

import (
	"math/rand/v2"
	"strconv"
	"time"
)

const (
	idSuffixLength = 9
	base36Digits   = "0123456789abcdefghijklmnopqrstuvwxyz"

	// CreatedAtLayout is ISO-8601 UTC with milliseconds.
	CreatedAtLayout = "2006-01-02T15:04:05.000Z"
)

// NewID returns base36(unix millis of now) + "-" + 9 random base36 digits.
// IDs are not checked for uniqueness.
func NewID(now time.Time, intN func(int) int) string {
	if intN == nil {
		intN = rand.IntN
	}
	b := make([]byte, 0, 9+1+idSuffixLength)
	b = strconv.AppendInt(b, now.UnixMilli(), 36)
	b = append(b, '-')
	for i := 0; i < idSuffixLength; i++ {
		b = append(b, base36Digits[intN(len(base36Digits))])
	}
	return string(b)
}

// FormatCreatedAt formats t as stored in the createdAt column.
func FormatCreatedAt(t time.Time) string {
	return t.UTC().Format(CreatedAtLayout)
}
