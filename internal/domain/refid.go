package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const refAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewRefID builds an external identifier like BK_1700000000000_X7K2M9QPA.
// Uniqueness is best-effort (timestamp plus random suffix), matching how
// these identifiers are generated throughout the platform.
func NewRefID(prefix string) string {
	suffix := make([]byte, 9)
	max := big.NewInt(int64(len(refAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// math/rand quality is acceptable here; fall back to a
			// time-derived index rather than failing the operation.
			suffix[i] = refAlphabet[time.Now().UnixNano()%int64(len(refAlphabet))]
			continue
		}
		suffix[i] = refAlphabet[n.Int64()]
	}
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixMilli(), string(suffix))
}

func NewBookingID() string { return NewRefID("BK") }
func NewGarageRef() string { return NewRefID("GAR") }
func NewAdminRef() string  { return NewRefID("ADMIN") }
func NewUserRef() string   { return NewRefID("USER") }
func NewServiceRef() string {
	return NewRefID("SRV")
}

// NormalizeRefID uppercases a caller-supplied reference for lookup.
func NormalizeRefID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
