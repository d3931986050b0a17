// Package refnum allocates the human-readable references printed on
// receipts and supply records: PREFIX + yyyyMMddHHmmss + a 4-digit random
// suffix. The shape is a compatibility requirement for printed receipts.
// Uniqueness is best effort only; two commits in the same second have a
// 1/10000 chance of colliding, which the sales table's unique index and a
// single retry absorb.
package refnum

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math/big"
	"time"
)

const (
	SalePrefix   = "CHK"
	SupplyPrefix = "SUP"
)

func Sale() string { return New(SalePrefix, time.Now()) }

func Supply() string { return New(SupplyPrefix, time.Now()) }

func New(prefix string, at time.Time) string {
	return fmt.Sprintf("%s%s%04d", prefix, at.Format("20060102150405"), randomSuffix())
}

func randomSuffix() int {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		// crypto/rand failing is effectively fatal elsewhere; fall back to
		// the clock so a reference is still produced.
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(time.Now().UnixNano()))
		return int(binary.BigEndian.Uint64(buf[:]) % 10000)
	}
	return int(n.Int64())
}
