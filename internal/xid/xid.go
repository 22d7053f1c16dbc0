package xid

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

// New returns prefix-<base36 unix nanos>-<random hex>. The random part is
// dropped if the system randomness source fails.
func New(prefix string) string {
	stamp := strconv.FormatInt(time.Now().UnixNano(), 36)
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return prefix + "-" + stamp
	}
	return prefix + "-" + stamp + "-" + hex.EncodeToString(buf)
}
