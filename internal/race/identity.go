package race

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// NewDeviceID returns a fresh device identity: 40 uppercase hex characters.
// The remote service correlates a credential's retries by this value, so the
// coordinator generates one per credential and every worker sharing that
// credential reuses it for the whole race.
func NewDeviceID() string {
	seed := make([]byte, 20)
	_, _ = rand.Read(seed)
	sum := sha1.Sum(seed)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
