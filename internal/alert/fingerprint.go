// Package alert deduplicates violation notifications. Each violation is
// reduced to a stable fingerprint; a TTL store remembers recently alerted
// fingerprints so the same violation at the same spot does not spam the
// notification channels.
package alert

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"ppewatch/internal/violation"
)

// Fingerprint derives a stable identity for a violation from its class,
// domain and box coordinates. Confidence and timestamp are deliberately
// excluded so repeated sightings of the same violation collapse to one
// key.
func Fingerprint(e violation.Event) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", e.Class, e.Domain, e.BBox)))
	return hex.EncodeToString(sum[:])
}
