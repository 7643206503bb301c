package event

import (
	"encoding/json"
	"fmt"

	"github.com/spaolacci/murmur3"
)

// CanonicalHash computes a stable content hash of a decoded event. The map
// is re-marshaled so that keys are emitted in sorted order, which makes the
// hash independent of field ordering in the source line. Two lines carrying
// the same event therefore hash identically even when the archive serialized
// them differently.
func CanonicalHash(raw map[string]interface{}) (string, error) {
	canonical, err := json.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("event: canonical encode: %w", err)
	}
	h1, h2 := murmur3.Sum128(canonical)
	return fmt.Sprintf("%016x%016x", h1, h2), nil
}
