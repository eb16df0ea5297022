package cursor

import (
	"crypto/sha256"
	"encoding/binary"
)

// SlugHash fingerprints a slug as the first four bytes of its sha-256
// digest, big-endian. Stable across processes and implementations; the
// empty string is a valid input.
func SlugHash(slug string) uint32 {
	sum := sha256.Sum256([]byte(slug))
	return binary.BigEndian.Uint32(sum[:4])
}
