package imaging

import (
	"crypto/md5"
	"encoding/hex"
)

// Fingerprint returns the hex digest identifying an image's original bytes.
// The digest is the dedup key across all users: identical inputs always map
// to the same fingerprint. Collision resistance is a dedup-accuracy concern
// here, not a security one, so the 128-bit digest is sufficient.
func Fingerprint(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
