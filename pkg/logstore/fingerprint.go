package logstore

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/mutagen-io/monitoring/pkg/record"
)

// fingerprintSize is the byte length of a fingerprint digest (MD5 output).
const fingerprintSize = md5.Size

// Fingerprint computes the order-independent content address of a metadata
// map: the XOR fold of the MD5 digest of each "key || value" pair,
// rendered as lowercase hex. The empty map yields the all-zero
// fingerprint.
func Fingerprint(metadata record.Metadata) string {
	var digest [fingerprintSize]byte
	for k, v := range metadata {
		h := md5.Sum([]byte(k + v))
		for i := range digest {
			digest[i] ^= h[i]
		}
	}
	return hex.EncodeToString(digest[:])
}
