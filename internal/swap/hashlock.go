package swap

import (
	"crypto/sha256"
	"fmt"

	"github.com/marswap-exchange/marswapd/pkg/helpers"
)

// PreimageSize is the exact byte length of a hashlock preimage.
const PreimageSize = 32

// GenerateHashLock draws a 32-byte preimage from the OS CSPRNG and returns
// it with its SHA-256 digest. The preimage is a secret: callers must never
// log it and should Zero it when the swap record no longer needs it.
func GenerateHashLock() (preimage, hash []byte, err error) {
	preimage, err = helpers.GenerateSecureRandom(PreimageSize)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrRNGUnavailable, err)
	}

	digest := sha256.Sum256(preimage)
	return preimage, digest[:], nil
}

// HashPreimage computes the SHA-256 hashlock of a preimage.
func HashPreimage(preimage []byte) []byte {
	digest := sha256.Sum256(preimage)
	return digest[:]
}

// VerifyPreimage reports whether SHA-256(preimage) equals hash.
// Comparison is constant-time.
func VerifyPreimage(preimage, hash []byte) bool {
	if len(preimage) != PreimageSize || len(hash) != sha256.Size {
		return false
	}
	digest := sha256.Sum256(preimage)
	return helpers.ConstantTimeCompare(digest[:], hash)
}
