package dict

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/dchest/siphash"
)

// --------------------------------------------------------------------------
// Hash Function Seed
// --------------------------------------------------------------------------

// hashSeed parameterises every hash computed by this package. It is a
// process-wide value expected to be set once at startup; all dicts in the
// process share it.
var hashSeed [16]byte

func init() {
	// Start with a random seed so processes that never call SetHashSeed
	// still get per-process hash distribution.
	if _, err := rand.Read(hashSeed[:]); err != nil {
		// crypto/rand is unavailable; a zero seed still yields a correct
		// (if predictable) hash function.
		clear(hashSeed[:])
	}
}

// SetHashSeed installs the process-wide 16 byte hash seed. It must be
// called before any dict is populated; changing the seed afterwards makes
// existing tables unsearchable.
func SetHashSeed(seed []byte) {
	if len(seed) != len(hashSeed) {
		panic("dict: hash seed must be exactly 16 bytes")
	}
	copy(hashSeed[:], seed)
}

// HashSeed returns a copy of the current process-wide hash seed.
func HashSeed() []byte {
	seed := make([]byte, len(hashSeed))
	copy(seed, hashSeed[:])
	return seed
}

// --------------------------------------------------------------------------
// Hash Functions
// --------------------------------------------------------------------------

// GenHash hashes a byte string with SipHash-2-4 keyed by the process seed.
// Type descriptors for []byte or string keys typically delegate to this.
func GenHash(data []byte) uint64 {
	k0 := binary.LittleEndian.Uint64(hashSeed[0:8])
	k1 := binary.LittleEndian.Uint64(hashSeed[8:16])
	return siphash.Hash(k0, k1, data)
}

// GenHashString is GenHash for string keys.
func GenHashString(s string) uint64 {
	return GenHash([]byte(s))
}

// GenCaseHash hashes a byte string case-insensitively: ASCII upper-case
// letters fold to lower-case before hashing, so "KEY" and "key" collide.
func GenCaseHash(data []byte) uint64 {
	lower := make([]byte, len(data))
	for i, c := range data {
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		lower[i] = c
	}
	return GenHash(lower)
}
