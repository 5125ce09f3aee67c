package reconcile

import (
	"fmt"
	"math/bits"
	"strconv"
)

// HammingDistance compares two perceptual hashes given as hex strings and
// returns the number of differing bits. Hashes are 64-bit values.
func HammingDistance(a, b string) (int, error) {
	av, err := strconv.ParseUint(a, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad phash %q: %w", a, err)
	}
	bv, err := strconv.ParseUint(b, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad phash %q: %w", b, err)
	}
	return bits.OnesCount64(av ^ bv), nil
}
