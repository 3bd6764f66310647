package utils

import (
	"fmt"
	"hash/fnv"
)

func HashStringToUint64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// Pick returns a deterministic element of options for key.
func Pick[T any](key string, options []T) T {
	return options[int(HashStringToUint64(key)%uint64(len(options)))]
}

// ShortCode renders a stable zero-padded decimal code of the given width.
func ShortCode(key string, digits int) string {
	mod := uint64(1)
	for i := 0; i < digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", digits, HashStringToUint64(key)%mod)
}
