package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// GenerateSeed returns a random seed, falling back to the current time if the
// system random source fails
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// HashString hashes s with the FNV-1a algorithm, mixing the seed into the offset basis
func HashString(s string, seed uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ seed
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= prime64
	}
	return hash
}

// Fold16 xor-folds a 64 bit hash into 16 bits
func Fold16(h uint64) uint16 {
	return uint16(h) ^ uint16(h>>16) ^ uint16(h>>32) ^ uint16(h>>48)
}
