// Package util provides small generic building blocks used across the module.
//
// The package contains:
//   - LockFreeMPSC: an unbounded lock-free multi-producer single-consumer queue. The
//     primary uses it to hand decoded messages from the connection goroutines to the
//     single dispatch goroutine.
//   - HashString / Fold16: FNV-1a hashing with a seed and folding to 16 bit, used to
//     derive instance ids.
package util
