package mpc

import (
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/curve25519"
)

var ErrInvalidPublicKey = errors.New("mpc: invalid x25519 public key")

var probeScalar = sha256.Sum256([]byte("sensor-market/x25519-probe"))

// ValidatePublicKey rejects keys of the wrong size and low-order points,
// which would make the resealed capsule readable by anyone.
func ValidatePublicKey(pub []byte) error {
	if len(pub) != curve25519.PointSize {
		return ErrInvalidPublicKey
	}
	if _, err := curve25519.X25519(probeScalar[:], pub); err != nil {
		return ErrInvalidPublicKey
	}
	return nil
}
