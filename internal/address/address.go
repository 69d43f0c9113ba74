// Package address derives the deterministic identities that key every
// persisted record. Off-chain indexers recompute the same identities from the
// same logical keys, so the seed layouts here are part of the public contract.
package address

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

const domain = "sensor-market/derived"

var (
	ErrNoBump     = errors.New("address: no off-curve bump for seeds")
	ErrInvalidKey = errors.New("address: invalid key")
)

// Derive hashes the length-prefixed seeds into a 32-byte identity and renders
// it in base58.
func Derive(seeds ...[]byte) string {
	return base58.Encode(digest(seeds, nil))
}

// Find derives an identity that is not a valid ed25519 point, searching bumps
// from 255 down. Nobody holds a private key for such an identity.
func Find(seeds ...[]byte) (string, uint8, error) {
	for b := 255; b >= 0; b-- {
		bump := uint8(b)
		sum := digest(seeds, &bump)
		if _, err := new(edwards25519.Point).SetBytes(sum); err != nil {
			return base58.Encode(sum), bump, nil
		}
	}
	return "", 0, ErrNoBump
}

// Parse validates that s is a base58 rendering of a 32-byte identity.
func Parse(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) != sha256.Size {
		return nil, ErrInvalidKey
	}
	return raw, nil
}

func U64(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}

func Marketplace(admin, name string) string {
	return Derive([]byte("marketplace"), []byte(admin), []byte(name))
}

func Treasury(marketplace string) (string, uint8, error) {
	return Find([]byte("treasury"), []byte(marketplace))
}

func Device(marketplace, deviceID string) string {
	return Derive([]byte("device"), []byte(marketplace), []byte(deviceID))
}

// Listing keys a listing by marketplace, seller and device id.
func Listing(marketplace, seller, deviceID string) string {
	return Derive([]byte("listing"), []byte(marketplace), []byte(seller), []byte(deviceID))
}

// Purchase keys a purchase record by its listing and ordinal index.
func Purchase(listing string, index uint64) string {
	return Derive([]byte("purchase"), []byte(listing), U64(index))
}

func ResealJob(computationID uint64) string {
	return Derive([]byte("reseal_job"), U64(computationID))
}

func QualityJob(computationID uint64) string {
	return Derive([]byte("quality_job"), U64(computationID))
}

func TokenAccount(owner, mint string) string {
	return Derive([]byte("token_account"), []byte(owner), []byte(mint))
}

func digest(seeds [][]byte, bump *uint8) []byte {
	h := sha256.New()
	var n [4]byte
	for _, s := range seeds {
		binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write(s)
	}
	if bump != nil {
		h.Write([]byte{*bump})
	}
	h.Write([]byte(domain))
	return h.Sum(nil)
}
