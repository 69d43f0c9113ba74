package mpc

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

var errBadHex = errors.New("mpc: bad hex length")

// Bytes32 is a 32-byte value such as a ciphertext limb or x25519 key,
// encoded as hex in JSON.
type Bytes32 [32]byte

func (b Bytes32) String() string { return hex.EncodeToString(b[:]) }

func (b Bytes32) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b[:])), nil
}

func (b *Bytes32) UnmarshalText(text []byte) error {
	return decodeFixed(b[:], text)
}

func ParseBytes32(s string) (Bytes32, error) {
	var b Bytes32
	err := b.UnmarshalText([]byte(s))
	return b, err
}

// Nonce is a 128-bit protocol nonce stored little-endian.
type Nonce [16]byte

func NewNonce() (Nonce, error) {
	var n Nonce
	_, err := rand.Read(n[:])
	return n, err
}

// NonceFromUint128 builds a nonce from the high and low halves of a u128.
func NonceFromUint128(hi, lo uint64) Nonce {
	var n Nonce
	binary.LittleEndian.PutUint64(n[:8], lo)
	binary.LittleEndian.PutUint64(n[8:], hi)
	return n
}

func (n Nonce) String() string { return hex.EncodeToString(n[:]) }

func (n Nonce) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(n[:])), nil
}

func (n *Nonce) UnmarshalText(text []byte) error {
	return decodeFixed(n[:], text)
}

func ParseNonce(s string) (Nonce, error) {
	var n Nonce
	err := n.UnmarshalText([]byte(s))
	return n, err
}

// HexBytes is a variable-length byte string encoded as hex in JSON.
type HexBytes []byte

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

func (b *HexBytes) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	*b = raw
	return nil
}

// RandomComputationID returns a non-zero 63-bit identifier for a new
// computation. The top bit stays clear so the id fits a signed BIGINT.
func RandomComputationID() (uint64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, err
		}
		if id := binary.LittleEndian.Uint64(buf[:]) &^ (1 << 63); id != 0 {
			return id, nil
		}
	}
}

func decodeFixed(dst, text []byte) error {
	if hex.DecodedLen(len(text)) != len(dst) {
		return fmt.Errorf("%w: want %d bytes", errBadHex, len(dst))
	}
	_, err := hex.Decode(dst, text)
	return err
}
