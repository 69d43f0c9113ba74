// Package capsule holds the byte layouts of DEK capsules and the content
// addressed store they live in.
package capsule

import (
	"errors"
	"fmt"

	"github.com/shinyyama/sensor-market/internal/mpc"
)

const (
	nonceSize = 16
	limbSize  = 32
	limbs     = 4

	// MXESize is a cluster-custody capsule: nonce followed by four limbs.
	MXESize = nonceSize + limbs*limbSize
	// BuyerSize is a buyer-custody capsule: the cluster's ephemeral
	// encryption key, the output nonce and four limbs.
	BuyerSize = limbSize + nonceSize + limbs*limbSize
)

var ErrBadSize = errors.New("capsule: unexpected size")

type MXE struct {
	Nonce       mpc.Nonce
	Ciphertexts [4]mpc.Bytes32
}

func ParseMXE(b []byte) (*MXE, error) {
	if len(b) != MXESize {
		return nil, fmt.Errorf("%w: mxe capsule is %d bytes, want %d", ErrBadSize, len(b), MXESize)
	}
	var c MXE
	copy(c.Nonce[:], b[:nonceSize])
	for i := range c.Ciphertexts {
		off := nonceSize + i*limbSize
		copy(c.Ciphertexts[i][:], b[off:off+limbSize])
	}
	return &c, nil
}

func (c *MXE) Bytes() []byte {
	out := make([]byte, 0, MXESize)
	out = append(out, c.Nonce[:]...)
	for _, ct := range c.Ciphertexts {
		out = append(out, ct[:]...)
	}
	return out
}

type Buyer struct {
	EncryptionKey mpc.Bytes32
	Nonce         mpc.Nonce
	Ciphertexts   [4]mpc.Bytes32
}

func ParseBuyer(b []byte) (*Buyer, error) {
	if len(b) != BuyerSize {
		return nil, fmt.Errorf("%w: buyer capsule is %d bytes, want %d", ErrBadSize, len(b), BuyerSize)
	}
	var c Buyer
	copy(c.EncryptionKey[:], b[:limbSize])
	copy(c.Nonce[:], b[limbSize:limbSize+nonceSize])
	for i := range c.Ciphertexts {
		off := limbSize + nonceSize + i*limbSize
		copy(c.Ciphertexts[i][:], b[off:off+limbSize])
	}
	return &c, nil
}

func (c *Buyer) Bytes() []byte {
	out := make([]byte, 0, BuyerSize)
	out = append(out, c.EncryptionKey[:]...)
	out = append(out, c.Nonce[:]...)
	for _, ct := range c.Ciphertexts {
		out = append(out, ct[:]...)
	}
	return out
}
