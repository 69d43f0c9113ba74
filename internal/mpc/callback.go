package mpc

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusAborted Status = "aborted"
)

var (
	ErrUntrustedProgram = errors.New("mpc: callback from untrusted program")
	ErrBadSignature     = errors.New("mpc: callback signature invalid")
	ErrBadOutput        = errors.New("mpc: callback output malformed")
)

// Callback is the envelope the cluster posts back when a computation ends.
type Callback struct {
	Program       string          `json:"program"`
	Circuit       string          `json:"circuit"`
	ComputationID uint64          `json:"computationId"`
	Status        Status          `json:"status"`
	Output        json.RawMessage `json:"output,omitempty"`
	Signature     HexBytes        `json:"signature"`
}

// SigningBytes is the digest covered by the callback signature.
func (c *Callback) SigningBytes() []byte {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(c.Program), []byte(c.Circuit), []byte(c.Status), c.Output} {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(part)))
		h.Write(n[:])
		h.Write(part)
	}
	var id [8]byte
	binary.LittleEndian.PutUint64(id[:], c.ComputationID)
	h.Write(id[:])
	return h.Sum(nil)
}

// Sign sets the callback signature. The cluster side and tests use it.
func Sign(key ed25519.PrivateKey, c *Callback) {
	c.Signature = ed25519.Sign(key, c.SigningBytes())
}

// ResealOutput is the success payload of the reseal circuit.
type ResealOutput struct {
	EncryptionKey Bytes32    `json:"encryptionKey"`
	Nonce         Nonce      `json:"nonce"`
	Ciphertexts   [4]Bytes32 `json:"ciphertexts"`
}

// AccuracyOutput is the success payload of the accuracy circuit. The score
// stays encrypted.
type AccuracyOutput struct {
	Ciphertext Bytes32 `json:"ciphertext"`
	Nonce      Nonce   `json:"nonce"`
}

func (c *Callback) DecodeOutput(v any) error {
	if len(c.Output) == 0 {
		return ErrBadOutput
	}
	if err := json.Unmarshal(c.Output, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadOutput, err)
	}
	return nil
}

// Verifier checks that a callback was produced by the trusted cluster
// program.
type Verifier struct {
	program string
	key     ed25519.PublicKey
}

func NewVerifier(program string, key ed25519.PublicKey) *Verifier {
	return &Verifier{program: program, key: key}
}

// ParseVerifier builds a Verifier from a hex-encoded ed25519 public key.
func ParseVerifier(program, hexKey string) (*Verifier, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("mpc: invalid callback public key")
	}
	if program == "" {
		return nil, errors.New("mpc: program id is required")
	}
	return NewVerifier(program, ed25519.PublicKey(raw)), nil
}

func (v *Verifier) Verify(c *Callback) error {
	if c == nil || c.Program != v.program {
		return ErrUntrustedProgram
	}
	if len(c.Signature) != ed25519.SignatureSize || !ed25519.Verify(v.key, c.SigningBytes(), c.Signature) {
		return ErrBadSignature
	}
	return nil
}
