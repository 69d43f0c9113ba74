package capsule

import (
	"bytes"
	"context"
	"testing"

	"github.com/shinyyama/sensor-market/internal/mpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func filled(b byte) mpc.Bytes32 {
	var out mpc.Bytes32
	for i := range out {
		out[i] = b
	}
	return out
}

func TestMXELayout(t *testing.T) {
	c := &MXE{
		Nonce:       mpc.NonceFromUint128(0, 5),
		Ciphertexts: [4]mpc.Bytes32{filled(1), filled(2), filled(3), filled(4)},
	}
	raw := c.Bytes()
	require.Len(t, raw, 144)
	assert.Equal(t, byte(5), raw[0])
	assert.Equal(t, byte(1), raw[16])
	assert.Equal(t, byte(4), raw[143])

	parsed, err := ParseMXE(raw)
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	_, err = ParseMXE(raw[:100])
	assert.ErrorIs(t, err, ErrBadSize)
}

func TestBuyerLayout(t *testing.T) {
	c := &Buyer{
		EncryptionKey: filled(9),
		Nonce:         mpc.NonceFromUint128(0, 6),
		Ciphertexts:   [4]mpc.Bytes32{filled(1), filled(2), filled(3), filled(4)},
	}
	raw := c.Bytes()
	require.Len(t, raw, 176)
	assert.Equal(t, byte(9), raw[0])
	assert.Equal(t, byte(6), raw[32])
	assert.Equal(t, byte(1), raw[48])

	parsed, err := ParseBuyer(raw)
	require.NoError(t, err)
	assert.Equal(t, c, parsed)

	_, err = ParseBuyer(append(raw, 0))
	assert.ErrorIs(t, err, ErrBadSize)
}

func TestContentID(t *testing.T) {
	id, err := ContentID([]byte("capsule"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(id), 64)
	assert.Equal(t, "b", id[:1])

	require.NoError(t, Verify(id, []byte("capsule")))
	assert.ErrorIs(t, Verify(id, []byte("other")), ErrCorrupted)
	assert.ErrorIs(t, Verify("not-a-cid", nil), ErrBadID)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	data := bytes.Repeat([]byte{7}, MXESize)

	id, err := s.Put(ctx, data)
	require.NoError(t, err)
	again, err := s.Put(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
