package mpc

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/curve25519"
)

func TestRoutingKeys(t *testing.T) {
	seen := map[uint32]string{}
	for _, name := range Circuits() {
		k, ok := RoutingKey(name)
		require.True(t, ok, name)
		assert.Equal(t, Offset(name), k)
		if prev, dup := seen[k]; dup {
			t.Fatalf("routing key collision between %s and %s", prev, name)
		}
		seen[k] = name
	}
	_, ok := RoutingKey("nope")
	assert.False(t, ok)
	_, ok = RoutingKey("add_together")
	assert.False(t, ok)
}

func TestRandomComputationIDFitsInt64(t *testing.T) {
	for i := 0; i < 512; i++ {
		id, err := RandomComputationID()
		require.NoError(t, err)
		require.NotZero(t, id)
		require.LessOrEqual(t, id, uint64(math.MaxInt64))
	}
}

func TestNonceRoundTripsAsHex(t *testing.T) {
	n := NonceFromUint128(1, 2)
	assert.Equal(t, byte(2), n[0])
	assert.Equal(t, byte(1), n[8])

	parsed, err := ParseNonce(n.String())
	require.NoError(t, err)
	assert.Equal(t, n, parsed)

	_, err = ParseNonce("abcd")
	assert.Error(t, err)
}

func TestValidatePublicKey(t *testing.T) {
	priv := make([]byte, 32)
	_, _ = rand.Read(priv)
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     []byte
		wantErr bool
	}{
		{"valid", pub, false},
		{"short", pub[:31], true},
		{"zero point", make([]byte, 32), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePublicKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func signedCallback(t *testing.T, priv ed25519.PrivateKey, program string) *Callback {
	t.Helper()
	out, err := json.Marshal(ResealOutput{Nonce: NonceFromUint128(0, 9)})
	require.NoError(t, err)
	cb := &Callback{Program: program, Circuit: CircuitResealDEK, ComputationID: 42, Status: StatusSuccess, Output: out}
	Sign(priv, cb)
	return cb
}

func TestVerifier(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	v := NewVerifier("mxe", pub)

	require.NoError(t, v.Verify(signedCallback(t, priv, "mxe")))
	assert.ErrorIs(t, v.Verify(signedCallback(t, priv, "other")), ErrUntrustedProgram)

	tampered := signedCallback(t, priv, "mxe")
	tampered.ComputationID = 43
	assert.ErrorIs(t, v.Verify(tampered), ErrBadSignature)

	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	assert.ErrorIs(t, v.Verify(signedCallback(t, otherPriv, "mxe")), ErrBadSignature)
}

func TestCallbackSurvivesJSON(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	cb := signedCallback(t, priv, "mxe")

	raw, err := json.Marshal(cb)
	require.NoError(t, err)
	var decoded Callback
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, NewVerifier("mxe", pub).Verify(&decoded))

	var out ResealOutput
	require.NoError(t, decoded.DecodeOutput(&out))
	assert.Equal(t, NonceFromUint128(0, 9), out.Nonce)

	decoded.Output = nil
	assert.ErrorIs(t, decoded.DecodeOutput(&out), ErrBadOutput)
}

func TestClientRetriesTransientFailures(t *testing.T) {
	var calls int32
	var got submission
	var args ResealRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var body struct {
			submission
			Args json.RawMessage `json:"args"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = body.submission
		_ = json.Unmarshal(body.Args, &args)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "http://market/api/mpc/callback", srv.Client())
	c.SetBackOff(func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) })

	req := &ResealRequest{ComputationID: 7, Nonce: NonceFromUint128(0, 1), Purchase: "p", Listing: "l"}
	require.NoError(t, c.Submit(context.Background(), req))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, CircuitResealDEK, got.Circuit)
	assert.Equal(t, Offset(CircuitResealDEK), got.RoutingKey)
	assert.Equal(t, uint64(7), got.ComputationID)
	assert.Equal(t, "http://market/api/mpc/callback", got.CallbackURL)
	assert.Equal(t, "p", args.Purchase)
}

func TestClientDoesNotRetryRejections(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad args", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client())
	c.SetBackOff(func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) })

	err := c.Submit(context.Background(), &AccuracyRequest{ComputationID: 1})
	assert.True(t, errors.Is(err, ErrRejected), "err=%v", err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
