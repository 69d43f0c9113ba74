package mpc

import (
	"crypto/sha256"
	"encoding/binary"
)

// Circuit names understood by the secure-computation cluster.
const (
	CircuitResealDEK     = "reseal_dek"
	CircuitAccuracyScore = "compute_accuracy_score"
)

// routingKeys maps each circuit to its computation-definition offset. It is
// filled once at package initialization and only read afterwards.
var routingKeys = buildRoutingKeys(CircuitResealDEK, CircuitAccuracyScore)

func buildRoutingKeys(names ...string) map[string]uint32 {
	m := make(map[string]uint32, len(names))
	for _, n := range names {
		m[n] = Offset(n)
	}
	return m
}

// Offset derives the routing key for a circuit name: the first four bytes of
// sha256(name) read little-endian.
func Offset(name string) uint32 {
	sum := sha256.Sum256([]byte(name))
	return binary.LittleEndian.Uint32(sum[:4])
}

// RoutingKey returns the registered routing key for a circuit.
func RoutingKey(circuit string) (uint32, bool) {
	k, ok := routingKeys[circuit]
	return k, ok
}

// Circuits lists the registered circuit names.
func Circuits() []string {
	return []string{CircuitResealDEK, CircuitAccuracyScore}
}
