package mpc

// Request is one of the typed computation requests below. Each circuit has
// its own shape so arguments of different flows can never alias.
type Request interface {
	Circuit() string
	Computation() uint64
}

// ResealRequest asks the cluster to re-encrypt a data-encryption key from
// cluster custody to the buyer's x25519 key.
type ResealRequest struct {
	ComputationID  uint64     `json:"computationId"`
	Nonce          Nonce      `json:"nonce"`
	Ciphertexts    [4]Bytes32 `json:"ciphertexts"`
	BuyerPublicKey Bytes32    `json:"buyerPublicKey"`
	Purchase       string     `json:"purchase"`
	Listing        string     `json:"listing"`
}

func (r *ResealRequest) Circuit() string     { return CircuitResealDEK }
func (r *ResealRequest) Computation() uint64 { return r.ComputationID }

// AccuracyRequest carries three encrypted Q16.16 scalars: the reading, the
// rolling mean and the standard deviation.
type AccuracyRequest struct {
	ComputationID uint64  `json:"computationId"`
	PublicKey     Bytes32 `json:"publicKey"`
	Nonce         Nonce   `json:"nonce"`
	Reading       Bytes32 `json:"reading"`
	Mean          Bytes32 `json:"mean"`
	StdDev        Bytes32 `json:"stdDev"`
	Device        string  `json:"device"`
}

func (r *AccuracyRequest) Circuit() string     { return CircuitAccuracyScore }
func (r *AccuracyRequest) Computation() uint64 { return r.ComputationID }
