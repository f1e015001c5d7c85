package domain

import "time"

// ExecutionResult is the outcome of running a guest program without proving.
type ExecutionResult struct {
	TotalNumCycles    uint64        `json:"total_num_cycles"`
	ExecutionDuration time.Duration `json:"execution_duration"`
	Output            []byte        `json:"output"`
}

// ProofResult carries an opaque backend-encoded proof.
type ProofResult struct {
	Proof          []byte        `json:"proof"`
	ProvingTime    time.Duration `json:"proving_time"`
	ProofSizeBytes int           `json:"proof_size_bytes"`
}

// NewProofResult keeps ProofSizeBytes equal to len(proof).
func NewProofResult(proof []byte, provingTime time.Duration) *ProofResult {
	return &ProofResult{
		Proof:          proof,
		ProvingTime:    provingTime,
		ProofSizeBytes: len(proof),
	}
}

// VerificationResult reports whether a proof verified. FailureReason is set
// iff Verified is false.
type VerificationResult struct {
	Verified      bool   `json:"verified"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// Verified builds a successful verification result.
func Verified() *VerificationResult {
	return &VerificationResult{Verified: true}
}

// Rejected builds a failed verification result. An empty reason is replaced.
func Rejected(reason string) *VerificationResult {
	if reason == "" {
		reason = "proof rejected"
	}
	return &VerificationResult{Verified: false, FailureReason: reason}
}
