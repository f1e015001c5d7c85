package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// BackendKind names the adapter variant a program is bound to
type BackendKind string

const (
	BackendMock     BackendKind = "mock"
	BackendProcess  BackendKind = "process"
	BackendExternal BackendKind = "external"
	BackendCluster  BackendKind = "cluster"
)

// BackendKinds lists every supported kind in a stable order.
var BackendKinds = []BackendKind{BackendMock, BackendProcess, BackendExternal, BackendCluster}

// ParseBackendKind validates a configured backend kind.
func ParseBackendKind(s string) (BackendKind, error) {
	kind := BackendKind(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range BackendKinds {
		if k == kind {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown backend kind %q", s)
}

// Digest is the blake2b-256 hash of a compiled guest program.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest was never computed.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest decodes a hex digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return d, fmt.Errorf("invalid digest %q: %w", s, err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("invalid digest %q: want %d bytes, got %d", s, len(d), len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// Artifact is the compiled guest program usable by a backend.
type Artifact struct {
	Path   string `json:"path,omitempty"`
	URL    string `json:"url,omitempty"`
	Digest Digest `json:"digest"`
}

// ProgramDescriptor binds a program id to a backend kind and its artifact.
type ProgramDescriptor struct {
	ID       string      `json:"program_id"`
	Backend  BackendKind `json:"backend"`
	Engine   string      `json:"engine,omitempty"`
	Artifact Artifact    `json:"artifact"`
}
