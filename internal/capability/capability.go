// Package capability defines the narrow interfaces the kernel core uses
// to reach its external collaborators: the contactless transport, the
// cryptographic verifiers, the CA key store, clock, RNG and persistence.
// Implementations are injected; the core never constructs them itself.
package capability

import (
	"context"
	"errors"
	"time"
)

// Transceiver exchanges one APDU with the card. It is byte-transparent:
// command encoding and status-word handling stay with the core.
type Transceiver interface {
	Transceive(ctx context.Context, command []byte) ([]byte, error)
}

// Clock supplies wall and monotonic time. RRP timing and backoff
// arithmetic go through this so tests can drive time.
type Clock interface {
	Now() time.Time
	NowMillis() int64
}

// RNG fills buffers from a cryptographically secure source.
type RNG interface {
	FillRandom(buf []byte) error
}

// ErrNotFound is returned by Persistence.Read for an absent key.
var ErrNotFound = errors.New("persistence: key not found")

// Persistence stores durable records with atomic write semantics. The
// implementation owns encryption at rest; payloads are opaque here.
type Persistence interface {
	Write(ctx context.Context, namespace, key string, data []byte) error
	Read(ctx context.Context, namespace, key string) ([]byte, error)
	Delete(ctx context.Context, namespace, key string) error
	List(ctx context.Context, namespace string) ([]string, error)
}

// ODARequest carries the material an offline data authentication method
// consumes. Unused fields stay nil for the simpler methods.
type ODARequest struct {
	AID                   []byte
	CAPublicKey           *CAPublicKey
	IssuerPKCert          []byte
	IssuerPKExponent      []byte
	IssuerPKRemainder     []byte
	ICCPKCert             []byte
	ICCPKExponent         []byte
	ICCPKRemainder        []byte
	SignedData            []byte
	StaticData            []byte
	UnpredictableNumber   []byte
	ApplicationCryptogram []byte
}

// ODAResult reports a verification outcome. Method echoes which method
// succeeded ("SDA", "DDA", "fDDA", "CDA").
type ODAResult struct {
	Success bool
	Method  string
	Reason  string
}

// ODAVerifier performs the RSA/hash work of offline data authentication.
// The kernel decides which method applies; the verifier only checks it.
type ODAVerifier interface {
	PerformSDA(ctx context.Context, req ODARequest) (ODAResult, error)
	PerformDDA(ctx context.Context, req ODARequest) (ODAResult, error)
	PerformFDDA(ctx context.Context, req ODARequest) (ODAResult, error)
	PerformCDA(ctx context.Context, req ODARequest) (ODAResult, error)
}

// CAPublicKey is one scheme CA public key, selected by RID and index.
type CAPublicKey struct {
	RID      []byte
	Index    byte
	Modulus  []byte
	Exponent []byte
}

// CAKeyStore resolves certification authority public keys. Initialized
// once at startup and read-only afterwards.
type CAKeyStore interface {
	Lookup(rid []byte, index byte) (*CAPublicKey, bool)
}

// ScriptAuthStatus classifies issuer authentication results.
type ScriptAuthStatus int

const (
	ScriptAuthSuccess ScriptAuthStatus = iota
	ScriptAuthNoAuthData
	ScriptAuthInvalidMAC
)

// ScriptAuthenticator validates issuer authentication data (tag 91).
// Validation is advisory: it gates issuer script execution, the kernel
// never verifies the ARPC itself.
type ScriptAuthenticator interface {
	Validate(ctx context.Context, arpc, arc, sessionKeyInputs []byte) ScriptAuthStatus
}
