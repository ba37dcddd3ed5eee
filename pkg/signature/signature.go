// Package signature defines the pluggable signing contract bundles sign
// against, plus a stdlib Ed25519 implementation. Grounded in the teacher's
// pkg/attestation/strategy package: same "config-constructed strategy holds
// a key pair behind a mutex" shape as Ed25519Strategy, narrowed to the
// single scheme this spec names (no BLS, no aggregation — bundle signing is
// always single-signer). Ed25519Provider signs and verifies the payload
// bytes exactly as given; it adds no domain prefix and does not pre-hash.
package signature

import (
	"crypto/ed25519"
	cryptorand "crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/poi-trace/core/pkg/poierrors"
)

// Provider is the abstraction bundle.Sign and bundle.VerifySignature use.
// Implementations other than Ed25519Provider (e.g. an HSM-backed or
// multi-party scheme) only need to satisfy this contract.
type Provider interface {
	SignerID() string
	Sign(payload []byte) ([]byte, error)
	Verify(payload, sig []byte, signerID string) (bool, error)
}

// Ed25519Provider is the stdlib-crypto implementation of Provider.
type Ed25519Provider struct {
	mu         sync.RWMutex
	signerID   string
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewEd25519Provider builds a provider from an existing private key, or
// generates a fresh key pair when privateKey is nil.
func NewEd25519Provider(signerID string, privateKey ed25519.PrivateKey) (*Ed25519Provider, error) {
	if signerID == "" {
		return nil, poierrors.Input("signerId is required")
	}

	if len(privateKey) > 0 {
		if len(privateKey) != ed25519.PrivateKeySize {
			return nil, poierrors.Input("invalid ed25519 private key size")
		}
		return &Ed25519Provider{
			signerID:   signerID,
			privateKey: privateKey,
			publicKey:  privateKey.Public().(ed25519.PublicKey),
		}, nil
	}

	pub, priv, err := ed25519.GenerateKey(cryptorand.Reader)
	if err != nil {
		return nil, poierrors.Environmental("ed25519 key generation", err)
	}
	return &Ed25519Provider{signerID: signerID, privateKey: priv, publicKey: pub}, nil
}

// SignerID identifies the signer. It is stored verbatim on signed bundles.
func (p *Ed25519Provider) SignerID() string { return p.signerID }

// Sign returns the raw Ed25519 signature over payload.
func (p *Ed25519Provider) Sign(payload []byte) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return ed25519.Sign(p.privateKey, payload), nil
}

// Verify checks sig against payload using this provider's own public key.
// signerID must match the provider's SignerID(); a mismatch is treated as a
// verification failure rather than an error, since the caller may be
// checking a bundle signed by someone else.
func (p *Ed25519Provider) Verify(payload, sig []byte, signerID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if signerID != p.signerID {
		return false, nil
	}
	return ed25519.Verify(p.publicKey, payload, sig), nil
}

// PublicKeyHex returns the provider's public key as lowercase hex, useful
// for out-of-band distribution to verifiers holding only the public half.
func (p *Ed25519Provider) PublicKeyHex() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return hex.EncodeToString(p.publicKey)
}
