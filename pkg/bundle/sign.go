package bundle

import (
	"encoding/hex"

	"github.com/poi-trace/core/pkg/poierrors"
	"github.com/poi-trace/core/pkg/signature"
)

// Sign canonicalizes {rootHash, merkleRoot, manifestHash?}, hands the bytes
// to provider, and returns a new Bundle carrying the hex signature and
// signerId. b itself is never mutated.
func Sign(b *Bundle, provider signature.Provider) (*Bundle, error) {
	payload, err := CanonicalSigningPayload(b)
	if err != nil {
		return nil, err
	}

	sig, err := provider.Sign(payload)
	if err != nil {
		return nil, poierrors.Environmental("signature provider", err)
	}

	signed := *b
	signed.SignerID = provider.SignerID()
	signed.Signature = hex.EncodeToString(sig)
	return &signed, nil
}

// VerifySignature recomputes the signing payload and delegates to
// provider.Verify. A bundle with no signature fails verification rather
// than erroring, since "unsigned" is a legitimate bundle state.
func VerifySignature(b *Bundle, provider signature.Provider) (bool, error) {
	if b.Signature == "" || b.SignerID == "" {
		return false, nil
	}

	payload, err := CanonicalSigningPayload(b)
	if err != nil {
		return false, err
	}

	sig, err := hex.DecodeString(b.Signature)
	if err != nil {
		return false, poierrors.Input("signature is not valid hex")
	}

	return provider.Verify(payload, sig, b.SignerID)
}
