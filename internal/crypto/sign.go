package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
)

// DigestBytes returns the raw SHA-256 digest bytes.
func DigestBytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// DigestHex returns the SHA-256 digest as lowercase hex.
func DigestHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestWithPrefix returns the SHA-256 digest with the "sha256:" prefix.
func DigestWithPrefix(data []byte) string {
	return "sha256:" + DigestHex(data)
}

// SignEd25519 signs a digest using Ed25519.
func SignEd25519(privateKey ed25519.PrivateKey, digest []byte) ([]byte, error) {
	if len(digest) != sha256.Size {
		return nil, ErrInvalidDigestLen
	}
	return ed25519.Sign(privateKey, digest), nil
}

// VerifyEd25519 verifies a digest signature using Ed25519.
func VerifyEd25519(publicKey ed25519.PublicKey, digest, sig []byte) (bool, error) {
	if len(digest) != sha256.Size {
		return false, ErrInvalidDigestLen
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return false, ErrInvalidPublicKey
	}
	return ed25519.Verify(publicKey, digest, sig), nil
}

// Signer produces Ed25519 signatures over SHA-256 digests.
type Signer interface {
	KeyID() string
	SignEd25519(digest []byte) ([]byte, error)
}

// KeySigner signs with an in-process private key.
type KeySigner struct {
	ID   string
	Priv ed25519.PrivateKey
}

func NewKeySigner(keyID string, priv ed25519.PrivateKey) KeySigner {
	if keyID == "" {
		keyID = KeyFingerprint(priv.Public().(ed25519.PublicKey))
	}
	return KeySigner{ID: keyID, Priv: priv}
}

func (s KeySigner) KeyID() string {
	return s.ID
}

func (s KeySigner) SignEd25519(digest []byte) ([]byte, error) {
	return SignEd25519(s.Priv, digest)
}

func (s KeySigner) PublicKey() ed25519.PublicKey {
	return s.Priv.Public().(ed25519.PublicKey)
}

// KeyFingerprint is a short stable id for a public key.
func KeyFingerprint(pub ed25519.PublicKey) string {
	return "ed25519:" + DigestHex(pub)[:16]
}
