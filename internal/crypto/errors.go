package crypto

import "errors"

// Canonical encoding failures.
var (
	ErrFloatNotAllowed = errors.New("canonical: float values are not allowed")
	ErrNonStringMapKey = errors.New("canonical: map keys must be strings")
	ErrUnsupportedType = errors.New("canonical: unsupported type")
	ErrKeyCollision    = errors.New("canonical: map keys collide after normalization")
	ErrTooDeep         = errors.New("canonical: value nested too deeply")
)

// Key and signature failures.
var (
	ErrInvalidSeedSize  = errors.New("ed25519: invalid seed size")
	ErrInvalidDigestLen = errors.New("ed25519: digest must be 32 bytes")
	ErrInvalidPublicKey = errors.New("ed25519: invalid public key")
)
