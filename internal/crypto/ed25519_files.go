package crypto

import (
	"bytes"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadEd25519PrivateKey loads the service signing key from a file.
// Accepted contents: a PKCS#8 PEM block, a raw 64-byte key or 32-byte seed,
// or either raw form encoded as "hex:", "base64:", bare hex or base64.
func LoadEd25519PrivateKey(path string) (ed25519.PrivateKey, ed25519.PublicKey, error) {
	// #nosec G304 -- path is operator-configured.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	priv, err := ParseEd25519PrivateKey(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("signing key %s: %w", path, err)
	}
	return priv, priv.Public().(ed25519.PublicKey), nil
}

// ParseEd25519PrivateKey decodes key material in any format LoadEd25519PrivateKey accepts.
func ParseEd25519PrivateKey(raw []byte) (ed25519.PrivateKey, error) {
	if block, _ := pem.Decode(raw); block != nil {
		return parsePKCS8(block)
	}

	material, err := decodeMaterial(raw)
	if err != nil {
		return nil, err
	}
	switch len(material) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(material), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(material), nil
	default:
		return nil, fmt.Errorf("unsupported private key length: %d", len(material))
	}
}

func parsePKCS8(block *pem.Block) (ed25519.PrivateKey, error) {
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("PEM key is %T, not ed25519", key)
	}
	return priv, nil
}

// WriteEd25519Seed stores the key's seed hex-encoded with owner-only permissions.
func WriteEd25519Seed(path string, priv ed25519.PrivateKey) error {
	if len(priv) != ed25519.PrivateKeySize {
		return fmt.Errorf("unsupported private key length: %d", len(priv))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	encoded := "hex:" + hex.EncodeToString(priv.Seed()) + "\n"
	return os.WriteFile(path, []byte(encoded), 0o600)
}

func decodeMaterial(raw []byte) ([]byte, error) {
	text := string(bytes.TrimSpace(raw))
	if text == "" {
		return nil, fmt.Errorf("empty key file")
	}
	if rest, ok := strings.CutPrefix(text, "base64:"); ok {
		return base64.StdEncoding.DecodeString(rest)
	}
	if rest, ok := strings.CutPrefix(text, "hex:"); ok {
		return hex.DecodeString(rest)
	}

	// binary key files are taken as-is
	if len(raw) == ed25519.PrivateKeySize || len(raw) == ed25519.SeedSize {
		return raw, nil
	}

	decoders := []func(string) ([]byte, error){
		hex.DecodeString,
		base64.StdEncoding.DecodeString,
		base64.RawURLEncoding.DecodeString,
	}
	for _, decode := range decoders {
		if out, err := decode(text); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("unrecognized key encoding")
}
