// Package signature builds and verifies the e-signature that binds a signer to
// the chosen option of one decision version.
package signature

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidahmann/proofofchoice/internal/crypto"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

const Schema = "proofofchoice.signature.v1"

var (
	ErrDigestMismatch   = errors.New("signature digest mismatch")
	ErrSignatureInvalid = errors.New("signature invalid")
	ErrOptionMismatch   = errors.New("signed option does not match")
)

type BuildInput struct {
	ID             string
	Decision       types.Decision
	OptionID       string
	SignerName     string
	SignerEmail    string
	SignedAt       time.Time
	IP             string
	SignatureImage string
}

type signedOption struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	CostImpact  int64    `json:"cost_impact"`
	Pros        []string `json:"pros"`
	Cons        []string `json:"cons"`
}

type signedSigner struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type signedBody struct {
	Schema     string       `json:"schema"`
	DecisionID string       `json:"decision_id"`
	Version    int          `json:"version"`
	Option     signedOption `json:"option"`
	Signer     signedSigner `json:"signer"`
	SignedAt   string       `json:"signed_at"`
}

// Build canonicalizes the signing view, hashes it and signs the digest.
func Build(in BuildInput, signer crypto.Signer) (types.ESignature, error) {
	if strings.TrimSpace(in.SignerName) == "" {
		return types.ESignature{}, fmt.Errorf("signer name is required")
	}
	option, ok := in.Decision.Option(in.OptionID)
	if !ok {
		return types.ESignature{}, fmt.Errorf("option %s not part of decision %s", in.OptionID, in.Decision.ID)
	}

	sig := types.ESignature{
		ID:             in.ID,
		DecisionID:     in.Decision.ID,
		OptionID:       option.ID,
		Version:        in.Decision.Version,
		SignerName:     strings.TrimSpace(in.SignerName),
		SignerEmail:    in.SignerEmail,
		SignedAt:       in.SignedAt.UTC().Truncate(time.Microsecond),
		IP:             in.IP,
		SignatureImage: in.SignatureImage,
	}

	digest, digestBytes, err := crypto.Digest(body(sig, option))
	if err != nil {
		return types.ESignature{}, err
	}
	raw, err := signer.SignEd25519(digestBytes)
	if err != nil {
		return types.ESignature{}, err
	}

	sig.Hash = digest
	sig.KeyID = signer.KeyID()
	sig.Sig = raw
	return sig, nil
}

// Verify recomputes the digest from the decision's current option content and
// checks the Ed25519 signature with publicKey.
func Verify(sig types.ESignature, decision types.Decision, publicKey ed25519.PublicKey) error {
	if sig.DecisionID != decision.ID {
		return ErrOptionMismatch
	}
	option, ok := decision.Option(sig.OptionID)
	if !ok {
		return ErrOptionMismatch
	}

	digest, digestBytes, err := crypto.Digest(body(sig, option))
	if err != nil {
		return err
	}
	if digest != sig.Hash {
		return ErrDigestMismatch
	}

	ok, err = crypto.VerifyEd25519(publicKey, digestBytes, sig.Sig)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSignatureInvalid
	}
	return nil
}

func body(sig types.ESignature, option types.DecisionOption) signedBody {
	return signedBody{
		Schema:     Schema,
		DecisionID: sig.DecisionID,
		Version:    sig.Version,
		Option: signedOption{
			ID:          option.ID,
			Title:       option.Title,
			Description: option.Description,
			Image:       option.Image,
			CostImpact:  option.CostImpact,
			Pros:        orEmpty(option.Pros),
			Cons:        orEmpty(option.Cons),
		},
		Signer:   signedSigner{Name: sig.SignerName, Email: sig.SignerEmail},
		SignedAt: sig.SignedAt.UTC().Format(time.RFC3339Nano),
	}
}

// orEmpty keeps a nil list and an empty one hashing the same.
func orEmpty(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
