package signature

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/davidahmann/proofofchoice/internal/crypto"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

func testDecision() types.Decision {
	return types.Decision{
		ID:      "d-1",
		Status:  types.StatusPending,
		Version: 3,
		Options: []types.DecisionOption{
			{ID: "o-1", Title: "Oak flooring", CostImpact: 1200000},
			{ID: "o-2", Title: "Polished concrete", CostImpact: 800000},
		},
		SelectedOptionID: "o-1",
	}
}

func testSigner(t *testing.T) crypto.KeySigner {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	return crypto.NewKeySigner("", priv)
}

func TestBuildAndVerify(t *testing.T) {
	signer := testSigner(t)
	d := testDecision()

	sig, err := Build(BuildInput{
		ID:         "s-1",
		Decision:   d,
		OptionID:   "o-1",
		SignerName: "  J. Park ",
		SignedAt:   time.Date(2026, 4, 2, 15, 4, 5, 999, time.UTC),
	}, signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if sig.SignerName != "J. Park" || sig.Version != 3 || sig.KeyID != signer.KeyID() {
		t.Fatalf("unexpected signature: %+v", sig)
	}
	if !strings.HasPrefix(sig.Hash, "sha256:") || len(sig.Sig) == 0 {
		t.Fatalf("signature missing hash or sig")
	}
	if err := Verify(sig, d, signer.PublicKey()); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestBuildRequiresSignerAndOption(t *testing.T) {
	signer := testSigner(t)
	if _, err := Build(BuildInput{Decision: testDecision(), OptionID: "o-1", SignerName: " "}, signer); err == nil {
		t.Fatalf("expected error for blank signer")
	}
	if _, err := Build(BuildInput{Decision: testDecision(), OptionID: "missing", SignerName: "J. Park"}, signer); err == nil {
		t.Fatalf("expected error for unknown option")
	}
}

func TestVerifyDetectsChangedOption(t *testing.T) {
	signer := testSigner(t)
	d := testDecision()
	sig, err := Build(BuildInput{Decision: d, OptionID: "o-1", SignerName: "J. Park", SignedAt: time.Now()}, signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	d.Options[0].CostImpact = 1
	if err := Verify(sig, d, signer.PublicKey()); !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("expected digest mismatch, got %v", err)
	}
}

func TestVerifyCoversFullOptionContent(t *testing.T) {
	signer := testSigner(t)
	base := testDecision()
	base.Options[0].Pros = []string{"warm"}
	base.Options[0].Cons = []string{"scratches"}
	base.Options[0].Image = "https://cdn.example.com/oak.jpg"
	sig, err := Build(BuildInput{Decision: base, OptionID: "o-1", SignerName: "J. Park", SignedAt: time.Now()}, signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	edits := map[string]func(*types.DecisionOption){
		"pros":  func(o *types.DecisionOption) { o.Pros = append(o.Pros, "cheap") },
		"cons":  func(o *types.DecisionOption) { o.Cons = nil },
		"image": func(o *types.DecisionOption) { o.Image = "https://cdn.example.com/vinyl.jpg" },
	}
	for name, edit := range edits {
		d := base.Clone()
		edit(&d.Options[0])
		if err := Verify(sig, d, signer.PublicKey()); !errors.Is(err, ErrDigestMismatch) {
			t.Fatalf("%s: expected digest mismatch, got %v", name, err)
		}
	}
}

func TestVerifyTreatsNilAndEmptyListsAlike(t *testing.T) {
	signer := testSigner(t)
	d := testDecision()
	sig, err := Build(BuildInput{Decision: d, OptionID: "o-1", SignerName: "J. Park", SignedAt: time.Now()}, signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	d.Options[0].Pros = []string{}
	if err := Verify(sig, d, signer.PublicKey()); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyDetectsWrongKey(t *testing.T) {
	signer := testSigner(t)
	other := testSigner(t)
	d := testDecision()
	sig, err := Build(BuildInput{Decision: d, OptionID: "o-2", SignerName: "J. Park", SignedAt: time.Now()}, signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := Verify(sig, d, other.PublicKey()); !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestVerifyDetectsRemovedOption(t *testing.T) {
	signer := testSigner(t)
	d := testDecision()
	sig, err := Build(BuildInput{Decision: d, OptionID: "o-2", SignerName: "J. Park", SignedAt: time.Now()}, signer)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	d.Options = d.Options[:1]
	if err := Verify(sig, d, signer.PublicKey()); !errors.Is(err, ErrOptionMismatch) {
		t.Fatalf("expected option mismatch, got %v", err)
	}
}
