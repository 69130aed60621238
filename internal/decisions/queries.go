package decisions

import (
	"context"
	"crypto/ed25519"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/davidahmann/proofofchoice/internal/audit"
	"github.com/davidahmann/proofofchoice/internal/catalog"
	"github.com/davidahmann/proofofchoice/internal/ledger"
	"github.com/davidahmann/proofofchoice/internal/signature"
	"github.com/davidahmann/proofofchoice/internal/snapshot"
	"github.com/davidahmann/proofofchoice/internal/workflow"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

// Get returns the decision, with its comment thread when includeComments is set.
func (s *Service) Get(ctx context.Context, decisionID string, includeComments bool) (types.Decision, error) {
	d, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return types.Decision{}, readError("load decision", err)
	}
	if includeComments {
		thread, err := s.store.ListComments(ctx, decisionID)
		if err != nil {
			return types.Decision{}, readError("load comments", err)
		}
		d.Comments = thread
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, projectID string) ([]types.Decision, error) {
	out, err := s.store.ListDecisions(ctx, projectID)
	if err != nil {
		return nil, readError("list decisions", err)
	}
	return out, nil
}

// Audit returns entries newest-first. limit <= 0 returns all of them.
func (s *Service) Audit(ctx context.Context, decisionID string, limit int) ([]types.AuditEntry, error) {
	entries, err := s.auditChain(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	out := audit.NewestFirst(entries)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Service) Versions(ctx context.Context, decisionID string) ([]snapshot.Listed, error) {
	if _, err := s.store.GetDecision(ctx, decisionID); err != nil {
		return nil, readError("load decision", err)
	}
	snaps, err := s.store.ListSnapshots(ctx, decisionID)
	if err != nil {
		return nil, readError("list snapshots", err)
	}
	return snapshot.List(snaps), nil
}

func (s *Service) Comments(ctx context.Context, decisionID string) ([]types.Comment, error) {
	if _, err := s.store.GetDecision(ctx, decisionID); err != nil {
		return nil, readError("load decision", err)
	}
	thread, err := s.store.ListComments(ctx, decisionID)
	if err != nil {
		return nil, readError("list comments", err)
	}
	return thread, nil
}

// Signature returns the approval signature; NotFound until the decision is approved.
func (s *Service) Signature(ctx context.Context, decisionID string) (types.ESignature, error) {
	if _, err := s.store.GetDecision(ctx, decisionID); err != nil {
		return types.ESignature{}, readError("load decision", err)
	}
	sig, err := s.store.GetSignature(ctx, decisionID)
	if errors.Is(err, ledger.ErrNotFound) {
		return types.ESignature{}, workflow.NewNotFoundError("decision %s has no signature", decisionID)
	}
	if err != nil {
		return types.ESignature{}, readError("load signature", err)
	}
	return sig, nil
}

type SignatureCheck struct {
	Valid    bool   `json:"valid"`
	KeyID    string `json:"keyId"`
	Hash     string `json:"hash"`
	OptionID string `json:"optionId"`
	Version  int    `json:"version"`
	Error    string `json:"error,omitempty"`
}

// VerifySignature recomputes the signed digest from the stored option content
// and checks it against the key that signed it.
func (s *Service) VerifySignature(ctx context.Context, decisionID string) (SignatureCheck, error) {
	d, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return SignatureCheck{}, readError("load decision", err)
	}
	sig, err := s.Signature(ctx, decisionID)
	if err != nil {
		return SignatureCheck{}, err
	}
	check := SignatureCheck{KeyID: sig.KeyID, Hash: sig.Hash, OptionID: sig.OptionID, Version: sig.Version}

	pub, err := s.publicKeyFor(ctx, sig.KeyID)
	if err != nil {
		check.Error = err.Error()
		return check, nil
	}
	if err := signature.Verify(sig, d, pub); err != nil {
		check.Error = err.Error()
		return check, nil
	}
	check.Valid = true
	return check, nil
}

func (s *Service) publicKeyFor(ctx context.Context, keyID string) (ed25519.PublicKey, error) {
	if keyID == s.signer.KeyID() {
		return s.publicKey, nil
	}
	rec, ok := s.store.GetKey(ctx, keyID)
	if !ok || len(rec.PublicKey) != ed25519.PublicKeySize {
		return nil, errors.New("unknown signing key " + keyID)
	}
	return ed25519.PublicKey(rec.PublicKey), nil
}

// VerifyAudit checks the decision's hash chain end to end.
func (s *Service) VerifyAudit(ctx context.Context, decisionID string) (audit.VerifyResult, error) {
	entries, err := s.auditChain(ctx, decisionID)
	if err != nil {
		return audit.VerifyResult{}, err
	}
	return audit.Verify(entries), nil
}

func (s *Service) Costs(ctx context.Context, decisionID string) ([]catalog.OptionCost, error) {
	d, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, readError("load decision", err)
	}
	return catalog.Costs(d.Options), nil
}

// Proof is the full proof-of-choice record of one decision.
type Proof struct {
	Decision   types.Decision          `json:"decision"`
	Audit      []types.AuditEntry      `json:"audit"`
	Versions   []types.VersionSnapshot `json:"versions"`
	Comments   []types.Comment         `json:"comments"`
	Signature  *types.ESignature       `json:"signature,omitempty"`
	Chain      audit.VerifyResult      `json:"chain"`
	SignCheck  *SignatureCheck         `json:"signatureCheck,omitempty"`
	PolicyHash string                  `json:"policyHash,omitempty"`
}

// Proof collects everything needed to export or independently verify a decision.
func (s *Service) Proof(ctx context.Context, decisionID string) (Proof, error) {
	d, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return Proof{}, readError("load decision", err)
	}

	var (
		entries []types.AuditEntry
		snaps   []types.VersionSnapshot
		thread  []types.Comment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if entries, err = s.store.ListAudit(gctx, decisionID); err != nil {
			return readError("list audit", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if snaps, err = s.store.ListSnapshots(gctx, decisionID); err != nil {
			return readError("list snapshots", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if thread, err = s.store.ListComments(gctx, decisionID); err != nil {
			return readError("list comments", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Proof{}, err
	}

	p := Proof{
		Decision:   d,
		Audit:      audit.OldestFirst(entries),
		Versions:   snaps,
		Comments:   thread,
		Chain:      audit.Verify(entries),
		PolicyHash: s.policy.Hash,
	}
	sig, err := s.store.GetSignature(ctx, decisionID)
	switch {
	case err == nil:
		p.Signature = &sig
		check, err := s.VerifySignature(ctx, decisionID)
		if err != nil {
			return Proof{}, err
		}
		p.SignCheck = &check
	case !errors.Is(err, ledger.ErrNotFound):
		return Proof{}, readError("load signature", err)
	}
	return p, nil
}

func (s *Service) auditChain(ctx context.Context, decisionID string) ([]types.AuditEntry, error) {
	if _, err := s.store.GetDecision(ctx, decisionID); err != nil {
		return nil, readError("load decision", err)
	}
	entries, err := s.store.ListAudit(ctx, decisionID)
	if err != nil {
		return nil, readError("list audit", err)
	}
	return entries, nil
}

func readError(op string, err error) error {
	if errors.Is(err, ledger.ErrNotFound) {
		return workflow.NewNotFoundError("decision not found")
	}
	return workflow.NewPersistenceError(op, err)
}
