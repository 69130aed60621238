// Package decisions is the command boundary of the decision workflow. Every
// command runs in one store transaction covering the decision write, its audit
// entries and any snapshot or signature, so side effects land together or not at all.
package decisions

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidahmann/proofofchoice/internal/audit"
	"github.com/davidahmann/proofofchoice/internal/crypto"
	"github.com/davidahmann/proofofchoice/internal/ledger"
	"github.com/davidahmann/proofofchoice/internal/platform/logger"
	"github.com/davidahmann/proofofchoice/internal/policy"
	"github.com/davidahmann/proofofchoice/internal/snapshot"
	"github.com/davidahmann/proofofchoice/internal/workflow"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

const tracerName = "github.com/davidahmann/proofofchoice/internal/decisions"

// Caller identifies who issued a command and from where.
type Caller struct {
	Actor types.Actor
	IP    string
}

type Service struct {
	store     ledger.Store
	signer    crypto.Signer
	publicKey ed25519.PublicKey
	policy    policy.LoadedPolicy
	log       *logger.Logger
	now       func() time.Time
	newID     func() string
	locks     *keyedMutex
	tracer    trace.Tracer
}

type NewServiceInput struct {
	Store     ledger.Store
	Signer    crypto.Signer
	PublicKey ed25519.PublicKey
	// Policy defaults to the embedded workflow policy.
	Policy *policy.LoadedPolicy
	Log    *logger.Logger
	Now    func() time.Time
	NewID  func() string
}

func NewService(in NewServiceInput) (*Service, error) {
	if in.Store == nil {
		return nil, errors.New("decisions: missing store")
	}
	if in.Signer == nil {
		return nil, errors.New("decisions: missing signer")
	}
	if len(in.PublicKey) != ed25519.PublicKeySize {
		return nil, errors.New("decisions: missing or invalid public key")
	}

	s := &Service{
		store:     in.Store,
		signer:    in.Signer,
		publicKey: in.PublicKey,
		log:       in.Log,
		now:       in.Now,
		newID:     in.NewID,
		locks:     newKeyedMutex(),
		tracer:    otel.Tracer(tracerName),
	}
	if in.Policy != nil {
		s.policy = *in.Policy
	} else {
		s.policy = policy.Default()
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// PolicyHash identifies the workflow policy stamped into audit metadata.
func (s *Service) PolicyHash() string {
	return s.policy.Hash
}

func (s *Service) KeyID() string {
	return s.signer.KeyID()
}

func (s *Service) timestamp() time.Time {
	return audit.Normalize(s.now())
}

// authorize checks the workflow policy for the caller's role.
func (s *Service) authorize(caller Caller, cmd workflow.Command, category string) (policy.Decision, error) {
	verdict := s.policy.Evaluate(policy.Input{Command: cmd, Role: caller.Actor.Role, Category: category})
	if !verdict.Allowed {
		reason := verdict.Reason
		if reason == "" {
			reason = "not permitted by workflow policy"
		}
		return verdict, workflow.NewForbiddenError("role %q may not %s: %s", caller.Actor.Role, cmd, reason)
	}
	return verdict, nil
}

// mutation is the working state of one command inside its transaction.
type mutation struct {
	s       *Service
	tx      ledger.Tx
	caller  Caller
	verdict policy.Decision
	now     time.Time

	d       types.Decision
	dirty   bool
	prev    *types.AuditEntry
	actions []types.AuditAction
}

// record appends a sealed audit entry chained to the previous one.
func (m *mutation) record(action types.AuditAction, details string, metadata map[string]string) error {
	if m.prev == nil {
		last, ok, err := m.tx.LastAudit(m.d.ID)
		if err != nil {
			return storeError("read audit head", err)
		}
		if ok {
			m.prev = &last
		}
	}

	md := maps.Clone(metadata)
	if md == nil {
		md = map[string]string{}
	}
	if m.s.policy.Hash != "" {
		md["policy_hash"] = m.s.policy.Hash
	}

	entry, err := audit.Seal(types.AuditEntry{
		ID:         m.s.newID(),
		DecisionID: m.d.ID,
		Action:     action,
		Actor:      m.caller.Actor,
		Timestamp:  m.now,
		IP:         m.caller.IP,
		Details:    details,
		Metadata:   md,
	}, m.prev)
	if err != nil {
		return workflow.NewPersistenceError("seal audit entry", err)
	}
	if err := m.tx.AppendAudit(entry); err != nil {
		return storeError("append audit entry", err)
	}
	m.prev = &entry
	m.actions = append(m.actions, action)
	return nil
}

// captureVersion increments the version and stores its snapshot.
func (m *mutation) captureVersion(summary string) (types.VersionSnapshot, error) {
	m.d.Version++
	m.dirty = true
	snap := snapshot.Capture(m.s.newID(), m.d, m.caller.Actor, summary, m.now)
	if err := m.tx.PutSnapshot(snap); err != nil {
		return types.VersionSnapshot{}, storeError("capture snapshot", err)
	}
	return snap, nil
}

// bumpVersion is captureVersion followed by a version_created entry.
func (m *mutation) bumpVersion(summary string) error {
	snap, err := m.captureVersion(summary)
	if err != nil {
		return err
	}
	return m.record(types.ActionVersionCreated, fmt.Sprintf("Version %d: %s", snap.Version, snap.ChangesSummary), map[string]string{
		"version": fmt.Sprint(snap.Version),
	})
}

// mutate runs fn against decisionID under the per-decision lock and one transaction.
func (s *Service) mutate(ctx context.Context, caller Caller, decisionID string, cmd workflow.Command, fn func(m *mutation) error) (types.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "decision."+string(cmd), trace.WithAttributes(
		attribute.String("decision.id", decisionID),
		attribute.String("actor.role", string(caller.Actor.Role)),
	))
	defer span.End()

	unlock := s.locks.Lock(decisionID)
	defer unlock()

	var result types.Decision
	var recorded []types.AuditAction
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		current, err := tx.GetDecision(decisionID)
		if err != nil {
			return storeError("load decision", err)
		}
		verdict, err := s.authorize(caller, cmd, current.Category)
		if err != nil {
			return err
		}

		m := &mutation{s: s, tx: tx, caller: caller, verdict: verdict, now: s.timestamp(), d: current.Clone()}
		if err := fn(m); err != nil {
			return err
		}
		if m.dirty {
			m.d.Revision = current.Revision + 1
			m.d.UpdatedAt = m.now
			if err := tx.UpdateDecision(m.d, current.Revision); err != nil {
				return storeError("update decision", err)
			}
		}
		result = m.d
		recorded = m.actions
		return nil
	})
	if err != nil {
		err = commandError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(workflow.KindOf(err)))
		s.log.Warn("decision command rejected",
			"decision_id", decisionID,
			"command", string(cmd),
			"actor_id", caller.Actor.ID,
			"kind", string(workflow.KindOf(err)),
			"rule", workflow.RuleOf(err),
			"error", err.Error(),
		)
		return types.Decision{}, err
	}

	span.SetAttributes(attribute.String("decision.status", string(result.Status)), attribute.Int("decision.version", result.Version))
	if len(recorded) > 0 {
		s.log.Info("decision command committed",
			"decision_id", decisionID,
			"command", string(cmd),
			"actor_id", caller.Actor.ID,
			"status", string(result.Status),
			"version", result.Version,
			"audit", recorded,
		)
	}
	return result, nil
}

// storeError maps ledger failures onto workflow errors.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ledger.ErrNotFound):
		return workflow.NewNotFoundError("decision not found")
	case errors.Is(err, ledger.ErrRevisionConflict), errors.Is(err, ledger.ErrDuplicate):
		return workflow.NewConflictError("%s: decision was modified concurrently, reload and retry", op)
	default:
		return workflow.NewPersistenceError(op, err)
	}
}

// commandError makes sure every failure leaving the service is a *workflow.Error.
func commandError(err error) error {
	var we *workflow.Error
	if errors.As(err, &we) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return workflow.NewPersistenceError("transaction", err)
	}
	return workflow.NewPersistenceError("commit", err)
}
