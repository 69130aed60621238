package decisions

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/davidahmann/proofofchoice/internal/catalog"
	"github.com/davidahmann/proofofchoice/internal/comments"
	"github.com/davidahmann/proofofchoice/internal/ledger"
	"github.com/davidahmann/proofofchoice/internal/signature"
	"github.com/davidahmann/proofofchoice/internal/snapshot"
	"github.com/davidahmann/proofofchoice/internal/workflow"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

const (
	RuleDecisionTitleRequired = "decision_title_required"
	RuleProjectRequired       = "project_required"
	RuleInvalidPhase          = "invalid_phase"
	RuleSignatureImageTooBig  = "signature_image_too_large"

	SummaryDetailsUpdated = "Details updated"

	maxSignatureImageBytes = 512 << 10
)

type CreateInput struct {
	ProjectID   string
	Title       string
	Description string
	Phase       types.ProjectPhase
	Category    string
	DueDate     *time.Time
	Options     []types.DecisionOption
}

// Create stores a new draft at version 1 with its first snapshot.
func (s *Service) Create(ctx context.Context, caller Caller, in CreateInput) (types.Decision, error) {
	ctx, span := s.tracer.Start(ctx, "decision.create", trace.WithAttributes(attribute.String("project.id", in.ProjectID)))
	defer span.End()

	if _, err := s.authorize(caller, workflow.CmdCreate, in.Category); err != nil {
		return types.Decision{}, err
	}
	if strings.TrimSpace(in.ProjectID) == "" {
		return types.Decision{}, workflow.NewValidationError(RuleProjectRequired, "project id is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return types.Decision{}, workflow.NewValidationError(RuleDecisionTitleRequired, "decision title is required")
	}
	if in.Phase != "" && !in.Phase.Valid() {
		return types.Decision{}, workflow.NewValidationError(RuleInvalidPhase, "unknown project phase %q", in.Phase)
	}

	now := s.timestamp()
	d := types.Decision{
		ID:          s.newID(),
		ProjectID:   strings.TrimSpace(in.ProjectID),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      types.StatusDraft,
		Phase:       in.Phase,
		Category:    in.Category,
		CreatedBy:   caller.Actor,
		CreatedAt:   now,
		UpdatedAt:   now,
		DueDate:     normalizeDue(in.DueDate),
		Version:     1,
		Revision:    1,
	}
	for _, opt := range in.Options {
		if opt.ID == "" {
			opt.ID = s.newID()
		}
		if err := catalog.AddOption(&d, opt); err != nil {
			return types.Decision{}, err
		}
	}

	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		if err := tx.InsertDecision(d); err != nil {
			return storeError("insert decision", err)
		}
		m := &mutation{s: s, tx: tx, caller: caller, now: now, d: d}
		if err := tx.PutSnapshot(snapshot.Capture(s.newID(), d, caller.Actor, snapshot.SummaryCreated, now)); err != nil {
			return storeError("capture snapshot", err)
		}
		return m.record(types.ActionCreated, d.Title, map[string]string{
			"project_id":   d.ProjectID,
			"option_count": fmt.Sprint(len(d.Options)),
		})
	})
	if err != nil {
		err = commandError(err)
		span.RecordError(err)
		return types.Decision{}, err
	}

	s.log.Info("decision created", "decision_id", d.ID, "project_id", d.ProjectID, "actor_id", caller.Actor.ID, "options", len(d.Options))
	return d, nil
}

// MetadataPatch carries the fields to change; nil leaves a field as is.
type MetadataPatch struct {
	Title       *string
	Description *string
	Phase       *types.ProjectPhase
	Category    *string
	DueDate     *time.Time
	ClearDue    bool
}

func (s *Service) UpdateMetadata(ctx context.Context, caller Caller, decisionID string, patch MetadataPatch) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdEdit, func(m *mutation) error {
		if _, err := workflow.Next(m.d.Status, workflow.CmdEdit); err != nil {
			return err
		}
		var changed []string
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if title == "" {
				return workflow.NewValidationError(RuleDecisionTitleRequired, "decision title is required")
			}
			if title != m.d.Title {
				m.d.Title = title
				changed = append(changed, "title")
			}
		}
		if patch.Description != nil && *patch.Description != m.d.Description {
			m.d.Description = *patch.Description
			changed = append(changed, "description")
		}
		if patch.Phase != nil && *patch.Phase != m.d.Phase {
			if !patch.Phase.Valid() {
				return workflow.NewValidationError(RuleInvalidPhase, "unknown project phase %q", *patch.Phase)
			}
			m.d.Phase = *patch.Phase
			changed = append(changed, "phase")
		}
		if patch.Category != nil && *patch.Category != m.d.Category {
			m.d.Category = *patch.Category
			changed = append(changed, "category")
		}
		switch {
		case patch.ClearDue && m.d.DueDate != nil:
			m.d.DueDate = nil
			changed = append(changed, "due_date")
		case patch.DueDate != nil:
			m.d.DueDate = normalizeDue(patch.DueDate)
			changed = append(changed, "due_date")
		}
		if len(changed) == 0 {
			return nil
		}

		if err := m.record(types.ActionUpdated, "Details updated: "+strings.Join(changed, ", "), nil); err != nil {
			return err
		}
		return m.bumpVersion(SummaryDetailsUpdated)
	})
}

func (s *Service) AddOption(ctx context.Context, caller Caller, decisionID string, opt types.DecisionOption) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdEdit, func(m *mutation) error {
		if opt.ID == "" {
			opt.ID = s.newID()
		}
		if err := catalog.AddOption(&m.d, opt); err != nil {
			return err
		}
		if err := m.record(types.ActionOptionAdded, "Option added: "+opt.Title, map[string]string{"option_id": opt.ID}); err != nil {
			return err
		}
		return m.bumpVersion(snapshot.SummaryOptionsUpdated)
	})
}

func (s *Service) UpdateOption(ctx context.Context, caller Caller, decisionID string, opt types.DecisionOption) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdEdit, func(m *mutation) error {
		if err := catalog.UpdateOption(&m.d, opt); err != nil {
			return err
		}
		if err := m.record(types.ActionUpdated, "Option updated: "+opt.Title, map[string]string{"option_id": opt.ID}); err != nil {
			return err
		}
		return m.bumpVersion(snapshot.SummaryOptionsUpdated)
	})
}

func (s *Service) RemoveOption(ctx context.Context, caller Caller, decisionID, optionID string) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdEdit, func(m *mutation) error {
		opt, _ := m.d.Option(optionID)
		if err := catalog.RemoveOption(&m.d, optionID); err != nil {
			return err
		}
		if err := m.record(types.ActionUpdated, "Option removed: "+opt.Title, map[string]string{"option_id": optionID}); err != nil {
			return err
		}
		return m.bumpVersion(snapshot.SummaryOptionsUpdated)
	})
}

func (s *Service) Publish(ctx context.Context, caller Caller, decisionID string) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdPublish, func(m *mutation) error {
		next, err := workflow.Next(m.d.Status, workflow.CmdPublish)
		if err != nil {
			return err
		}
		if err := workflow.CheckPublish(m.d); err != nil {
			return err
		}
		m.d.Status = next
		m.dirty = true
		return m.record(types.ActionPublished, "Published to client", nil)
	})
}

// OpenReview hands the decision to the client.
func (s *Service) OpenReview(ctx context.Context, caller Caller, decisionID string) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdOpenReview, func(m *mutation) error {
		next, err := workflow.Next(m.d.Status, workflow.CmdOpenReview)
		if err != nil {
			return err
		}
		if err := workflow.CheckOpenReview(m.d, m.verdict.RequireRecommendation); err != nil {
			return err
		}
		m.d.Status = next
		m.dirty = true
		return m.record(types.ActionUpdated, "Opened for client review", map[string]string{"status": string(next)})
	})
}

func (s *Service) Select(ctx context.Context, caller Caller, decisionID, optionID string) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdSelect, func(m *mutation) error {
		if err := catalog.SelectOption(&m.d, optionID); err != nil {
			return err
		}
		opt, _ := m.d.Option(optionID)
		m.dirty = true
		return m.record(types.ActionUpdated, "Option selected: "+opt.Title, map[string]string{"option_id": optionID})
	})
}

type ApproveInput struct {
	SignerName     string
	SignerEmail    string
	SignatureImage string
}

// Approve signs the selected option, bumps the version and snapshots it.
func (s *Service) Approve(ctx context.Context, caller Caller, decisionID string, in ApproveInput) (types.Decision, types.ESignature, error) {
	var sig types.ESignature
	d, err := s.mutate(ctx, caller, decisionID, workflow.CmdApprove, func(m *mutation) error {
		next, err := workflow.Next(m.d.Status, workflow.CmdApprove)
		if err != nil {
			return err
		}
		if err := workflow.CheckApprove(m.d, in.SignerName); err != nil {
			return err
		}
		if len(in.SignatureImage) > maxSignatureImageBytes {
			return workflow.NewValidationError(RuleSignatureImageTooBig, "signature image exceeds %d bytes", maxSignatureImageBytes)
		}

		m.d.Status = next
		if _, err := m.captureVersion(snapshot.SummaryApproved); err != nil {
			return err
		}
		sig, err = signature.Build(signature.BuildInput{
			ID:             s.newID(),
			Decision:       m.d,
			OptionID:       m.d.SelectedOptionID,
			SignerName:     in.SignerName,
			SignerEmail:    in.SignerEmail,
			SignedAt:       m.now,
			IP:             m.caller.IP,
			SignatureImage: in.SignatureImage,
		}, s.signer)
		if err != nil {
			return workflow.NewPersistenceError("sign approval", err)
		}
		if err := m.tx.PutSignature(sig); err != nil {
			return storeError("store signature", err)
		}

		opt, _ := m.d.Option(sig.OptionID)
		if err := m.record(types.ActionApproved, "Approved: "+opt.Title, map[string]string{
			"option_id": opt.ID,
			"version":   fmt.Sprint(m.d.Version),
		}); err != nil {
			return err
		}
		return m.record(types.ActionSigned, "Signed by "+sig.SignerName, map[string]string{
			"hash":      sig.Hash,
			"key_id":    sig.KeyID,
			"option_id": sig.OptionID,
		})
	})
	if err != nil {
		return types.Decision{}, types.ESignature{}, err
	}
	return d, sig, nil
}

// Reject sends the decision back with the client's requested changes.
func (s *Service) Reject(ctx context.Context, caller Caller, decisionID, reason string) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdReject, func(m *mutation) error {
		next, err := workflow.Next(m.d.Status, workflow.CmdReject)
		if err != nil {
			return err
		}
		if err := workflow.CheckReason(reason); err != nil {
			return err
		}
		m.d.Status = next
		m.dirty = true
		return m.record(types.ActionRejected, strings.TrimSpace(reason), nil)
	})
}

// Revise reopens a rejected decision as a draft and drops the client's pick.
func (s *Service) Revise(ctx context.Context, caller Caller, decisionID string) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdRevise, func(m *mutation) error {
		next, err := workflow.Next(m.d.Status, workflow.CmdRevise)
		if err != nil {
			return err
		}
		m.d.Status = next
		m.d.SelectedOptionID = ""
		m.dirty = true
		return m.record(types.ActionUpdated, "Reopened for revision", map[string]string{"status": string(next)})
	})
}

// Archive closes an approved or rejected decision. Archiving twice is a no-op.
func (s *Service) Archive(ctx context.Context, caller Caller, decisionID string) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdArchive, func(m *mutation) error {
		next, err := workflow.Next(m.d.Status, workflow.CmdArchive)
		if err != nil {
			return err
		}
		if m.d.Status == types.StatusArchived {
			return nil
		}
		prior := m.d.Status
		m.d.Status = next
		m.dirty = true
		return m.record(types.ActionArchived, "Archived", map[string]string{"previous_status": string(prior)})
	})
}

func (s *Service) Escalate(ctx context.Context, caller Caller, decisionID, reason string) (types.Decision, error) {
	return s.mutate(ctx, caller, decisionID, workflow.CmdEscalate, func(m *mutation) error {
		if _, err := workflow.Next(m.d.Status, workflow.CmdEscalate); err != nil {
			return err
		}
		if err := workflow.CheckReason(reason); err != nil {
			return err
		}
		return m.record(types.ActionEscalated, strings.TrimSpace(reason), nil)
	})
}

type CommentInput struct {
	Content     string
	Attachments []types.Attachment
}

func (s *Service) PostComment(ctx context.Context, caller Caller, decisionID string, in CommentInput) (types.Comment, error) {
	return s.comment(ctx, caller, decisionID, types.CommentDiscussion, in)
}

// AskQuestion posts a comment flagged as a client question.
func (s *Service) AskQuestion(ctx context.Context, caller Caller, decisionID string, in CommentInput) (types.Comment, error) {
	return s.comment(ctx, caller, decisionID, types.CommentQuestion, in)
}

func (s *Service) comment(ctx context.Context, caller Caller, decisionID string, kind types.CommentKind, in CommentInput) (types.Comment, error) {
	var posted types.Comment
	_, err := s.mutate(ctx, caller, decisionID, workflow.CmdComment, func(m *mutation) error {
		if _, err := workflow.Next(m.d.Status, workflow.CmdComment); err != nil {
			return err
		}
		c, err := comments.New(comments.NewInput{
			ID:          s.newID(),
			DecisionID:  m.d.ID,
			Author:      m.caller.Actor,
			Kind:        kind,
			Content:     in.Content,
			Attachments: in.Attachments,
			CreatedAt:   m.now,
		})
		if err != nil {
			return err
		}
		if err := m.tx.AppendComment(c); err != nil {
			return storeError("append comment", err)
		}
		md := map[string]string{"comment_id": c.ID, "kind": string(c.Kind)}
		if len(c.Mentions) > 0 {
			md["mentions"] = strings.Join(c.Mentions, ",")
		}
		if err := m.record(types.ActionCommented, excerpt(c.Content), md); err != nil {
			return err
		}
		posted = c
		return nil
	})
	if err != nil {
		return types.Comment{}, err
	}
	return posted, nil
}

func normalizeDue(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	due := t.UTC().Truncate(time.Microsecond)
	return &due
}

func excerpt(s string) string {
	const limit = 140
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
