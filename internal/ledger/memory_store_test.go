package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

func sampleDecision(id, project string) types.Decision {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return types.Decision{
		ID:        id,
		ProjectID: project,
		Title:     "Kitchen countertop",
		Status:    types.StatusDraft,
		Phase:     types.PhaseDesignDevelopment,
		Category:  "finishes",
		Options:   []types.DecisionOption{{ID: "o1", Title: "Quartz", CostImpact: 450000, Pros: []string{"durable"}}},
		CreatedBy: types.Actor{ID: "u1", Name: "Dana", Role: types.RoleDesigner},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
		Revision:  1,
	}
}

func TestInMemoryStore_DecisionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	d := sampleDecision("d1", "p1")
	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertDecision(d); err != nil {
			return err
		}
		if err := tx.PutSnapshot(types.VersionSnapshot{ID: "s1", DecisionID: "d1", Version: 1}); err != nil {
			return err
		}
		return tx.AppendAudit(types.AuditEntry{ID: "a1", DecisionID: "d1", Seq: 1, Action: types.ActionCreated})
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetDecision(ctx, "d1")
	if err != nil || got.Title != d.Title {
		t.Fatalf("get decision mismatch: err=%v got=%+v", err, got)
	}
	got.Options[0].Pros[0] = "mutated"
	again, _ := s.GetDecision(ctx, "d1")
	if again.Options[0].Pros[0] != "durable" {
		t.Fatalf("reads must return copies")
	}

	updated := again
	updated.Title = "Kitchen countertop v2"
	updated.Revision = 2
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.UpdateDecision(updated, 1) }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.UpdateDecision(updated, 1) }); !errors.Is(err, ErrRevisionConflict) {
		t.Fatalf("expected revision conflict, got %v", err)
	}

	if _, err := s.GetDecision(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInMemoryStore_RollbackDiscardsEverything(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertDecision(sampleDecision("d1", "p1")); err != nil {
			return err
		}
		if err := tx.AppendAudit(types.AuditEntry{ID: "a1", DecisionID: "d1", Seq: 1, Action: types.ActionCreated}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := s.GetDecision(ctx, "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("decision should not exist after rollback")
	}
	if entries, _ := s.ListAudit(ctx, "d1"); len(entries) != 0 {
		t.Fatalf("audit should be empty after rollback")
	}
}

func TestInMemoryStore_TxReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.InsertDecision(sampleDecision("d1", "p1")); err != nil {
			return err
		}
		if _, err := tx.GetDecision("d1"); err != nil {
			return err
		}
		if err := tx.AppendAudit(types.AuditEntry{ID: "a1", DecisionID: "d1", Seq: 1, Hash: "h1"}); err != nil {
			return err
		}
		last, ok, err := tx.LastAudit("d1")
		if err != nil || !ok || last.Hash != "h1" {
			t.Fatalf("last audit mismatch: ok=%v err=%v last=%+v", ok, err, last)
		}
		if err := tx.AppendAudit(types.AuditEntry{ID: "a2", DecisionID: "d1", Seq: 1}); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected duplicate seq, got %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestInMemoryStore_UniqueSnapshotsAndSignature(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_ = s.WithTx(ctx, func(tx Tx) error { return tx.InsertDecision(sampleDecision("d1", "p1")) })

	err := s.WithTx(ctx, func(tx Tx) error {
		if err := tx.PutSnapshot(types.VersionSnapshot{ID: "s1", DecisionID: "d1", Version: 1}); err != nil {
			return err
		}
		return tx.PutSnapshot(types.VersionSnapshot{ID: "s2", DecisionID: "d1", Version: 1})
	})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate snapshot, got %v", err)
	}

	sig := types.ESignature{ID: "sig1", DecisionID: "d1", OptionID: "o1", Sig: []byte{1, 2}}
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.PutSignature(sig) }); err != nil {
		t.Fatalf("put signature: %v", err)
	}
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.PutSignature(sig) }); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate signature, got %v", err)
	}
	got, err := s.GetSignature(ctx, "d1")
	if err != nil || got.ID != "sig1" {
		t.Fatalf("get signature mismatch: err=%v got=%+v", err, got)
	}
}

func TestInMemoryStore_ListDecisionsAndComments(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	for _, d := range []types.Decision{sampleDecision("d1", "p1"), sampleDecision("d2", "p2"), sampleDecision("d3", "p1")} {
		if err := s.WithTx(ctx, func(tx Tx) error { return tx.InsertDecision(d) }); err != nil {
			t.Fatalf("insert %s: %v", d.ID, err)
		}
	}

	list, _ := s.ListDecisions(ctx, "p1")
	if len(list) != 2 || list[0].ID != "d3" || list[1].ID != "d1" {
		t.Fatalf("unexpected project listing: %+v", list)
	}
	if all, _ := s.ListDecisions(ctx, ""); len(all) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(all))
	}

	err := s.WithTx(ctx, func(tx Tx) error {
		return tx.AppendComment(types.Comment{ID: "c1", DecisionID: "d1", Content: "hello", Mentions: []string{"Dana"}})
	})
	if err != nil {
		t.Fatalf("append comment: %v", err)
	}
	comments, _ := s.ListComments(ctx, "d1")
	if len(comments) != 1 || comments[0].Content != "hello" {
		t.Fatalf("unexpected comments: %+v", comments)
	}
	if err := s.WithTx(ctx, func(tx Tx) error { return tx.AppendComment(types.Comment{ID: "c2", DecisionID: "nope"}) }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown decision, got %v", err)
	}
}

func TestInMemoryStore_KeysAndIdempotency(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	if err := s.PutKey(ctx, KeyRecord{KeyID: "kid", PublicKey: []byte("pub"), CreatedAt: "now"}); err != nil {
		t.Fatalf("put key: %v", err)
	}
	if got, ok := s.GetKey(ctx, "kid"); !ok || string(got.PublicKey) != "pub" {
		t.Fatalf("get key mismatch: ok=%v got=%+v", ok, got)
	}

	rec := IdempotencyRecord{Key: "k1", Method: "POST", Path: "/v1/decisions/d1/approve", StatusCode: 200, ResponseJSON: []byte(`{}`)}
	if err := s.PutIdempotencyKey(ctx, rec); err != nil {
		t.Fatalf("put idem: %v", err)
	}
	if err := s.PutIdempotencyKey(ctx, rec); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate idem key, got %v", err)
	}
	if got, ok := s.GetIdempotencyKey(ctx, "k1"); !ok || got.StatusCode != 200 {
		t.Fatalf("get idem mismatch: ok=%v got=%+v", ok, got)
	}
}

func TestInMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewInMemoryStore()
	called := false
	err := s.WithTx(ctx, func(tx Tx) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Fatalf("expected cancelled context to short-circuit")
	}
}
