package ledger

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

type InMemoryStore struct {
	mu sync.RWMutex

	keys       map[string]KeyRecord
	idemKeys   map[string]IdempotencyRecord
	decisions  map[string]types.Decision
	order      []string
	audit      map[string][]types.AuditEntry
	snapshots  map[string][]types.VersionSnapshot
	comments   map[string][]types.Comment
	signatures map[string]types.ESignature
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		keys:       make(map[string]KeyRecord),
		idemKeys:   make(map[string]IdempotencyRecord),
		decisions:  make(map[string]types.Decision),
		audit:      make(map[string][]types.AuditEntry),
		snapshots:  make(map[string][]types.VersionSnapshot),
		comments:   make(map[string][]types.Comment),
		signatures: make(map[string]types.ESignature),
	}
}

// WithTx stages every write in a memTx and applies them only when fn succeeds.
func (s *InMemoryStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:      s,
		decisions:  make(map[string]types.Decision),
		signatures: make(map[string]types.ESignature),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *InMemoryStore) PutKey(_ context.Context, key KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.KeyID] = key
	return nil
}

func (s *InMemoryStore) GetKey(_ context.Context, keyID string) (KeyRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[keyID]
	return key, ok
}

func (s *InMemoryStore) PutIdempotencyKey(_ context.Context, rec IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.idemKeys[rec.Key]; ok {
		return ErrDuplicate
	}
	rec.ResponseJSON = slices.Clone(rec.ResponseJSON)
	s.idemKeys[rec.Key] = rec
	return nil
}

func (s *InMemoryStore) GetIdempotencyKey(_ context.Context, key string) (IdempotencyRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.idemKeys[key]
	rec.ResponseJSON = slices.Clone(rec.ResponseJSON)
	return rec, ok
}

func (s *InMemoryStore) GetDecision(_ context.Context, decisionID string) (types.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[decisionID]
	if !ok {
		return types.Decision{}, ErrNotFound
	}
	return d.Clone(), nil
}

// ListDecisions returns decisions newest-first. An empty projectID lists all projects.
func (s *InMemoryStore) ListDecisions(_ context.Context, projectID string) ([]types.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []types.Decision{}
	for i := len(s.order) - 1; i >= 0; i-- {
		d := s.decisions[s.order[i]]
		if projectID != "" && d.ProjectID != projectID {
			continue
		}
		out = append(out, d.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) ListAudit(_ context.Context, decisionID string) ([]types.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.audit[decisionID]
	out := make([]types.AuditEntry, len(entries))
	for i, e := range entries {
		out[i] = cloneAudit(e)
	}
	return out, nil
}

func (s *InMemoryStore) ListSnapshots(_ context.Context, decisionID string) ([]types.VersionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.snapshots[decisionID])
	if out == nil {
		out = []types.VersionSnapshot{}
	}
	return out, nil
}

func (s *InMemoryStore) ListComments(_ context.Context, decisionID string) ([]types.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	comments := s.comments[decisionID]
	out := make([]types.Comment, len(comments))
	for i, c := range comments {
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *InMemoryStore) GetSignature(_ context.Context, decisionID string) (types.ESignature, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signatures[decisionID]
	if !ok {
		return types.ESignature{}, ErrNotFound
	}
	sig.Sig = slices.Clone(sig.Sig)
	return sig, nil
}

// memTx reads through its staged writes to the store. The store lock is held
// by WithTx for the lifetime of the transaction.
type memTx struct {
	store *InMemoryStore

	decisions  map[string]types.Decision
	created    []string
	audit      []types.AuditEntry
	snapshots  []types.VersionSnapshot
	comments   []types.Comment
	signatures map[string]types.ESignature
}

func (t *memTx) lookup(decisionID string) (types.Decision, bool) {
	if d, ok := t.decisions[decisionID]; ok {
		return d, true
	}
	d, ok := t.store.decisions[decisionID]
	return d, ok
}

func (t *memTx) GetDecision(decisionID string) (types.Decision, error) {
	d, ok := t.lookup(decisionID)
	if !ok {
		return types.Decision{}, ErrNotFound
	}
	return d.Clone(), nil
}

func (t *memTx) InsertDecision(d types.Decision) error {
	if _, ok := t.lookup(d.ID); ok {
		return ErrDuplicate
	}
	t.decisions[d.ID] = stripComments(d)
	t.created = append(t.created, d.ID)
	return nil
}

func (t *memTx) UpdateDecision(d types.Decision, expectedRevision int64) error {
	current, ok := t.lookup(d.ID)
	if !ok {
		return ErrNotFound
	}
	if current.Revision != expectedRevision {
		return ErrRevisionConflict
	}
	t.decisions[d.ID] = stripComments(d)
	return nil
}

func (t *memTx) LastAudit(decisionID string) (types.AuditEntry, bool, error) {
	for i := len(t.audit) - 1; i >= 0; i-- {
		if t.audit[i].DecisionID == decisionID {
			return cloneAudit(t.audit[i]), true, nil
		}
	}
	entries := t.store.audit[decisionID]
	if len(entries) == 0 {
		return types.AuditEntry{}, false, nil
	}
	return cloneAudit(entries[len(entries)-1]), true, nil
}

func (t *memTx) AppendAudit(entry types.AuditEntry) error {
	if _, ok := t.lookup(entry.DecisionID); !ok {
		return ErrNotFound
	}
	last, ok, _ := t.LastAudit(entry.DecisionID)
	if ok && entry.Seq <= last.Seq {
		return ErrDuplicate
	}
	t.audit = append(t.audit, cloneAudit(entry))
	return nil
}

func (t *memTx) PutSnapshot(s types.VersionSnapshot) error {
	if _, ok := t.lookup(s.DecisionID); !ok {
		return ErrNotFound
	}
	isDup := func(existing types.VersionSnapshot) bool {
		return existing.DecisionID == s.DecisionID && existing.Version == s.Version
	}
	if slices.ContainsFunc(t.store.snapshots[s.DecisionID], isDup) || slices.ContainsFunc(t.snapshots, isDup) {
		return ErrDuplicate
	}
	t.snapshots = append(t.snapshots, s)
	return nil
}

func (t *memTx) AppendComment(c types.Comment) error {
	if _, ok := t.lookup(c.DecisionID); !ok {
		return ErrNotFound
	}
	t.comments = append(t.comments, c.Clone())
	return nil
}

func (t *memTx) PutSignature(sig types.ESignature) error {
	if _, ok := t.lookup(sig.DecisionID); !ok {
		return ErrNotFound
	}
	if _, ok := t.store.signatures[sig.DecisionID]; ok {
		return ErrDuplicate
	}
	if _, ok := t.signatures[sig.DecisionID]; ok {
		return ErrDuplicate
	}
	sig.Sig = slices.Clone(sig.Sig)
	t.signatures[sig.DecisionID] = sig
	return nil
}

func (t *memTx) commit() {
	s := t.store
	maps.Copy(s.decisions, t.decisions)
	s.order = append(s.order, t.created...)
	for _, e := range t.audit {
		s.audit[e.DecisionID] = append(s.audit[e.DecisionID], e)
	}
	for _, snap := range t.snapshots {
		s.snapshots[snap.DecisionID] = append(s.snapshots[snap.DecisionID], snap)
	}
	for _, c := range t.comments {
		s.comments[c.DecisionID] = append(s.comments[c.DecisionID], c)
	}
	maps.Copy(s.signatures, t.signatures)
}

func stripComments(d types.Decision) types.Decision {
	d = d.Clone()
	d.Comments = nil
	return d
}

func cloneAudit(e types.AuditEntry) types.AuditEntry {
	e.Metadata = maps.Clone(e.Metadata)
	return e
}
