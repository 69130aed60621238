// Package audit seals and verifies the per-decision hash chain of audit entries.
package audit

import (
	"fmt"
	"slices"
	"time"

	"github.com/davidahmann/proofofchoice/internal/crypto"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

// GenesisHash is the prev_hash of the first entry of every decision.
const GenesisHash = "sha256:0000000000000000000000000000000000000000000000000000000000000000"

// hashedEntry is the part of an entry covered by its hash. Timestamp is kept as a
// string so the value survives storage round trips byte for byte.
type hashedEntry struct {
	ID         string            `json:"id"`
	DecisionID string            `json:"decision_id"`
	Seq        int64             `json:"seq"`
	Action     string            `json:"action"`
	Actor      types.Actor       `json:"actor"`
	Timestamp  string            `json:"ts"`
	IP         string            `json:"ip,omitempty"`
	Details    string            `json:"details,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	PrevHash   string            `json:"prev_hash"`
}

// Seal links entry to prev (nil for the first entry) and fills Seq, PrevHash and Hash.
// The timestamp is normalized to UTC microseconds, the precision every store keeps.
func Seal(entry types.AuditEntry, prev *types.AuditEntry) (types.AuditEntry, error) {
	if !entry.Action.Valid() {
		return types.AuditEntry{}, fmt.Errorf("audit: unknown action %q", entry.Action)
	}
	entry.Seq = 1
	entry.PrevHash = GenesisHash
	if prev != nil {
		if prev.DecisionID != entry.DecisionID {
			return types.AuditEntry{}, fmt.Errorf("audit: previous entry belongs to decision %s", prev.DecisionID)
		}
		entry.Seq = prev.Seq + 1
		entry.PrevHash = prev.Hash
	}
	entry.Timestamp = Normalize(entry.Timestamp)

	hash, err := Hash(entry)
	if err != nil {
		return types.AuditEntry{}, err
	}
	entry.Hash = hash
	return entry, nil
}

// Hash computes the chain hash of entry, ignoring its current Hash field.
func Hash(entry types.AuditEntry) (string, error) {
	view := hashedEntry{
		ID:         entry.ID,
		DecisionID: entry.DecisionID,
		Seq:        entry.Seq,
		Action:     string(entry.Action),
		Actor:      entry.Actor,
		Timestamp:  entry.Timestamp.UTC().Format(time.RFC3339Nano),
		IP:         entry.IP,
		Details:    entry.Details,
		Metadata:   entry.Metadata,
		PrevHash:   entry.PrevHash,
	}
	digest, _, err := crypto.Digest(view)
	if err != nil {
		return "", fmt.Errorf("audit: hash entry: %w", err)
	}
	return digest, nil
}

// Normalize truncates t to the precision stored alongside entries.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// VerifyResult holds the outcome of a chain verification.
type VerifyResult struct {
	Valid    bool   `json:"valid"`
	Entries  int    `json:"entries"`
	Head     string `json:"head,omitempty"`
	Error    string `json:"error,omitempty"`
	ErrorSeq int64  `json:"errorSeq,omitempty"`
}

// Verify checks a decision's entries. Order does not matter; entries are
// walked by Seq and must start at 1 without gaps.
func Verify(entries []types.AuditEntry) VerifyResult {
	ordered := OldestFirst(entries)
	prevHash := GenesisHash
	for i, entry := range ordered {
		want := int64(i + 1)
		if entry.Seq != want {
			return VerifyResult{Error: fmt.Sprintf("sequence gap: expected %d, got %d", want, entry.Seq), ErrorSeq: entry.Seq}
		}
		if i > 0 && entry.DecisionID != ordered[0].DecisionID {
			return VerifyResult{Error: "entries from more than one decision", ErrorSeq: entry.Seq}
		}
		if entry.PrevHash != prevHash {
			return VerifyResult{Error: fmt.Sprintf("prev_hash mismatch: expected %s, got %s", prevHash, entry.PrevHash), ErrorSeq: entry.Seq}
		}
		computed, err := Hash(entry)
		if err != nil {
			return VerifyResult{Error: err.Error(), ErrorSeq: entry.Seq}
		}
		if computed != entry.Hash {
			return VerifyResult{Error: fmt.Sprintf("hash mismatch: expected %s, got %s", computed, entry.Hash), ErrorSeq: entry.Seq}
		}
		prevHash = entry.Hash
	}
	result := VerifyResult{Valid: true, Entries: len(ordered)}
	if len(ordered) > 0 {
		result.Head = prevHash
	}
	return result
}

// OldestFirst returns a copy of entries ordered by Seq ascending.
func OldestFirst(entries []types.AuditEntry) []types.AuditEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b types.AuditEntry) int {
		return compareSeq(a.Seq, b.Seq)
	})
	return out
}

// NewestFirst returns a copy of entries ordered by Seq descending, the order
// entries are listed in.
func NewestFirst(entries []types.AuditEntry) []types.AuditEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b types.AuditEntry) int {
		return compareSeq(b.Seq, a.Seq)
	})
	return out
}

func compareSeq(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
