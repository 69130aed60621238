package ledger

import (
	"context"
	"errors"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

var (
	ErrNotFound         = errors.New("ledger: not found")
	ErrDuplicate        = errors.New("ledger: duplicate record")
	ErrRevisionConflict = errors.New("ledger: revision conflict")
)

// Reader exposes committed state. Returned values are copies.
type Reader interface {
	GetDecision(ctx context.Context, decisionID string) (types.Decision, error)
	ListDecisions(ctx context.Context, projectID string) ([]types.Decision, error)

	// ListAudit returns entries ordered by Seq ascending.
	ListAudit(ctx context.Context, decisionID string) ([]types.AuditEntry, error)
	// ListSnapshots returns snapshots ordered by Version ascending.
	ListSnapshots(ctx context.Context, decisionID string) ([]types.VersionSnapshot, error)
	// ListComments returns comments in append order.
	ListComments(ctx context.Context, decisionID string) ([]types.Comment, error)
	GetSignature(ctx context.Context, decisionID string) (types.ESignature, error)
}

type Store interface {
	Reader

	// WithTx runs fn in one transaction. A non-nil error from fn discards every write.
	WithTx(ctx context.Context, fn func(Tx) error) error

	PutKey(ctx context.Context, key KeyRecord) error
	GetKey(ctx context.Context, keyID string) (KeyRecord, bool)

	PutIdempotencyKey(ctx context.Context, rec IdempotencyRecord) error
	GetIdempotencyKey(ctx context.Context, key string) (IdempotencyRecord, bool)
}

type Tx interface {
	GetDecision(decisionID string) (types.Decision, error)
	InsertDecision(d types.Decision) error
	// UpdateDecision writes d only when the stored revision equals expectedRevision.
	UpdateDecision(d types.Decision, expectedRevision int64) error

	LastAudit(decisionID string) (types.AuditEntry, bool, error)
	AppendAudit(entry types.AuditEntry) error

	PutSnapshot(s types.VersionSnapshot) error
	AppendComment(c types.Comment) error
	PutSignature(sig types.ESignature) error
}

type KeyRecord struct {
	KeyID     string
	PublicKey []byte
	CreatedAt string
	RotatedAt *string
}

// IdempotencyRecord remembers the response of a completed command so a retry
// carrying the same key replays it.
type IdempotencyRecord struct {
	Key          string
	ActorID      string
	Method       string
	Path         string
	RequestHash  string
	StatusCode   int
	ResponseJSON []byte
	CreatedAt    string
}
