package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/lib/pq"

	"github.com/davidahmann/proofofchoice/internal/ledger"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	wrapped := &Tx{tx: tx}
	if err := fn(wrapped); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) PutKey(ctx context.Context, key ledger.KeyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proof_keys(key_id, public_key, created_at, rotated_at)
VALUES($1,$2,$3::timestamptz,$4::timestamptz)
ON CONFLICT(key_id) DO UPDATE SET rotated_at=EXCLUDED.rotated_at`,
		key.KeyID,
		key.PublicKey,
		key.CreatedAt,
		key.RotatedAt,
	)
	return err
}

func (s *Store) GetKey(ctx context.Context, keyID string) (ledger.KeyRecord, bool) {
	var rec ledger.KeyRecord
	var rotated *string
	row := s.db.QueryRowContext(ctx, `SELECT key_id, public_key, created_at::text, rotated_at::text FROM proof_keys WHERE key_id = $1`, keyID)
	if err := row.Scan(&rec.KeyID, &rec.PublicKey, &rec.CreatedAt, &rotated); err != nil {
		return ledger.KeyRecord{}, false
	}
	rec.RotatedAt = rotated
	return rec, true
}

func (s *Store) PutIdempotencyKey(ctx context.Context, rec ledger.IdempotencyRecord) error {
	if !json.Valid(rec.ResponseJSON) {
		return errors.New("invalid response_json")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO proof_idempotency_keys(idem_key, actor_id, method, path, request_hash, status_code, response_json, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7::jsonb,$8::timestamptz)
ON CONFLICT(idem_key) DO NOTHING`,
		rec.Key, rec.ActorID, rec.Method, rec.Path, rec.RequestHash, rec.StatusCode, string(rec.ResponseJSON), rec.CreatedAt,
	)
	return insertedOrDuplicate(res, err)
}

func (s *Store) GetIdempotencyKey(ctx context.Context, key string) (ledger.IdempotencyRecord, bool) {
	var rec ledger.IdempotencyRecord
	var body string
	row := s.db.QueryRowContext(ctx, `SELECT idem_key, actor_id, method, path, request_hash, status_code, response_json::text, created_at::text
FROM proof_idempotency_keys WHERE idem_key = $1`, key)
	if err := row.Scan(&rec.Key, &rec.ActorID, &rec.Method, &rec.Path, &rec.RequestHash, &rec.StatusCode, &body, &rec.CreatedAt); err != nil {
		return ledger.IdempotencyRecord{}, false
	}
	rec.ResponseJSON = []byte(body)
	return rec, true
}

func (s *Store) GetDecision(ctx context.Context, decisionID string) (types.Decision, error) {
	return getDecision(s.db.QueryRowContext(ctx, `SELECT body_json::text FROM proof_decisions WHERE decision_id = $1`, decisionID))
}

func (s *Store) ListDecisions(ctx context.Context, projectID string) ([]types.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body_json::text FROM proof_decisions
WHERE ($1 = '' OR project_id = $1)
ORDER BY created_at DESC, decision_id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	return scanBodies(rows, ledger.DecodeDecision)
}

func (s *Store) ListAudit(ctx context.Context, decisionID string) ([]types.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body_json::text FROM proof_audit_entries WHERE decision_id = $1 ORDER BY seq ASC`, decisionID)
	if err != nil {
		return nil, err
	}
	return scanBodies(rows, ledger.DecodeAudit)
}

func (s *Store) ListSnapshots(ctx context.Context, decisionID string) ([]types.VersionSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body_json::text FROM proof_version_snapshots WHERE decision_id = $1 ORDER BY version ASC`, decisionID)
	if err != nil {
		return nil, err
	}
	return scanBodies(rows, ledger.DecodeSnapshot)
}

func (s *Store) ListComments(ctx context.Context, decisionID string) ([]types.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body_json::text FROM proof_comments WHERE decision_id = $1 ORDER BY seq ASC`, decisionID)
	if err != nil {
		return nil, err
	}
	return scanBodies(rows, ledger.DecodeComment)
}

func (s *Store) GetSignature(ctx context.Context, decisionID string) (types.ESignature, error) {
	var body string
	row := s.db.QueryRowContext(ctx, `SELECT body_json::text FROM proof_signatures WHERE decision_id = $1`, decisionID)
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ESignature{}, ledger.ErrNotFound
		}
		return types.ESignature{}, err
	}
	return ledger.DecodeSignature([]byte(body))
}

type Tx struct {
	tx *sql.Tx
}

// GetDecision locks the row for the rest of the transaction.
func (t *Tx) GetDecision(decisionID string) (types.Decision, error) {
	return getDecision(t.tx.QueryRow(`SELECT body_json::text FROM proof_decisions WHERE decision_id = $1 FOR UPDATE`, decisionID))
}

func (t *Tx) InsertDecision(d types.Decision) error {
	body, err := ledger.EncodeDecision(d)
	if err != nil {
		return err
	}
	res, err := t.tx.Exec(`INSERT INTO proof_decisions(decision_id, project_id, status, version, revision, created_at, updated_at, body_json)
VALUES($1,$2,$3,$4,$5,$6,$7,$8::jsonb)
ON CONFLICT(decision_id) DO NOTHING`,
		d.ID, d.ProjectID, string(d.Status), d.Version, d.Revision, d.CreatedAt.UTC(), d.UpdatedAt.UTC(), string(body),
	)
	return insertedOrDuplicate(res, err)
}

func (t *Tx) UpdateDecision(d types.Decision, expectedRevision int64) error {
	body, err := ledger.EncodeDecision(d)
	if err != nil {
		return err
	}
	res, err := t.tx.Exec(`UPDATE proof_decisions
SET project_id=$1, status=$2, version=$3, revision=$4, updated_at=$5, body_json=$6::jsonb
WHERE decision_id=$7 AND revision=$8`,
		d.ProjectID, string(d.Status), d.Version, d.Revision, d.UpdatedAt.UTC(), string(body),
		d.ID, expectedRevision,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists int
	if err := t.tx.QueryRow(`SELECT 1 FROM proof_decisions WHERE decision_id = $1`, d.ID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.ErrNotFound
		}
		return err
	}
	return ledger.ErrRevisionConflict
}

func (t *Tx) LastAudit(decisionID string) (types.AuditEntry, bool, error) {
	var body string
	row := t.tx.QueryRow(`SELECT body_json::text FROM proof_audit_entries WHERE decision_id = $1 ORDER BY seq DESC LIMIT 1`, decisionID)
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.AuditEntry{}, false, nil
		}
		return types.AuditEntry{}, false, err
	}
	entry, err := ledger.DecodeAudit([]byte(body))
	if err != nil {
		return types.AuditEntry{}, false, err
	}
	return entry, true, nil
}

func (t *Tx) AppendAudit(entry types.AuditEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	res, err := t.tx.Exec(`INSERT INTO proof_audit_entries(entry_id, decision_id, seq, action, ts, prev_hash, hash, body_json)
VALUES($1,$2,$3,$4,$5,$6,$7,$8::jsonb)
ON CONFLICT DO NOTHING`,
		entry.ID, entry.DecisionID, entry.Seq, string(entry.Action), entry.Timestamp.UTC(), entry.PrevHash, entry.Hash, string(body),
	)
	return insertedOrDuplicate(res, err)
}

func (t *Tx) PutSnapshot(snap types.VersionSnapshot) error {
	body, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	res, err := t.tx.Exec(`INSERT INTO proof_version_snapshots(snapshot_id, decision_id, version, created_at, body_json)
VALUES($1,$2,$3,$4,$5::jsonb)
ON CONFLICT DO NOTHING`,
		snap.ID, snap.DecisionID, snap.Version, snap.CreatedAt.UTC(), string(body),
	)
	return insertedOrDuplicate(res, err)
}

func (t *Tx) AppendComment(c types.Comment) error {
	body, err := json.Marshal(c)
	if err != nil {
		return err
	}
	res, err := t.tx.Exec(`INSERT INTO proof_comments(comment_id, decision_id, created_at, body_json)
VALUES($1,$2,$3,$4::jsonb)
ON CONFLICT(comment_id) DO NOTHING`,
		c.ID, c.DecisionID, c.CreatedAt.UTC(), string(body),
	)
	return insertedOrDuplicate(res, err)
}

func (t *Tx) PutSignature(sig types.ESignature) error {
	body, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	res, err := t.tx.Exec(`INSERT INTO proof_signatures(signature_id, decision_id, option_id, version, hash, key_id, signed_at, body_json)
VALUES($1,$2,$3,$4,$5,$6,$7,$8::jsonb)
ON CONFLICT DO NOTHING`,
		sig.ID, sig.DecisionID, sig.OptionID, sig.Version, sig.Hash, sig.KeyID, sig.SignedAt.UTC(), string(body),
	)
	return insertedOrDuplicate(res, err)
}

func getDecision(row *sql.Row) (types.Decision, error) {
	var body string
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Decision{}, ledger.ErrNotFound
		}
		return types.Decision{}, err
	}
	return ledger.DecodeDecision([]byte(body))
}

func scanBodies[T any](rows *sql.Rows, decode func([]byte) (T, error)) ([]T, error) {
	defer rows.Close()
	out := []T{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		v, err := decode([]byte(body))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func insertedOrDuplicate(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ledger.ErrDuplicate
	}
	return nil
}
