package ledger

import (
	"encoding/json"
	"time"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

// TimeFormat is fixed width so stored timestamps sort lexically.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// EncodeDecision serializes d without its comment thread, which is stored on its own.
func EncodeDecision(d types.Decision) ([]byte, error) {
	d.Comments = nil
	return json.Marshal(d)
}

func DecodeDecision(body []byte) (types.Decision, error) {
	var d types.Decision
	if err := json.Unmarshal(body, &d); err != nil {
		return types.Decision{}, err
	}
	return d, nil
}

func DecodeAudit(body []byte) (types.AuditEntry, error) {
	var e types.AuditEntry
	err := json.Unmarshal(body, &e)
	return e, err
}

func DecodeSnapshot(body []byte) (types.VersionSnapshot, error) {
	var s types.VersionSnapshot
	err := json.Unmarshal(body, &s)
	return s, err
}

func DecodeComment(body []byte) (types.Comment, error) {
	var c types.Comment
	err := json.Unmarshal(body, &c)
	return c, err
}

func DecodeSignature(body []byte) (types.ESignature, error) {
	var s types.ESignature
	err := json.Unmarshal(body, &s)
	return s, err
}
