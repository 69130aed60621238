package pack

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/proofofchoice/internal/crypto"
	"github.com/davidahmann/proofofchoice/internal/decisions"
)

const ManifestSchema = "proofofchoice.pack.v1"

type Input struct {
	Proof     decisions.Proof
	Policy    []byte
	CreatedAt string
}

type Manifest struct {
	Schema        string            `json:"schema"`
	DecisionID    string            `json:"decision_id"`
	ProjectID     string            `json:"project_id"`
	Version       int               `json:"version"`
	Status        string            `json:"status"`
	ChainHead     string            `json:"chain_head,omitempty"`
	AuditEntries  int               `json:"audit_entries"`
	SignatureHash string            `json:"signature_hash,omitempty"`
	KeyID         string            `json:"key_id,omitempty"`
	PolicyHash    string            `json:"policy_hash"`
	Grade         string            `json:"grade"`
	CreatedAt     string            `json:"created_at"`
	Files         map[string]string `json:"files"`
}

// BuildFiles renders every artifact of the proof pack, keyed by file name.
func BuildFiles(in Input, baseURL string) (map[string][]byte, error) {
	if len(in.Policy) == 0 {
		return nil, errors.New("policy bytes are required")
	}
	if in.Proof.Decision.ID == "" {
		return nil, errors.New("decision is required")
	}
	if in.CreatedAt == "" {
		in.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}

	d := in.Proof.Decision
	d.Comments = nil

	files := map[string][]byte{"policy.yaml": in.Policy}
	artifacts := map[string]any{
		"decision.json": d,
		"options.json":  d.Options,
		"audit.json":    in.Proof.Audit,
		"versions.json": in.Proof.Versions,
		"comments.json": in.Proof.Comments,
		"chain.json":    in.Proof.Chain,
	}
	if in.Proof.Signature != nil {
		artifacts["signature.json"] = in.Proof.Signature
	}
	for name, v := range artifacts {
		raw, err := marshalIndent(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		files[name] = raw
	}

	summary, html, err := BuildSummary(in, baseURL)
	if err != nil {
		return nil, err
	}
	summaryJSON, err := marshalIndent(summary)
	if err != nil {
		return nil, err
	}
	files["summary.json"] = summaryJSON
	files["summary.html"] = html

	manifest := Manifest{
		Schema:       ManifestSchema,
		DecisionID:   d.ID,
		ProjectID:    d.ProjectID,
		Version:      d.Version,
		Status:       string(d.Status),
		ChainHead:    in.Proof.Chain.Head,
		AuditEntries: len(in.Proof.Audit),
		PolicyHash:   crypto.DigestWithPrefix(in.Policy),
		Grade:        summary.Grade,
		CreatedAt:    in.CreatedAt,
		Files:        map[string]string{},
	}
	if sig := in.Proof.Signature; sig != nil {
		manifest.SignatureHash = sig.Hash
		manifest.KeyID = sig.KeyID
	}
	for name, data := range files {
		manifest.Files[name] = crypto.DigestWithPrefix(data)
	}
	manifestJSON, err := marshalIndent(manifest)
	if err != nil {
		return nil, err
	}
	files["manifest.json"] = manifestJSON
	files["sha256sums.txt"] = sha256sums(files)

	return files, nil
}

// BuildZip is BuildFiles written into a zip archive.
func BuildZip(in Input, baseURL string) ([]byte, error) {
	files, err := BuildFiles(in, baseURL)
	if err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(nil)
	if err := WriteZip(buf, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteZip writes files in name order with a fixed modification time so the
// archive bytes depend only on the content.
func WriteZip(w io.Writer, files map[string][]byte) error {
	zw := zip.NewWriter(w)
	epoch := time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, name := range sortedNames(files) {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: epoch})
		if err != nil {
			return err
		}
		if _, err := fw.Write(files[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}

func sha256sums(files map[string][]byte) []byte {
	var b strings.Builder
	for _, name := range sortedNames(files) {
		if name == "sha256sums.txt" {
			continue
		}
		b.WriteString(crypto.DigestHex(files[name]))
		b.WriteString("  ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func marshalIndent(v any) ([]byte, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(raw, '\n'), nil
}
