package types

import "time"

// VersionSnapshot is an immutable capture of a decision at one version.
type VersionSnapshot struct {
	ID             string         `json:"id"`
	DecisionID     string         `json:"decisionId"`
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"createdAt"`
	CreatedBy      Actor          `json:"createdBy"`
	ChangesSummary string         `json:"changesSummary"`
	OptionCount    int            `json:"optionCount"`
	Status         DecisionStatus `json:"status"`
	DocumentRef    string         `json:"documentRef,omitempty"`
}

// ESignature binds a signer to one option of one decision version.
// Hash covers the canonical signing view; Sig is the service's Ed25519 signature over it.
type ESignature struct {
	ID             string    `json:"id"`
	DecisionID     string    `json:"decisionId"`
	OptionID       string    `json:"optionId"`
	Version        int       `json:"version"`
	SignerName     string    `json:"signerName"`
	SignerEmail    string    `json:"signerEmail,omitempty"`
	SignedAt       time.Time `json:"signedAt"`
	IP             string    `json:"ip,omitempty"`
	SignatureImage string    `json:"signatureImage,omitempty"`
	Hash           string    `json:"hash"`
	KeyID          string    `json:"keyId"`
	Sig            []byte    `json:"sig"`
}
