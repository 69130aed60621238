package pack

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/davidahmann/proofofchoice/internal/audit"
	"github.com/davidahmann/proofofchoice/internal/catalog"
	"github.com/davidahmann/proofofchoice/internal/grade"
	"github.com/davidahmann/proofofchoice/internal/snapshot"
)

type OptionLine struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	CostImpact  int64            `json:"cost_impact"`
	CostPercent float64          `json:"cost_percent"`
	CostBand    catalog.CostBand `json:"cost_band"`
	Recommended bool             `json:"recommended"`
	Selected    bool             `json:"selected"`
}

type TimelineLine struct {
	When   string `json:"when"`
	Label  string `json:"label"`
	Actor  string `json:"actor"`
	Detail string `json:"detail,omitempty"`
}

type Summary struct {
	DecisionID     string         `json:"decision_id"`
	ProjectID      string         `json:"project_id"`
	Title          string         `json:"title"`
	Status         string         `json:"status"`
	Version        int            `json:"version"`
	Options        []OptionLine   `json:"options"`
	SignerName     string         `json:"signer_name,omitempty"`
	SignedAt       string         `json:"signed_at,omitempty"`
	SignatureHash  string         `json:"signature_hash,omitempty"`
	SignatureValid bool           `json:"signature_valid"`
	ChainValid     bool           `json:"chain_valid"`
	ChainHead      string         `json:"chain_head,omitempty"`
	Timeline       []TimelineLine `json:"timeline"`
	Grade          string         `json:"grade"`
	Reasons        []string       `json:"reasons"`
	PolicyHash     string         `json:"policy_hash,omitempty"`
	VerifyURL      string         `json:"verify_url,omitempty"`
	PackURL        string         `json:"pack_url,omitempty"`
	CreatedAt      string         `json:"created_at"`
}

// BuildSummary returns the human-readable overview of a proof pack and its HTML rendering.
func BuildSummary(in Input, baseURL string) (Summary, []byte, error) {
	p := in.Proof
	d := p.Decision

	pcts := catalog.CostPercentages(d.Options)
	options := make([]OptionLine, len(d.Options))
	for i, opt := range d.Options {
		options[i] = OptionLine{
			ID:          opt.ID,
			Title:       opt.Title,
			CostImpact:  opt.CostImpact,
			CostPercent: pcts[i],
			CostBand:    catalog.Band(pcts[i]),
			Recommended: opt.IsRecommended,
			Selected:    opt.ID == d.SelectedOptionID,
		}
	}

	timeline := make([]TimelineLine, 0, len(p.Audit))
	for _, e := range audit.OldestFirst(p.Audit) {
		timeline = append(timeline, TimelineLine{
			When:   e.Timestamp.UTC().Format("2006-01-02 15:04 UTC"),
			Label:  audit.Label(e.Action),
			Actor:  e.Actor.Name,
			Detail: e.Details,
		})
	}

	summary := Summary{
		DecisionID: d.ID,
		ProjectID:  d.ProjectID,
		Title:      d.Title,
		Status:     string(d.Status),
		Version:    d.Version,
		Options:    options,
		ChainValid: p.Chain.Valid,
		ChainHead:  p.Chain.Head,
		Timeline:   timeline,
		PolicyHash: p.PolicyHash,
		CreatedAt:  in.CreatedAt,
	}
	if sig := p.Signature; sig != nil {
		summary.SignerName = sig.SignerName
		summary.SignedAt = sig.SignedAt.UTC().Format("2006-01-02 15:04:05 UTC")
		summary.SignatureHash = sig.Hash
		summary.SignatureValid = p.SignCheck != nil && p.SignCheck.Valid
	}

	result := grade.Evaluate(grade.Input{
		Status:             d.Status,
		ChainValid:         p.Chain.Valid,
		HasSignature:       p.Signature != nil,
		SignatureValid:     summary.SignatureValid,
		PolicyHash:         p.PolicyHash,
		VersionsContiguous: snapshot.CheckContiguous(p.Versions, d.Version) == nil,
	})
	summary.Grade = result.Grade
	summary.Reasons = result.Reasons

	if base := strings.TrimRight(baseURL, "/"); base != "" {
		summary.VerifyURL = base + "/v1/decisions/" + d.ID + "/signature/verify"
		summary.PackURL = base + "/v1/decisions/" + d.ID + "/export.zip"
	}

	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, summary); err != nil {
		return Summary{}, nil, err
	}
	return summary, buf.Bytes(), nil
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>Proof of choice: {{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>Decision {{.DecisionID}} &middot; project {{.ProjectID}} &middot; version {{.Version}} &middot; {{.Status}}</p>
<p>Proof grade: <strong>{{.Grade}}</strong>{{range .Reasons}} <code>{{.}}</code>{{end}}</p>
<h2>Options</h2>
<table>
<tr><th>Option</th><th>Cost impact</th><th>Relative cost</th><th></th></tr>
{{range .Options}}<tr><td>{{.Title}}</td><td>{{.CostImpact}}</td><td>{{printf "%.0f" .CostPercent}}% ({{.CostBand}})</td><td>{{if .Selected}}selected{{end}}{{if .Recommended}} recommended{{end}}</td></tr>
{{end}}</table>
{{if .SignerName}}<h2>Signature</h2>
<p>Signed by {{.SignerName}} at {{.SignedAt}}. Hash <code>{{.SignatureHash}}</code>, {{if .SignatureValid}}verified{{else}}NOT verified{{end}}.</p>
{{end}}<h2>Audit trail</h2>
<p>Hash chain {{if .ChainValid}}intact{{else}}BROKEN{{end}}{{if .ChainHead}}, head <code>{{.ChainHead}}</code>{{end}}.</p>
<ol>
{{range .Timeline}}<li>{{.When}} &middot; {{.Label}} &middot; {{.Actor}}{{if .Detail}}: {{.Detail}}{{end}}</li>
{{end}}</ol>
{{if .VerifyURL}}<p><a href="{{.VerifyURL}}">Verify signature</a> &middot; <a href="{{.PackURL}}">Download proof pack</a></p>
{{end}}</body>
</html>
`))
