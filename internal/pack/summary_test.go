package pack

import (
	"strings"
	"testing"
)

func TestBuildSummaryIncludesLinksAndHTML(t *testing.T) {
	proof := approvedProof(t)
	summary, htmlBytes, err := BuildSummary(Input{Proof: proof, Policy: []byte("policy_id: p\n")}, "https://proof.example.com/")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.VerifyURL != "https://proof.example.com/v1/decisions/"+proof.Decision.ID+"/signature/verify" {
		t.Fatalf("unexpected verify url %q", summary.VerifyURL)
	}
	if summary.PackURL == "" {
		t.Fatalf("expected pack url")
	}
	if summary.Grade != "A" || !summary.SignatureValid || summary.SignerName != "J. Park" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(summary.Options) != 2 || !summary.Options[0].Selected || summary.Options[0].CostPercent != 10 {
		t.Fatalf("unexpected option lines: %+v", summary.Options)
	}
	html := string(htmlBytes)
	for _, want := range []string{"Kitchen Countertop", "J. Park", "Signed", "intact"} {
		if !strings.Contains(html, want) {
			t.Fatalf("html missing %q", want)
		}
	}
}

func TestBuildSummaryNoLinksWhenNoBaseURL(t *testing.T) {
	summary, _, err := BuildSummary(Input{Proof: approvedProof(t)}, "")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.VerifyURL != "" || summary.PackURL != "" {
		t.Fatalf("expected no links without base url")
	}
}

func TestBuildSummaryGradesPendingDecision(t *testing.T) {
	proof := approvedProof(t)
	proof.Signature = nil
	proof.SignCheck = nil
	proof.Decision.Status = "pending"
	proof.Decision.Version = 1
	proof.Versions = proof.Versions[:1]

	summary, _, err := BuildSummary(Input{Proof: proof}, "")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Grade != "B" {
		t.Fatalf("expected B for a decision awaiting approval, got %s %v", summary.Grade, summary.Reasons)
	}
}
