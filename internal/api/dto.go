package api

import (
	"time"

	"github.com/davidahmann/proofofchoice/internal/decisions"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

type OptionRequest struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Image         string   `json:"image"`
	CostImpact    int64    `json:"costImpact"`
	Pros          []string `json:"pros"`
	Cons          []string `json:"cons"`
	IsRecommended bool     `json:"isRecommended"`
}

func (o OptionRequest) option() types.DecisionOption {
	return types.DecisionOption{
		ID:            o.ID,
		Title:         o.Title,
		Description:   o.Description,
		Image:         o.Image,
		CostImpact:    o.CostImpact,
		Pros:          o.Pros,
		Cons:          o.Cons,
		IsRecommended: o.IsRecommended,
	}
}

type CreateDecisionRequest struct {
	ProjectID   string             `json:"projectId"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Phase       types.ProjectPhase `json:"phase"`
	Category    string             `json:"category"`
	DueDate     *time.Time         `json:"dueDate"`
	Options     []OptionRequest    `json:"options"`
}

func (r CreateDecisionRequest) input() decisions.CreateInput {
	in := decisions.CreateInput{
		ProjectID:   r.ProjectID,
		Title:       r.Title,
		Description: r.Description,
		Phase:       r.Phase,
		Category:    r.Category,
		DueDate:     r.DueDate,
	}
	for _, o := range r.Options {
		in.Options = append(in.Options, o.option())
	}
	return in
}

type UpdateDecisionRequest struct {
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	Phase       *types.ProjectPhase `json:"phase"`
	Category    *string             `json:"category"`
	DueDate     *time.Time          `json:"dueDate"`
	ClearDue    bool                `json:"clearDueDate"`
}

func (r UpdateDecisionRequest) patch() decisions.MetadataPatch {
	return decisions.MetadataPatch{
		Title:       r.Title,
		Description: r.Description,
		Phase:       r.Phase,
		Category:    r.Category,
		DueDate:     r.DueDate,
		ClearDue:    r.ClearDue,
	}
}

type SelectRequest struct {
	OptionID string `json:"optionId"`
}

type ApproveRequest struct {
	SignerName     string `json:"signerName"`
	SignerEmail    string `json:"signerEmail"`
	SignatureImage string `json:"signatureImage"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type CommentRequest struct {
	Content     string             `json:"content"`
	Attachments []types.Attachment `json:"attachments"`
	Question    bool               `json:"question"`
}

type ApproveResponse struct {
	Decision  types.Decision   `json:"decision"`
	Signature types.ESignature `json:"signature"`
}
