package types

import "time"

type DecisionStatus string

const (
	StatusDraft     DecisionStatus = "draft"
	StatusPublished DecisionStatus = "published"
	StatusPending   DecisionStatus = "pending"
	StatusApproved  DecisionStatus = "approved"
	StatusRejected  DecisionStatus = "rejected"
	StatusArchived  DecisionStatus = "archived"
)

func (s DecisionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusPending, StatusApproved, StatusRejected, StatusArchived:
		return true
	default:
		return false
	}
}

type ProjectPhase string

const (
	PhaseKickoff           ProjectPhase = "kickoff"
	PhaseSchematic         ProjectPhase = "schematic"
	PhaseDesignDevelopment ProjectPhase = "design-development"
	PhaseConstructionDocs  ProjectPhase = "construction-docs"
	PhaseBidding           ProjectPhase = "bidding"
	PhaseConstruction      ProjectPhase = "construction"
	PhaseCloseout          ProjectPhase = "closeout"
)

func (p ProjectPhase) Valid() bool {
	switch p {
	case PhaseKickoff, PhaseSchematic, PhaseDesignDevelopment, PhaseConstructionDocs,
		PhaseBidding, PhaseConstruction, PhaseCloseout:
		return true
	default:
		return false
	}
}

type Role string

const (
	RoleAdmin          Role = "admin"
	RoleProjectManager Role = "project-manager"
	RoleDesigner       Role = "designer"
	RoleSpecWriter     Role = "spec-writer"
	RoleClient         Role = "client"
	RoleContractor     Role = "contractor"
	RoleViewer         Role = "viewer"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProjectManager, RoleDesigner, RoleSpecWriter, RoleClient, RoleContractor, RoleViewer:
		return true
	default:
		return false
	}
}

// Actor identifies who issued a command. It is a reference, not an owned user record.
type Actor struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email,omitempty" yaml:"email"`
	Role  Role   `json:"role" yaml:"role"`
}

// DecisionOption is one selectable alternative. CostImpact is in minor currency units.
type DecisionOption struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Image         string   `json:"image,omitempty"`
	CostImpact    int64    `json:"costImpact"`
	Pros          []string `json:"pros"`
	Cons          []string `json:"cons"`
	IsRecommended bool     `json:"isRecommended"`
}

type Decision struct {
	ID               string           `json:"id"`
	ProjectID        string           `json:"projectId"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Status           DecisionStatus   `json:"status"`
	Phase            ProjectPhase     `json:"phase"`
	Category         string           `json:"category"`
	Options          []DecisionOption `json:"options"`
	SelectedOptionID string           `json:"selectedOptionId,omitempty"`
	CreatedBy        Actor            `json:"createdBy"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
	DueDate          *time.Time       `json:"dueDate,omitempty"`
	Version          int              `json:"version"`
	Comments         []Comment        `json:"comments,omitempty"`

	// Revision increments on every committed write and backs optimistic concurrency.
	Revision int64 `json:"revision"`
}

// Option returns the option with the given id.
func (d Decision) Option(optionID string) (DecisionOption, bool) {
	for _, opt := range d.Options {
		if opt.ID == optionID {
			return opt, true
		}
	}
	return DecisionOption{}, false
}

// Clone returns a deep copy so callers can mutate without aliasing stored slices.
func (d Decision) Clone() Decision {
	out := d
	if d.Options != nil {
		out.Options = make([]DecisionOption, len(d.Options))
		for i, opt := range d.Options {
			out.Options[i] = opt.Clone()
		}
	}
	if d.Comments != nil {
		out.Comments = make([]Comment, len(d.Comments))
		for i, c := range d.Comments {
			out.Comments[i] = c.Clone()
		}
	}
	if d.DueDate != nil {
		due := *d.DueDate
		out.DueDate = &due
	}
	return out
}

func (o DecisionOption) Clone() DecisionOption {
	out := o
	if o.Pros != nil {
		out.Pros = append([]string(nil), o.Pros...)
	}
	if o.Cons != nil {
		out.Cons = append([]string(nil), o.Cons...)
	}
	return out
}

type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

type CommentKind string

const (
	CommentDiscussion CommentKind = "discussion"
	CommentQuestion   CommentKind = "question"
)

type Comment struct {
	ID          string       `json:"id"`
	DecisionID  string       `json:"decisionId"`
	Author      Actor        `json:"author"`
	Kind        CommentKind  `json:"kind"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"createdAt"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Mentions    []string     `json:"mentions,omitempty"`
}

func (c Comment) Clone() Comment {
	out := c
	if c.Attachments != nil {
		out.Attachments = append([]Attachment(nil), c.Attachments...)
	}
	if c.Mentions != nil {
		out.Mentions = append([]string(nil), c.Mentions...)
	}
	return out
}
