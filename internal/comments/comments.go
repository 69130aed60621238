// Package comments validates and builds entries of a decision's discussion thread.
package comments

import (
	"regexp"
	"strings"
	"time"

	"github.com/davidahmann/proofofchoice/internal/workflow"
	"github.com/davidahmann/proofofchoice/pkg/types"
)

const (
	RuleContentRequired   = "comment_content_required"
	RuleAttachmentInvalid = "attachment_invalid"
	maxMentionsPerComment = 20
)

var mentionPattern = regexp.MustCompile(`@\w+(?:\s\w+)?`)

type NewInput struct {
	ID          string
	DecisionID  string
	Author      types.Actor
	Kind        types.CommentKind
	Content     string
	Attachments []types.Attachment
	CreatedAt   time.Time
}

// New validates the input and returns the comment to append. Status is not
// consulted; comments are accepted on every decision, archived ones included.
func New(in NewInput) (types.Comment, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return types.Comment{}, workflow.NewValidationError(RuleContentRequired, "comment content is required")
	}
	for _, a := range in.Attachments {
		if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.URL) == "" {
			return types.Comment{}, workflow.NewValidationError(RuleAttachmentInvalid, "attachments need a name and url")
		}
	}
	kind := in.Kind
	if kind == "" {
		kind = types.CommentDiscussion
	}

	return types.Comment{
		ID:          in.ID,
		DecisionID:  in.DecisionID,
		Author:      in.Author,
		Kind:        kind,
		Content:     content,
		CreatedAt:   in.CreatedAt.UTC().Truncate(time.Microsecond),
		Attachments: append([]types.Attachment(nil), in.Attachments...),
		Mentions:    Mentions(content),
	}, nil
}

// Mentions extracts @name tokens in order of first appearance, without duplicates.
func Mentions(content string) []string {
	matches := mentionPattern.FindAllString(content, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimPrefix(m, "@")
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
		if len(out) == maxMentionsPerComment {
			break
		}
	}
	return out
}
