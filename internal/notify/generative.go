package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/hourwatch/hourwatch/internal/classify"
	"github.com/hourwatch/hourwatch/internal/llm"
	"github.com/hourwatch/hourwatch/internal/roster"
)

const (
	categoryMarker = "Category:"
	bodyMarker     = "Email Body:"

	fallbackBody      = "Could not parse the response correctly."
	errorFallbackBody = "An error occurred while generating content."
)

// GenerativeComposer asks the text-generation service for both the
// category and the email body in one call. Malformed responses and
// failed calls degrade to Unknown/Error with a fallback body; they are
// reported through the error return but never block the run.
type GenerativeComposer struct {
	client llm.Client
}

func NewGenerativeComposer(client llm.Client) *GenerativeComposer {
	return &GenerativeComposer{client: client}
}

func buildPrompt(rec roster.WorkRecord) string {
	var b strings.Builder
	b.WriteString("Categorize the following reason and generate an email body:\n\n")
	fmt.Fprintf(&b, "Employee Name: %s\n", rec.EmployeeName)
	fmt.Fprintf(&b, "Reason: %s\n\n", rec.Reason)
	b.WriteString("Categories: Official, Emergency, Personal, Shady.\n")
	fmt.Fprintf(&b, "Greet %s appropriately and use a tone fitting for a manager and the report is for the whole week.\n", rec.EmployeeName)
	b.WriteString("The name in the sign-off/closing should be 'HR Team'.\n")
	b.WriteString("Please respond in the following format:\n")
	b.WriteString("Category: <category>\n")
	b.WriteString("Email Body: <email body>")
	return b.String()
}

func (c *GenerativeComposer) Compose(ctx context.Context, rec roster.WorkRecord) (Notification, error) {
	subject := Subject(rec.EmployeeName)

	text, err := c.client.Complete(ctx, buildPrompt(rec))
	if err != nil {
		return Notification{
			Category: classify.CategoryError,
			Subject:  subject,
			Body:     errorFallbackBody,
		}, fmt.Errorf("generation failed for %s: %w", rec.EmployeeName, err)
	}

	category, body, ok := parseResponse(text)
	if !ok {
		return Notification{
			Category: classify.CategoryUnknown,
			Subject:  subject,
			Body:     fallbackBody,
		}, fmt.Errorf("malformed generation response for %s", rec.EmployeeName)
	}

	return Notification{Category: category, Subject: subject, Body: body}, nil
}

// parseResponse extracts the category label and email body from the
// delimited reply format. Best effort: ok is false when either marker
// is absent.
func parseResponse(text string) (classify.Category, string, bool) {
	text = strings.TrimSpace(text)

	catIdx := strings.Index(text, categoryMarker)
	bodyIdx := strings.Index(text, bodyMarker)
	if catIdx < 0 || bodyIdx < 0 || bodyIdx < catIdx {
		return "", "", false
	}

	label := strings.TrimSpace(text[catIdx+len(categoryMarker) : bodyIdx])
	body := strings.TrimSpace(text[bodyIdx+len(bodyMarker):])
	if body == "" {
		return "", "", false
	}

	return classify.Parse(label), body, true
}
