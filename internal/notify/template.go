package notify

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"text/template"

	"github.com/hourwatch/hourwatch/internal/classify"
	"github.com/hourwatch/hourwatch/internal/roster"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

// templateData contains all data available to notification templates
type templateData struct {
	EmployeeName string
	Reason       string
	Category     string
	Threshold    float64
}

// TemplateComposer derives the category from the keyword rules and
// renders a fixed template per bucket. Deterministic, no external calls.
type TemplateComposer struct {
	threshold float64
	templates map[classify.Bucket]*template.Template
}

func NewTemplateComposer(threshold float64) (*TemplateComposer, error) {
	c := &TemplateComposer{
		threshold: threshold,
		templates: make(map[classify.Bucket]*template.Template),
	}

	names := map[classify.Bucket]string{
		classify.BucketApproved:   "approved",
		classify.BucketShady:      "shady",
		classify.BucketNotGenuine: "notgenuine",
	}
	for bucket, name := range names {
		content, err := embeddedTemplates.ReadFile("templates/" + name + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template %s: %w", name, err)
		}

		tmpl, err := template.New(name).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		c.templates[bucket] = tmpl
	}

	return c, nil
}

func (c *TemplateComposer) Compose(ctx context.Context, rec roster.WorkRecord) (Notification, error) {
	category := classify.Classify(rec.Reason)
	tmpl := c.templates[classify.BucketFor(category)]

	var buf bytes.Buffer
	err := tmpl.Execute(&buf, templateData{
		EmployeeName: rec.EmployeeName,
		Reason:       rec.Reason,
		Category:     string(category),
		Threshold:    c.threshold,
	})
	if err != nil {
		return Notification{
			Category: category,
			Subject:  Subject(rec.EmployeeName),
			Body:     fallbackBody,
		}, fmt.Errorf("failed to render template: %w", err)
	}

	return Notification{
		Category: category,
		Subject:  Subject(rec.EmployeeName),
		Body:     buf.String(),
	}, nil
}
