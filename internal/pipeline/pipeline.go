// Package pipeline runs flagged work-hour records through
// classification, notification composition and dispatch, accumulating
// the results into the three outcome buckets.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/hourwatch/hourwatch/internal/classify"
	"github.com/hourwatch/hourwatch/internal/email"
	"github.com/hourwatch/hourwatch/internal/notify"
	"github.com/hourwatch/hourwatch/internal/roster"
)

// Outcome is the per-record result of a run.
type Outcome struct {
	Record   roster.WorkRecord
	Category classify.Category
	Body     string
	Sent     bool   // delivery succeeded
	SendErr  string // delivery error, if an attempt was made and failed
}

// Summary aggregates one run. Buckets keep encounter order; a flagged
// record lands in exactly one of them whether or not its email went out.
type Summary struct {
	Approved   []Outcome
	NotGenuine []Outcome
	Shady      []Outcome
	Notified   []string // recipients whose notification was delivered
	Warnings   []string
	Skipped    int // records at or above the threshold, or with invalid emails
}

// Outcomes returns all bucketed records in export order:
// Approved, NotGenuine, Shady.
func (s *Summary) Outcomes() []Outcome {
	out := make([]Outcome, 0, len(s.Approved)+len(s.NotGenuine)+len(s.Shady))
	out = append(out, s.Approved...)
	out = append(out, s.NotGenuine...)
	out = append(out, s.Shady...)
	return out
}

// Flagged returns the number of records that reached a bucket.
func (s *Summary) Flagged() int {
	return len(s.Approved) + len(s.NotGenuine) + len(s.Shady)
}

// Pipeline processes records sequentially, one external call at a time.
type Pipeline struct {
	Composer  notify.Composer
	Sender    email.Sender
	From      string
	Threshold float64
	SendAll   bool // also notify the approved bucket

	// OnProgress, when set, is called after each record with the number
	// of records handled so far and the total.
	OnProgress func(done, total int)
}

// Run processes every record to completion. Only input parsing can stop
// a run before this point; in here, per-record failures degrade and the
// loop continues.
func (p *Pipeline) Run(ctx context.Context, records []roster.WorkRecord) *Summary {
	summary := &Summary{}

	for i, rec := range records {
		p.process(ctx, rec, summary)
		if p.OnProgress != nil {
			p.OnProgress(i+1, len(records))
		}
	}

	return summary
}

func (p *Pipeline) process(ctx context.Context, rec roster.WorkRecord, summary *Summary) {
	if rec.WorkHours >= p.Threshold {
		summary.Skipped++
		return
	}

	if err := email.ValidateEmail(rec.Email); err != nil {
		summary.Skipped++
		warn := fmt.Sprintf("Invalid email for %s. Skipping.", rec.EmployeeName)
		summary.Warnings = append(summary.Warnings, warn)
		log.Printf("pipeline: %s (%v)", warn, err)
		return
	}

	notification, err := p.Composer.Compose(ctx, rec)
	if err != nil {
		// The composer degraded to a usable notification; record why.
		summary.Warnings = append(summary.Warnings, fmt.Sprintf("Notification for %s used a fallback: %v", rec.EmployeeName, err))
		log.Printf("pipeline: compose degraded for %s: %v", rec.EmployeeName, err)
	}

	outcome := Outcome{
		Record:   rec,
		Category: notification.Category,
		Body:     notification.Body,
	}

	bucket := classify.BucketFor(notification.Category)
	if bucket != classify.BucketApproved || p.SendAll {
		p.dispatch(ctx, notification, &outcome, summary)
	}

	switch bucket {
	case classify.BucketApproved:
		summary.Approved = append(summary.Approved, outcome)
	case classify.BucketShady:
		summary.Shady = append(summary.Shady, outcome)
	default:
		summary.NotGenuine = append(summary.NotGenuine, outcome)
	}
}

// dispatch attempts delivery exactly once and records the result on the
// outcome. Delivery failure never removes the record from its bucket.
func (p *Pipeline) dispatch(ctx context.Context, n notify.Notification, outcome *Outcome, summary *Summary) {
	result := p.Sender.Send(ctx, email.Message{
		To:      outcome.Record.Email,
		From:    p.From,
		Subject: n.Subject,
		Body:    n.Body,
	})

	if result.Success {
		outcome.Sent = true
		summary.Notified = append(summary.Notified, outcome.Record.Email)
		return
	}

	if result.Error != nil {
		outcome.SendErr = result.Error.Error()
	} else {
		outcome.SendErr = "send failed"
	}
	summary.Warnings = append(summary.Warnings, fmt.Sprintf("Failed to send to %s: %s", outcome.Record.Email, outcome.SendErr))
	log.Printf("pipeline: send failed to %s: %s", outcome.Record.Email, outcome.SendErr)
}
