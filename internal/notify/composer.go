// Package notify builds the notification email for a flagged work-hour
// record, either from fixed templates or from a text-generation call.
package notify

import (
	"context"
	"fmt"

	"github.com/hourwatch/hourwatch/internal/classify"
	"github.com/hourwatch/hourwatch/internal/roster"
)

// Notification is a composed email ready for dispatch.
type Notification struct {
	Category classify.Category
	Subject  string
	Body     string
}

// Composer produces a category and an email body for one flagged record.
//
// A non-nil error never means "no notification": implementations always
// return a usable (possibly degraded) Notification and the error exists
// only so the caller can surface a warning. One record's failure must not
// block the rest of the run.
type Composer interface {
	Compose(ctx context.Context, rec roster.WorkRecord) (Notification, error)
}

// Subject returns the alert subject line for an employee.
func Subject(employeeName string) string {
	return fmt.Sprintf("Attendance Alert for %s", employeeName)
}
