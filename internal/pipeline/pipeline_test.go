package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hourwatch/hourwatch/internal/classify"
	"github.com/hourwatch/hourwatch/internal/email"
	"github.com/hourwatch/hourwatch/internal/notify"
	"github.com/hourwatch/hourwatch/internal/roster"
)

// stubSender records every message and answers with a fixed result.
type stubSender struct {
	fail bool
	sent []email.Message
}

func (s *stubSender) Name() string { return "stub" }

func (s *stubSender) Send(ctx context.Context, msg email.Message) email.Result {
	s.sent = append(s.sent, msg)
	if s.fail {
		return email.Result{Success: false, Error: errors.New("relay unavailable")}
	}
	return email.Result{Success: true, MessageID: "stub-1"}
}

func newPipeline(t *testing.T, sender email.Sender, sendAll bool) *Pipeline {
	t.Helper()
	composer, err := notify.NewTemplateComposer(48)
	if err != nil {
		t.Fatalf("NewTemplateComposer: %v", err)
	}
	return &Pipeline{
		Composer:  composer,
		Sender:    sender,
		From:      "hr@co.com",
		Threshold: 48,
		SendAll:   sendAll,
	}
}

func TestRunScenarioApproved(t *testing.T) {
	// Approved reason under the default policy: bucketed, no email.
	sender := &stubSender{}
	p := newPipeline(t, sender, false)

	summary := p.Run(context.Background(), []roster.WorkRecord{
		{EmployeeName: "Asha", Email: "asha@co.com", WorkHours: 40, Reason: "official leave"},
	})

	if len(summary.Approved) != 1 {
		t.Fatalf("approved bucket size = %d, want 1", len(summary.Approved))
	}
	if got := summary.Approved[0].Category; got != classify.CategoryOfficial {
		t.Errorf("category = %s, want %s", got, classify.CategoryOfficial)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d emails, want 0", len(sender.sent))
	}
	if len(summary.Notified) != 0 {
		t.Errorf("notified = %v, want empty", summary.Notified)
	}
}

func TestRunScenarioShadyWithDeliveryFailure(t *testing.T) {
	// Shady reason: one attempt to raj@co.com; on relay failure the row
	// still lands in the shady bucket with the failure recorded.
	sender := &stubSender{fail: true}
	p := newPipeline(t, sender, false)

	summary := p.Run(context.Background(), []roster.WorkRecord{
		{EmployeeName: "Raj", Email: "raj@co.com", WorkHours: 30, Reason: "slept in the office"},
	})

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	if sender.sent[0].To != "raj@co.com" {
		t.Errorf("recipient = %s, want raj@co.com", sender.sent[0].To)
	}
	if len(summary.Shady) != 1 {
		t.Fatalf("shady bucket size = %d, want 1", len(summary.Shady))
	}
	out := summary.Shady[0]
	if out.Sent {
		t.Error("outcome marked sent despite relay failure")
	}
	if out.SendErr == "" {
		t.Error("send error not recorded")
	}
	if len(summary.Notified) != 0 {
		t.Errorf("notified = %v, want empty", summary.Notified)
	}
	if len(summary.Warnings) != 1 {
		t.Errorf("warnings = %v, want one delivery warning", summary.Warnings)
	}
}

func TestRunScenarioInvalidEmail(t *testing.T) {
	sender := &stubSender{}
	p := newPipeline(t, sender, false)

	summary := p.Run(context.Background(), []roster.WorkRecord{
		{EmployeeName: "Lee", Email: "not-an-email", WorkHours: 20, Reason: "tired"},
	})

	if summary.Flagged() != 0 {
		t.Errorf("flagged = %d, want 0", summary.Flagged())
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}
	if len(summary.Warnings) != 1 {
		t.Fatalf("warnings = %v, want exactly one", summary.Warnings)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d emails, want 0", len(sender.sent))
	}
}

func TestRunSkipsAtOrAboveThreshold(t *testing.T) {
	sender := &stubSender{}
	p := newPipeline(t, sender, false)

	summary := p.Run(context.Background(), []roster.WorkRecord{
		{EmployeeName: "Nia", Email: "nia@co.com", WorkHours: 48, Reason: "tired"},
		{EmployeeName: "Omar", Email: "omar@co.com", WorkHours: 52, Reason: "slept in the office"},
	})

	if summary.Flagged() != 0 {
		t.Errorf("flagged = %d, want 0", summary.Flagged())
	}
	if summary.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", summary.Skipped)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d emails, want 0", len(sender.sent))
	}
	if len(summary.Warnings) != 0 {
		t.Errorf("warnings = %v, want none for above-threshold skips", summary.Warnings)
	}
}

func TestRunNotGenuineIsNotified(t *testing.T) {
	sender := &stubSender{}
	p := newPipeline(t, sender, false)

	summary := p.Run(context.Background(), []roster.WorkRecord{
		{EmployeeName: "Lee", Email: "lee@co.com", WorkHours: 20, Reason: "tired"},
	})

	if len(summary.NotGenuine) != 1 {
		t.Fatalf("not-genuine bucket size = %d, want 1", len(summary.NotGenuine))
	}
	if !summary.NotGenuine[0].Sent {
		t.Error("outcome not marked sent")
	}
	if !reflect.DeepEqual(summary.Notified, []string{"lee@co.com"}) {
		t.Errorf("notified = %v, want [lee@co.com]", summary.Notified)
	}
}

func TestRunSendAllPolicyNotifiesApproved(t *testing.T) {
	sender := &stubSender{}
	p := newPipeline(t, sender, true)

	summary := p.Run(context.Background(), []roster.WorkRecord{
		{EmployeeName: "Asha", Email: "asha@co.com", WorkHours: 40, Reason: "official leave"},
	})

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	if len(summary.Approved) != 1 || !summary.Approved[0].Sent {
		t.Error("approved outcome should be marked sent under the all policy")
	}
}

func TestRunEncounterOrderAndPartition(t *testing.T) {
	records := []roster.WorkRecord{
		{EmployeeName: "Asha", Email: "asha@co.com", WorkHours: 40, Reason: "official leave"},
		{EmployeeName: "Raj", Email: "raj@co.com", WorkHours: 30, Reason: "slept in the office"},
		{EmployeeName: "Lee", Email: "lee@co.com", WorkHours: 20, Reason: "tired"},
		{EmployeeName: "Mina", Email: "mina@co.com", WorkHours: 44, Reason: "personal errand"},
		{EmployeeName: "Nia", Email: "nia@co.com", WorkHours: 50, Reason: "n/a"},
	}

	p := newPipeline(t, &stubSender{}, false)
	summary := p.Run(context.Background(), records)

	if summary.Flagged() != 4 || summary.Skipped != 1 {
		t.Fatalf("flagged = %d skipped = %d, want 4/1", summary.Flagged(), summary.Skipped)
	}

	var names []string
	for _, o := range summary.Outcomes() {
		names = append(names, o.Record.EmployeeName)
	}
	// Export order: approved (encounter order), then not-genuine, then shady.
	want := []string{"Asha", "Mina", "Lee", "Raj"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("outcome order = %v, want %v", names, want)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	records := []roster.WorkRecord{
		{EmployeeName: "Asha", Email: "asha@co.com", WorkHours: 40, Reason: "official leave"},
		{EmployeeName: "Raj", Email: "raj@co.com", WorkHours: 30, Reason: "slept in the office"},
		{EmployeeName: "Lee", Email: "lee@co.com", WorkHours: 20, Reason: "tired"},
	}

	first := newPipeline(t, &stubSender{}, false).Run(context.Background(), records)
	second := newPipeline(t, &stubSender{}, false).Run(context.Background(), records)

	if !reflect.DeepEqual(first.Outcomes(), second.Outcomes()) {
		t.Error("two runs over the same input produced different outcomes")
	}
	if !reflect.DeepEqual(first.Notified, second.Notified) {
		t.Error("two runs over the same input produced different notified lists")
	}
}

func TestRunProgressCallback(t *testing.T) {
	p := newPipeline(t, &stubSender{}, false)

	var calls [][2]int
	p.OnProgress = func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}

	p.Run(context.Background(), []roster.WorkRecord{
		{EmployeeName: "Asha", Email: "asha@co.com", WorkHours: 40, Reason: "official leave"},
		{EmployeeName: "Nia", Email: "nia@co.com", WorkHours: 50, Reason: "n/a"},
	})

	want := [][2]int{{1, 2}, {2, 2}}
	if !reflect.DeepEqual(calls, want) {
		t.Errorf("progress calls = %v, want %v", calls, want)
	}
}
