package report

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hourwatch/hourwatch/internal/classify"
	"github.com/hourwatch/hourwatch/internal/pipeline"
	"github.com/hourwatch/hourwatch/internal/roster"
)

func sampleSummary() *pipeline.Summary {
	return &pipeline.Summary{
		Approved: []pipeline.Outcome{
			{Record: roster.WorkRecord{EmployeeName: "Asha", Email: "asha@co.com", WorkHours: 40, Reason: "official leave"}, Category: classify.CategoryOfficial},
		},
		NotGenuine: []pipeline.Outcome{
			{Record: roster.WorkRecord{EmployeeName: "Lee", Email: "lee@co.com", WorkHours: 20, Reason: "tired"}, Category: classify.CategoryNotGenuine},
		},
		Shady: []pipeline.Outcome{
			{Record: roster.WorkRecord{EmployeeName: "Raj", Email: "raj@co.com", WorkHours: 30, Reason: "slept in the office"}, Category: classify.CategoryShady},
		},
	}
}

func TestWrite(t *testing.T) {
	summary := sampleSummary()

	var buf bytes.Buffer
	if err := Write(&buf, summary); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen exported file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}

	// Header plus one row per bucketed outcome.
	if want := summary.Flagged() + 1; len(rows) != want {
		t.Fatalf("got %d rows, want %d", len(rows), want)
	}

	wantHeader := []string{"Employee Name", "Email", "Reason", "Category"}
	if !reflect.DeepEqual(rows[0], wantHeader) {
		t.Errorf("header = %v, want %v", rows[0], wantHeader)
	}

	wantRows := [][]string{
		{"Asha", "asha@co.com", "official leave", "Official"},
		{"Lee", "lee@co.com", "tired", "Not Genuine"},
		{"Raj", "raj@co.com", "slept in the office", "Shady"},
	}
	for i, want := range wantRows {
		if !reflect.DeepEqual(rows[i+1], want) {
			t.Errorf("row %d = %v, want %v", i+1, rows[i+1], want)
		}
	}
}

func TestWriteEmptySummary(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, &pipeline.Summary{}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("reopen exported file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("got %d rows, want header only", len(rows))
	}
}
