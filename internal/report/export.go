// Package report serializes a run's bucketed outcomes back to a
// spreadsheet offered for download.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/hourwatch/hourwatch/internal/pipeline"
)

const sheetName = "Results"

// ExportFileName is the default name of the downloadable results file.
const ExportFileName = "defaulter_results.xlsx"

var header = []interface{}{"Employee Name", "Email", "Reason", "Category"}

// Write serializes all bucketed outcomes to w as a single-sheet xlsx:
// header row plus one row per processed record, in Approved, NotGenuine,
// Shady order.
func Write(w io.Writer, summary *pipeline.Summary) error {
	f := excelize.NewFile()
	defer f.Close()

	def := f.GetSheetName(0)
	if err := f.SetSheetName(def, sheetName); err != nil {
		return fmt.Errorf("failed to name results sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, outcome := range summary.Outcomes() {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		row := []interface{}{
			outcome.Record.EmployeeName,
			outcome.Record.Email,
			outcome.Record.Reason,
			string(outcome.Category),
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write spreadsheet: %w", err)
	}
	return nil
}

// WriteFile serializes the results to a file on disk.
func WriteFile(path string, summary *pipeline.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := Write(f, summary); err != nil {
		return err
	}
	return f.Close()
}
