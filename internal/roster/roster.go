package roster

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Column headers required in the uploaded spreadsheet.
const (
	ColEmployeeName = "Employee Name"
	ColEmail        = "Email"
	ColWorkHours    = "Work Hours"
	ColReason       = "Reason"
)

// WorkRecord is one weekly work-hour row. Records are immutable for the
// duration of a run.
type WorkRecord struct {
	EmployeeName string
	Email        string
	WorkHours    float64
	Reason       string
}

// Load parses a work-hour spreadsheet from r. The first sheet must carry
// a header row containing the four required columns, in any order.
// Any format problem is fatal: nothing is processed from a malformed file.
func Load(r io.Reader) ([]WorkRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("spreadsheet is empty")
	}

	cols, err := mapColumns(rows[0])
	if err != nil {
		return nil, err
	}

	var records []WorkRecord
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}

		hoursRaw := strings.TrimSpace(cell(row, cols[ColWorkHours]))
		hours, err := strconv.ParseFloat(hoursRaw, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: work hours %q is not a number", i+2, hoursRaw)
		}

		records = append(records, WorkRecord{
			EmployeeName: strings.TrimSpace(cell(row, cols[ColEmployeeName])),
			Email:        strings.TrimSpace(cell(row, cols[ColEmail])),
			WorkHours:    hours,
			Reason:       strings.TrimSpace(cell(row, cols[ColReason])),
		})
	}

	return records, nil
}

// LoadFile parses a work-hour spreadsheet from disk.
func LoadFile(path string) ([]WorkRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

// mapColumns resolves the index of each required column from the header
// row, matching case-insensitively.
func mapColumns(header []string) (map[string]int, error) {
	cols := make(map[string]int, 4)
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case strings.ToLower(ColEmployeeName):
			cols[ColEmployeeName] = i
		case strings.ToLower(ColEmail):
			cols[ColEmail] = i
		case strings.ToLower(ColWorkHours):
			cols[ColWorkHours] = i
		case strings.ToLower(ColReason):
			cols[ColReason] = i
		}
	}

	var missing []string
	for _, name := range []string{ColEmployeeName, ColEmail, ColWorkHours, ColReason} {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("spreadsheet is missing required columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

// cell returns row[i], tolerating short rows (excelize trims trailing
// empty cells).
func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return row[i]
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
