package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

// ParseCSV reads a statement CSV, takes the first record as the header line,
// and normalizes the remaining rows for userID. Ragged rows are tolerated;
// each row is judged on its own.
func ParseCSV(userID string, r io.Reader) (Result, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	headers, err := cr.Read()
	if err == io.EOF {
		return Result{}, errors.New("ParseCSV: empty file")
	}
	if err != nil {
		return Result{}, fmt.Errorf("ParseCSV: reading header: %w", err)
	}

	var rows [][]string
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("ParseCSV: reading records: %w", err)
		}
		rows = append(rows, record)
	}

	return Parse(userID, headers, rows)
}
