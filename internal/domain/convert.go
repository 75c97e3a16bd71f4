package domain

import (
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

const utf8BOM = "\ufeff"

// ConvertCSVString is ConvertCSV over an in-memory payload.
func ConvertCSVString(payload string) ([]Record, error) {
	return ConvertCSV(strings.NewReader(payload))
}

// ConvertCSV reads a header row followed by data rows and returns one Record
// per data row, in source order. An empty payload or a header without rows
// yields an empty slice. Malformed input returns a *ParseError and no
// records.
func ConvertCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, toParseError(err)
	}
	columns := make([]string, len(header))
	copy(columns, header)
	columns[0] = strings.TrimPrefix(columns[0], utf8BOM)

	records := []Record{}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, toParseError(err)
		}
		rec := make(Record, len(columns))
		for i, name := range columns {
			rec[i] = Field{Name: name, Value: ParseValue(row[i])}
		}
		records = append(records, rec)
	}
}

func toParseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Line: pe.Line, Err: pe.Err}
	}
	return &ParseError{Err: err}
}
