package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// ReportRecord is one converted CSV row together with the query that
// produced it. It is the unit published to the sink topic.
type ReportRecord struct {
	ID               string     `json:"id"`
	Report           ReportKind `json:"report"`
	File             string     `json:"file"`
	Year             *int       `json:"year,omitempty"`
	MunicipalityCode *int       `json:"municipality_code,omitempty"`
	Row              int        `json:"row"` // 1-based data row
	Fields           Record     `json:"fields"`
	ExportedAt       time.Time  `json:"exported_at"`
}

// NewReportRecords wraps converted rows for export, stamping them with the
// package clock.
func NewReportRecords(req SearchRequest, rows []Record) []ReportRecord {
	now := clock.Now().UTC()
	out := make([]ReportRecord, len(rows))
	for i, row := range rows {
		out[i] = ReportRecord{
			ID:               generateID(req, i+1, row),
			Report:           req.Kind,
			File:             req.Kind.File(),
			Year:             req.Year,
			MunicipalityCode: req.MunicipalityCode,
			Row:              i + 1,
			Fields:           row,
			ExportedAt:       now,
		}
	}
	return out
}

// generateID hashes the query and row contents so re-exporting an unchanged
// report yields the same keys downstream.
func generateID(req SearchRequest, row int, rec Record) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", req.Kind, optInt(req.Year), optInt(req.MunicipalityCode), row)
	for _, f := range rec {
		fmt.Fprintf(h, "|%s=%s", f.Name, f.Value)
	}
	sum := h.Sum(nil)
	return req.Kind.File() + "-" + hex.EncodeToString(sum[:8])
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(*v)
}
