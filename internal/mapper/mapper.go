// Package mapper applies a branch's mapping list to one raw record.
package mapper

import (
	"strconv"
	"time"

	"lead-engine/internal/rules"
	"lead-engine/internal/schema"
)

// Origin identifies where a raw record came from.
type Origin string

const (
	OriginSheet   Origin = "sheet"
	OriginWebhook Origin = "webhook"
)

// RawRecord is one external input unit: positional cells for spreadsheet
// rows, a key/value payload for webhooks. Exactly one of Cells/Values is
// populated.
type RawRecord struct {
	Origin    Origin                 `json:"origin"`
	OriginID  string                 `json:"originId,omitempty"`
	RowNumber int                    `json:"rowNumber"`
	Cells     []string               `json:"cells,omitempty"`
	Values    map[string]interface{} `json:"values,omitempty"`
}

// Lookup extracts the raw value a mapping points at. A missing key, column
// or out-of-range index is an empty value, not an error.
func (r RawRecord) Lookup(m schema.FieldMapping) interface{} {
	if r.Values != nil {
		return r.Values[m.SourceColumn]
	}
	idx, ok := ColumnIndex(m.SourceColumn)
	if !ok || idx >= len(r.Cells) {
		return nil
	}
	return r.Cells[idx]
}

// ColumnIndex converts a spreadsheet column identifier to a zero-based
// index. Accepts letters ("A", "AA") and plain numbers ("0", "12").
func ColumnIndex(column string) (int, bool) {
	if column == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(column); err == nil {
		if n < 0 {
			return 0, false
		}
		return n, true
	}

	idx := 0
	for _, r := range column {
		switch {
		case r >= 'A' && r <= 'Z':
			idx = idx*26 + int(r-'A') + 1
		case r >= 'a' && r <= 'z':
			idx = idx*26 + int(r-'a') + 1
		default:
			return 0, false
		}
	}
	return idx - 1, true
}

// SourceMeta records where a normalized lead came from.
type SourceMeta struct {
	Origin     Origin    `json:"origin"`
	OriginID   string    `json:"originId,omitempty"`
	RowNumber  int       `json:"rowNumber"`
	IngestedAt time.Time `json:"ingestedAt"`
}

// NormalizedLead is the validated, typed output of mapping one raw record.
// Never mutated after creation; the store assigns ID at persistence.
type NormalizedLead struct {
	ID       string                 `json:"id,omitempty"`
	BranchID string                 `json:"branchId"`
	Fields   map[string]interface{} `json:"fields"`
	// Norms carries the normalized comparison form per field key, used by
	// the ingestor for uniqueness checks.
	Norms  map[string]string `json:"norms,omitempty"`
	Source SourceMeta        `json:"source"`
}

// MapResult is either an accepted lead or a rejection with every field
// failure found in the row. Exactly one of Lead/Failures is set.
type MapResult struct {
	Lead     *NormalizedLead      `json:"lead,omitempty"`
	Failures []rules.FieldFailure `json:"failures,omitempty"`
}

// Accepted reports whether the row mapped to a lead.
func (r MapResult) Accepted() bool {
	return r.Lead != nil
}

// MapRow runs the full mapping list against one record. Every mapping is
// evaluated so a rejection reports the union of all field failures, not
// just the first one.
func MapRow(record RawRecord, branchID string, mappings []schema.FieldMapping) MapResult {
	fields := make(map[string]interface{}, len(mappings))
	norms := make(map[string]string, len(mappings))
	var failures []rules.FieldFailure

	for _, m := range mappings {
		raw := record.Lookup(m)
		result, failure := rules.Evaluate(raw, m)
		if failure != nil {
			failures = append(failures, *failure)
			continue
		}
		if result == nil {
			// Empty optional field: absent from the lead.
			continue
		}
		fields[m.FieldKey] = result.Value
		norms[m.FieldKey] = result.Norm
	}

	if len(failures) > 0 {
		return MapResult{Failures: failures}
	}

	return MapResult{Lead: &NormalizedLead{
		BranchID: branchID,
		Fields:   fields,
		Norms:    norms,
		Source: SourceMeta{
			Origin:     record.Origin,
			OriginID:   record.OriginID,
			RowNumber:  record.RowNumber,
			IngestedAt: time.Now().UTC(),
		},
	}}
}
