// Package schema owns branch definitions and their ordered field mappings.
package schema

import (
	"strings"
	"time"
)

// FieldType is the closed set of declared field types.
type FieldType string

const (
	FieldTypeText    FieldType = "text"
	FieldTypeEmail   FieldType = "email"
	FieldTypePhone   FieldType = "phone"
	FieldTypeNumber  FieldType = "number"
	FieldTypeDate    FieldType = "date"
	FieldTypeBoolean FieldType = "boolean"
	FieldTypeURL     FieldType = "url"
	FieldTypeEnum    FieldType = "enum"
)

// ValidFieldType reports whether t is a member of the declared type set.
func ValidFieldType(t FieldType) bool {
	switch t {
	case FieldTypeText, FieldTypeEmail, FieldTypePhone, FieldTypeNumber,
		FieldTypeDate, FieldTypeBoolean, FieldTypeURL, FieldTypeEnum:
		return true
	}
	return false
}

// Branch is a named business vertical with its own lead schema.
type Branch struct {
	ID            string    `json:"id"`
	MachineName   string    `json:"machineName"`
	DisplayName   string    `json:"displayName"`
	Active        bool      `json:"active"`
	Icon          string    `json:"icon,omitempty"`
	EmailTemplate string    `json:"emailTemplate,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// FieldMapping is one configurable field definition owned by a branch.
//
// Pattern is overloaded by type: a regular expression for text-like types,
// a comma-delimited allowed-value list for enum, and an alternate time
// layout for date.
type FieldMapping struct {
	ID             string    `json:"id"`
	BranchID       string    `json:"branchId"`
	SourceColumn   string    `json:"sourceColumn"` // column letter/index for sheets, source key for webhooks
	FieldKey       string    `json:"fieldKey"`     // unique within the branch
	Label          string    `json:"label"`
	Type           FieldType `json:"type"`
	Required       bool      `json:"required"`
	Unique         bool      `json:"unique"`
	Pattern        string    `json:"pattern,omitempty"`
	ShowInList     bool      `json:"showInList"`
	ShowInDetail   bool      `json:"showInDetail"`
	IncludeInEmail bool      `json:"includeInEmail"`
	EmailPriority  int       `json:"emailPriority"`
	HelpText       string    `json:"helpText,omitempty"`
	SortOrder      int       `json:"sortOrder"`
}

// EnumValues splits the pattern field into the allowed-value set for enum
// mappings. Values are trimmed; empty entries are dropped.
func (m FieldMapping) EnumValues() []string {
	if m.Type != FieldTypeEnum || m.Pattern == "" {
		return nil
	}
	parts := strings.Split(m.Pattern, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// MachineName derives a branch slug from a display name: lowercase,
// underscore-separated, stripped of everything else. Derived once at
// creation and never recomputed afterward.
func MachineName(displayName string) string {
	var b strings.Builder
	lastUnderscore := true // suppress leading underscores
	for _, r := range strings.ToLower(strings.TrimSpace(displayName)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
