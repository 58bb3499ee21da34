// Package project builds view-specific ordered field lists from a
// normalized lead and its branch's mapping list.
package project

import (
	"fmt"
	"sort"

	"lead-engine/internal/mapper"
	"lead-engine/internal/schema"
)

// View selects which visibility flag and ordering apply.
type View string

const (
	ViewList   View = "list"
	ViewDetail View = "detail"
	ViewEmail  View = "email"
)

// ValidView reports whether v is a known view.
func ValidView(v View) bool {
	return v == ViewList || v == ViewDetail || v == ViewEmail
}

// Field is one projected (label, value) pair.
type Field struct {
	Key   string      `json:"key"`
	Label string      `json:"label"`
	Value interface{} `json:"value"`
}

// Projection is the ordered output handed downstream. For the email view it
// also carries the branch's configured template identifier; rendering is the
// notification component's business.
type Projection struct {
	View       View    `json:"view"`
	TemplateID string  `json:"templateId,omitempty"`
	Fields     []Field `json:"fields"`
}

// Build projects a lead through the mapping list for one view. Pure and
// deterministic: the same lead, mappings and view always produce the same
// ordered output.
func Build(lead *mapper.NormalizedLead, mappings []schema.FieldMapping, view View) []Field {
	visible := make([]schema.FieldMapping, 0, len(mappings))
	for _, m := range mappings {
		if visibleIn(m, view) {
			visible = append(visible, m)
		}
	}

	sort.SliceStable(visible, func(a, b int) bool {
		if view == ViewEmail && visible[a].EmailPriority != visible[b].EmailPriority {
			return visible[a].EmailPriority < visible[b].EmailPriority
		}
		return visible[a].SortOrder < visible[b].SortOrder
	})

	fields := make([]Field, 0, len(visible))
	for _, m := range visible {
		fields = append(fields, Field{
			Key:   m.FieldKey,
			Label: m.Label,
			Value: lead.Fields[m.FieldKey],
		})
	}
	return fields
}

// BuildForBranch builds a full projection including the branch's email
// template identifier.
func BuildForBranch(lead *mapper.NormalizedLead, branch *schema.Branch, mappings []schema.FieldMapping, view View) (*Projection, error) {
	if !ValidView(view) {
		return nil, fmt.Errorf("unknown view %q", view)
	}
	p := &Projection{View: view, Fields: Build(lead, mappings, view)}
	if view == ViewEmail {
		p.TemplateID = branch.EmailTemplate
	}
	return p, nil
}

func visibleIn(m schema.FieldMapping, view View) bool {
	switch view {
	case ViewList:
		return m.ShowInList
	case ViewDetail:
		return m.ShowInDetail
	case ViewEmail:
		return m.IncludeInEmail
	}
	return false
}
