package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead-engine/internal/mapper"
	"lead-engine/internal/schema"
)

// ==========================
// Test Helper Functions
// ==========================

func testMappings() []schema.FieldMapping {
	return []schema.FieldMapping{
		{FieldKey: "email", Label: "Email", SortOrder: 1, ShowInList: true, ShowInDetail: true, IncludeInEmail: true, EmailPriority: 2},
		{FieldKey: "phone", Label: "Phone", SortOrder: 2, ShowInDetail: true, IncludeInEmail: true, EmailPriority: 1},
		{FieldKey: "name", Label: "Name", SortOrder: 3, ShowInList: true, ShowInDetail: true},
		{FieldKey: "notes", Label: "Notes", SortOrder: 4},
	}
}

func testLead() *mapper.NormalizedLead {
	return &mapper.NormalizedLead{
		BranchID: "branch-1",
		Fields: map[string]interface{}{
			"email": "jane@example.com",
			"phone": "(555) 123-4567",
			"name":  "Jane Doe",
			"notes": "called twice",
		},
	}
}

func labels(fields []Field) []string {
	out := make([]string, len(fields))
	for n, f := range fields {
		out[n] = f.Label
	}
	return out
}

// ==========================
// Core Functionality Tests
// ==========================

func TestBuild_ListView(t *testing.T) {
	fields := Build(testLead(), testMappings(), ViewList)
	assert.Equal(t, []string{"Email", "Name"}, labels(fields))
}

func TestBuild_DetailView(t *testing.T) {
	fields := Build(testLead(), testMappings(), ViewDetail)
	assert.Equal(t, []string{"Email", "Phone", "Name"}, labels(fields))
	assert.Equal(t, "jane@example.com", fields[0].Value)
}

func TestBuild_EmailViewOrdersByPriority(t *testing.T) {
	fields := Build(testLead(), testMappings(), ViewEmail)
	// Phone has priority 1, email priority 2.
	assert.Equal(t, []string{"Phone", "Email"}, labels(fields))
}

func TestBuild_SortOrderIgnoresMappingListOrder(t *testing.T) {
	mappings := testMappings()
	// Reverse the input list; declared sort order must still win.
	for a, b := 0, len(mappings)-1; a < b; a, b = a+1, b-1 {
		mappings[a], mappings[b] = mappings[b], mappings[a]
	}

	fields := Build(testLead(), mappings, ViewDetail)
	assert.Equal(t, []string{"Email", "Phone", "Name"}, labels(fields))
}

func TestBuild_MissingFieldValueIsNil(t *testing.T) {
	lead := testLead()
	delete(lead.Fields, "phone")

	fields := Build(lead, testMappings(), ViewDetail)
	require.Len(t, fields, 3)
	assert.Equal(t, "Phone", fields[1].Label)
	assert.Nil(t, fields[1].Value)
}

func TestBuild_Deterministic(t *testing.T) {
	lead := testLead()
	mappings := testMappings()

	first := Build(lead, mappings, ViewEmail)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Build(lead, mappings, ViewEmail))
	}
}

func TestBuildForBranch_EmailCarriesTemplateID(t *testing.T) {
	branch := &schema.Branch{ID: "branch-1", EmailTemplate: "new-lead-v2"}

	p, err := BuildForBranch(testLead(), branch, testMappings(), ViewEmail)
	require.NoError(t, err)
	assert.Equal(t, "new-lead-v2", p.TemplateID)

	p, err = BuildForBranch(testLead(), branch, testMappings(), ViewList)
	require.NoError(t, err)
	assert.Empty(t, p.TemplateID)
}

func TestBuildForBranch_UnknownView(t *testing.T) {
	branch := &schema.Branch{ID: "branch-1"}
	_, err := BuildForBranch(testLead(), branch, testMappings(), View("pdf"))
	assert.Error(t, err)
}
