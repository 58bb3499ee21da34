package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/ingest"
	"lead-engine/internal/mapper"
	"lead-engine/internal/notify"
	"lead-engine/internal/schema"
	"lead-engine/internal/store"
)

// ==========================
// Test Doubles
// ==========================

type fakeRegistry struct {
	branches map[string]*schema.Branch
	mappings map[string][]schema.FieldMapping
}

func (f *fakeRegistry) GetBranch(ctx context.Context, branchID string) (*schema.Branch, error) {
	for _, b := range f.branches {
		if b.ID == branchID || b.MachineName == branchID {
			return b, nil
		}
	}
	return nil, apperrors.NewBranchNotFoundError(branchID)
}

func (f *fakeRegistry) GetMappings(ctx context.Context, branchID string) ([]schema.FieldMapping, error) {
	if m, ok := f.mappings[branchID]; ok {
		return m, nil
	}
	return []schema.FieldMapping{}, nil
}

type fakeChecker struct{}

func (fakeChecker) CheckUnique(ctx context.Context, branchID, fieldKey, normalizedValue string) (bool, error) {
	return true, nil
}

type fakePersister struct {
	persisted int
}

func (f *fakePersister) Persist(ctx context.Context, lead *mapper.NormalizedLead) (string, error) {
	f.persisted++
	return "lead-1", nil
}

type fakeSender struct {
	input *ses.SendEmailInput
}

func (f *fakeSender) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	messageID := "msg-1"
	return &ses.SendEmailOutput{MessageId: &messageID}, nil
}

// ==========================
// Fixtures
// ==========================

func solarRegistry() *fakeRegistry {
	return &fakeRegistry{
		branches: map[string]*schema.Branch{
			"solar": {ID: "branch-1", MachineName: "solar", DisplayName: "Solar Panels", Active: true, EmailTemplate: "tpl-solar"},
			"hvac":  {ID: "branch-2", MachineName: "hvac", DisplayName: "HVAC", Active: false},
		},
		mappings: map[string][]schema.FieldMapping{
			"branch-1": {
				{
					ID: "m-1", BranchID: "branch-1", SourceColumn: "A", FieldKey: "full_name",
					Label: "Full Name", Type: schema.FieldTypeText, Required: true,
					ShowInList: true, ShowInDetail: true, IncludeInEmail: true, EmailPriority: 1, SortOrder: 1,
				},
				{
					ID: "m-2", BranchID: "branch-1", SourceColumn: "B", FieldKey: "email",
					Label: "Email", Type: schema.FieldTypeEmail, Required: true, Unique: true,
					ShowInDetail: true, IncludeInEmail: true, EmailPriority: 2, SortOrder: 2,
				},
			},
		},
	}
}

func newTestServer(t *testing.T, registry schema.Registry, leads *store.LeadStore, notifier *notify.Notifier) *Server {
	log := logger.NewTestLogger(t)
	ingestor := ingest.New(ingest.Dependencies{
		Registry:      registry,
		UniqueChecker: fakeChecker{},
		LeadStore:     &fakePersister{},
		Logger:        log,
	}, apperrors.RetryPolicy{MaxAttempts: 1, InitialBackoff: time.Millisecond})
	return New(registry, ingestor, leads, notifier, 3, log)
}

func newMockLeadStore(t *testing.T) (*store.LeadStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store.NewLeadStore(db, logger.NewTestLogger(t)), mock
}

func expectLeadRow(mock sqlmock.Sqlmock, leadID string) {
	rows := sqlmock.NewRows([]string{
		"id", "branch_id", "fields", "norms", "origin", "origin_id", "row_number", "ingested_at",
	}).AddRow(
		leadID, "branch-1",
		[]byte(`{"full_name":"Jane Doe","email":"jane@example.com"}`),
		[]byte(`{"email":"jane@example.com"}`),
		"sheet", "sheet-1", 0, time.Now().UTC(),
	)
	mock.ExpectQuery(`SELECT id, branch_id, fields, norms`).WithArgs(leadID).WillReturnRows(rows)
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	return rec
}

// ==========================
// Ingest Endpoint Tests
// ==========================

func TestHandleIngest_AcceptsBatch(t *testing.T) {
	leads, _ := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/branches/solar/ingest", `{
		"origin": "sheet",
		"originId": "sheet-1",
		"records": [
			{"cells": ["Jane Doe", "jane@example.com"]},
			{"cells": ["John Roe", "not-an-email"]}
		]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"accepted":1`)
	assert.Contains(t, body, `"rejected":1`)
	assert.Contains(t, body, `"duplicates":0`)
}

func TestHandleIngest_InfersOriginPerRecord(t *testing.T) {
	leads, _ := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/branches/solar/ingest", `{
		"records": [
			{"values": {"A": "Jane Doe", "B": "jane@example.com"}}
		]
	}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted":1`)
}

func TestHandleIngest_MalformedPayload(t *testing.T) {
	leads, _ := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{{{`},
		{name: "missing records", body: `{"origin": "sheet"}`},
		{name: "bad origin", body: `{"origin": "fax", "records": []}`},
		{name: "records not array", body: `{"records": "nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/branches/solar/ingest", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodePayloadInvalid))
		})
	}
}

func TestHandleIngest_BatchTooLarge(t *testing.T) {
	leads, _ := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/branches/solar/ingest", `{
		"records": [{"cells": []}, {"cells": []}, {"cells": []}, {"cells": []}]
	}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeBatchTooLarge))
}

func TestHandleIngest_UnknownBranch(t *testing.T) {
	leads, _ := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/branches/plumbing/ingest", `{"records": []}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeBranchNotFound))
}

func TestHandleIngest_InactiveBranch(t *testing.T) {
	leads, _ := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/branches/hvac/ingest", `{"records": []}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeBranchInactive))
}

// ==========================
// Projection Endpoint Tests
// ==========================

func TestHandleProjectLead_DefaultsToDetailView(t *testing.T) {
	leads, mock := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)
	expectLeadRow(mock, "lead-1")

	rec := doRequest(t, srv, http.MethodGet, "/api/leads/lead-1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"view":"detail"`)
	assert.Contains(t, body, "Jane Doe")
	assert.Contains(t, body, "jane@example.com")
}

func TestHandleProjectLead_ListViewFiltersFields(t *testing.T) {
	leads, mock := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)
	expectLeadRow(mock, "lead-1")

	rec := doRequest(t, srv, http.MethodGet, "/api/leads/lead-1?view=list", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Jane Doe")
	assert.NotContains(t, body, "jane@example.com", "email is not shown in the list view")
}

func TestHandleProjectLead_UnknownView(t *testing.T) {
	leads, _ := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/leads/lead-1?view=summary", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleProjectLead_NotFound(t *testing.T) {
	leads, mock := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)
	mock.ExpectQuery(`SELECT id, branch_id`).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "branch_id", "fields", "norms", "origin", "origin_id", "row_number", "ingested_at",
		}))

	rec := doRequest(t, srv, http.MethodGet, "/api/leads/missing", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), string(apperrors.ErrCodeLeadNotFound))
}

// ==========================
// Notify Endpoint Tests
// ==========================

func TestHandleNotifyLead_SendsEmailProjection(t *testing.T) {
	leads, mock := newMockLeadStore(t)
	sender := &fakeSender{}
	notifier := notify.NewNotifier(sender, "noreply@example.com", logger.NewNoOpLogger())
	srv := newTestServer(t, solarRegistry(), leads, notifier)
	expectLeadRow(mock, "lead-1")

	rec := doRequest(t, srv, http.MethodPost, "/api/leads/lead-1/notify", `{"to": "sales@example.com"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "msg-1")

	require.NotNil(t, sender.input)
	assert.Equal(t, "New Solar Panels lead", *sender.input.Message.Subject.Data)
	body := *sender.input.Message.Body.Text.Data
	assert.Contains(t, body, "Template: tpl-solar")
	assert.Contains(t, body, "Full Name: Jane Doe")
}

func TestHandleNotifyLead_DisabledWithoutNotifier(t *testing.T) {
	leads, _ := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/leads/lead-1/notify", `{"to": "sales@example.com"}`)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHandleNotifyLead_RequiresRecipient(t *testing.T) {
	leads, _ := newMockLeadStore(t)
	notifier := notify.NewNotifier(&fakeSender{}, "noreply@example.com", logger.NewNoOpLogger())
	srv := newTestServer(t, solarRegistry(), leads, notifier)

	rec := doRequest(t, srv, http.MethodPost, "/api/leads/lead-1/notify", `{}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ==========================
// Health Endpoint Tests
// ==========================

func TestHandleHealth(t *testing.T) {
	leads, _ := newMockLeadStore(t)
	srv := newTestServer(t, solarRegistry(), leads, nil)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}
