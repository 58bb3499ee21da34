package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/mapper"
)

func newMockStore(t *testing.T) (*LeadStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewLeadStore(db, logger.NewTestLogger(t)), mock
}

func testLead() *mapper.NormalizedLead {
	return &mapper.NormalizedLead{
		BranchID: "branch-1",
		Fields:   map[string]interface{}{"email": "jane@example.com"},
		Norms:    map[string]string{"email": "jane@example.com"},
		Source: mapper.SourceMeta{
			Origin:     mapper.OriginSheet,
			OriginID:   "sheet-42",
			RowNumber:  3,
			IngestedAt: time.Now().UTC(),
		},
	}
}

func TestLeadStore_Persist(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO leads`).
		WithArgs(sqlmock.AnyArg(), "branch-1", sqlmock.AnyArg(), sqlmock.AnyArg(),
			"sheet", "sheet-42", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := store.Persist(context.Background(), testLead())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeadStore_CheckUnique(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM leads WHERE branch_id = \$1 AND norms->>\$2 = \$3\)`).
		WithArgs("branch-1", "email", "jane@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	unused, err := store.CheckUnique(context.Background(), "branch-1", "email", "jane@example.com")
	require.NoError(t, err)
	assert.False(t, unused, "a persisted value is no longer unused")

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("branch-1", "email", "free@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	unused, err = store.CheckUnique(context.Background(), "branch-1", "email", "free@example.com")
	require.NoError(t, err)
	assert.True(t, unused)
}

func TestLeadStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	ingestedAt := time.Now().UTC().Truncate(time.Second)

	rows := sqlmock.NewRows([]string{
		"id", "branch_id", "fields", "norms", "origin", "origin_id", "row_number", "ingested_at",
	}).AddRow(
		"lead-1", "branch-1",
		[]byte(`{"email":"jane@example.com","budget":25000}`),
		[]byte(`{"email":"jane@example.com"}`),
		"webhook", "hook-7", 0, ingestedAt,
	)
	mock.ExpectQuery(`SELECT id, branch_id, fields, norms, origin, origin_id, row_number, ingested_at`).
		WithArgs("lead-1").
		WillReturnRows(rows)

	lead, err := store.Get(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "lead-1", lead.ID)
	assert.Equal(t, "jane@example.com", lead.Fields["email"])
	assert.Equal(t, 25000.0, lead.Fields["budget"])
	assert.Equal(t, mapper.OriginWebhook, lead.Source.Origin)
	assert.Equal(t, ingestedAt, lead.Source.IngestedAt)
}

func TestLeadStore_Get_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, branch_id, fields, norms`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "branch_id", "fields", "norms", "origin", "origin_id", "row_number", "ingested_at",
		}))

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeLeadNotFound, apperrors.AsStandard(err).Code)
}
