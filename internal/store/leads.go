// Package store is the relational lead store: the persistence and
// persisted-uniqueness collaborator the ingestor is wired with.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	apperrors "lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/mapper"
)

// LeadStore persists normalized leads in Postgres. Field values and their
// normalized comparison forms are stored as jsonb.
type LeadStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewLeadStore(db *sql.DB, log logger.Logger) *LeadStore {
	return &LeadStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "lead-store"}),
	}
}

// Persist inserts a lead and returns its new identifier. Leads are never
// updated in place through this path.
func (s *LeadStore) Persist(ctx context.Context, lead *mapper.NormalizedLead) (string, error) {
	fields, err := json.Marshal(lead.Fields)
	if err != nil {
		return "", fmt.Errorf("failed to encode lead fields: %w", err)
	}
	norms, err := json.Marshal(lead.Norms)
	if err != nil {
		return "", fmt.Errorf("failed to encode lead norms: %w", err)
	}

	id := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO leads (id, branch_id, fields, norms, origin, origin_id, row_number, ingested_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, lead.BranchID, fields, norms,
		string(lead.Source.Origin), lead.Source.OriginID, lead.Source.RowNumber, lead.Source.IngestedAt,
	)
	if err != nil {
		return "", fmt.Errorf("failed to persist lead: %w", err)
	}

	s.logger.Debug("lead persisted", map[string]interface{}{
		"leadId":   id,
		"branchId": lead.BranchID,
	})
	return id, nil
}

// CheckUnique reports whether a normalized value is unused for a branch
// field across persisted leads. Uniqueness is scoped per branch per field.
func (s *LeadStore) CheckUnique(ctx context.Context, branchID, fieldKey, normalizedValue string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM leads WHERE branch_id = $1 AND norms->>$2 = $3)",
		branchID, fieldKey, normalizedValue,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("uniqueness check failed: %w", err)
	}
	return !exists, nil
}

// Get loads one persisted lead by identifier.
func (s *LeadStore) Get(ctx context.Context, leadID string) (*mapper.NormalizedLead, error) {
	var (
		lead          mapper.NormalizedLead
		fields, norms []byte
		origin        string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, branch_id, fields, norms, origin, origin_id, row_number, ingested_at
		 FROM leads WHERE id = $1`, leadID,
	).Scan(
		&lead.ID, &lead.BranchID, &fields, &norms,
		&origin, &lead.Source.OriginID, &lead.Source.RowNumber, &lead.Source.IngestedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewLeadNotFoundError(leadID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lead: %w", err)
	}

	if err := json.Unmarshal(fields, &lead.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode lead fields: %w", err)
	}
	if err := json.Unmarshal(norms, &lead.Norms); err != nil {
		return nil, fmt.Errorf("failed to decode lead norms: %w", err)
	}
	lead.Source.Origin = mapper.Origin(origin)
	return &lead, nil
}
