// Package ingest drives the row mapper over a full input batch.
package ingest

import (
	"context"
	"fmt"
	"time"

	apperrors "lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
	"lead-engine/internal/common/metrics"
	"lead-engine/internal/common/observability"
	"lead-engine/internal/mapper"
	"lead-engine/internal/rules"
	"lead-engine/internal/schema"
)

// RuleStoreUnavailable marks a rejection caused by an exhausted store
// retry, not by the row's own data.
const RuleStoreUnavailable = "store_unavailable"

// UniqueChecker is the persisted-uniqueness collaborator. It reports
// whether a normalized value is still unused for a branch field across
// previously persisted leads.
type UniqueChecker interface {
	CheckUnique(ctx context.Context, branchID, fieldKey, normalizedValue string) (bool, error)
}

// LeadStore persists accepted leads and returns their identifiers.
type LeadStore interface {
	Persist(ctx context.Context, lead *mapper.NormalizedLead) (string, error)
}

// Ingestor runs batches against a branch's mapping list. It is stateless
// across calls; the duplicate-detection set is scoped to one Ingest call.
type Ingestor struct {
	registry schema.Registry
	checker  UniqueChecker
	store    LeadStore
	retry    apperrors.RetryPolicy
	logger   logger.Logger
	obs      *observability.Observability
}

type Dependencies struct {
	Registry      schema.Registry
	UniqueChecker UniqueChecker
	LeadStore     LeadStore
	Logger        logger.Logger
	Observability *observability.Observability
}

func New(deps Dependencies, retry apperrors.RetryPolicy) *Ingestor {
	return &Ingestor{
		registry: deps.Registry,
		checker:  deps.UniqueChecker,
		store:    deps.LeadStore,
		retry:    retry,
		logger:   deps.Logger.WithFields(map[string]interface{}{"component": "ingestor"}),
		obs:      deps.Observability,
	}
}

// Ingest maps every record in input order and reports exactly one outcome
// per row. Only an unknown or inactive branch fails the whole run; row-level
// problems never abort the batch. On context cancellation the partial
// report built so far is returned alongside the context error.
func (i *Ingestor) Ingest(ctx context.Context, branchID string, records []mapper.RawRecord) (*Report, error) {
	started := time.Now().UTC()

	branch, err := i.registry.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}
	if !branch.Active {
		return nil, apperrors.NewBranchInactiveError(branchID)
	}

	mappings, err := i.registry.GetMappings(ctx, branch.ID)
	if err != nil {
		return nil, err
	}

	log := i.logger.WithFields(map[string]interface{}{
		"branchId": branch.ID,
		"branch":   branch.MachineName,
	})
	log.Info("starting batch ingestion", map[string]interface{}{
		"records":  len(records),
		"mappings": len(mappings),
	})

	report := &Report{BranchID: branch.ID, Rows: []RowOutcome{}, StartedAt: started}

	// seen holds normalized values of unique fields from rows accepted in
	// this run. Owned by this call; never shared across concurrent runs.
	seen := make(map[string]map[string]bool)
	for _, m := range mappings {
		if m.Unique {
			seen[m.FieldKey] = make(map[string]bool)
		}
	}

	for n, record := range records {
		if ctx.Err() != nil {
			report.Duration = time.Since(started)
			return report, ctx.Err()
		}

		outcome := i.processRow(ctx, branch, mappings, record, n, seen)
		report.append(outcome)

		metrics.IngestRowsTotal.WithLabelValues(branch.MachineName, string(outcome.Status)).Inc()
		if i.obs != nil {
			i.obs.RecordRowProcessed(ctx, branch.MachineName, string(outcome.Status))
		}
	}

	report.Duration = time.Since(started)
	metrics.IngestBatchesTotal.WithLabelValues(branch.MachineName).Inc()
	metrics.IngestBatchDuration.WithLabelValues(branch.MachineName).Observe(report.Duration.Seconds())
	if i.obs != nil {
		i.obs.RecordBatchDuration(ctx, branch.MachineName, report.Duration)
	}

	log.Info("batch ingestion finished", map[string]interface{}{
		"accepted":   report.Accepted,
		"rejected":   report.Rejected,
		"duplicates": report.Duplicates,
		"durationMs": report.Duration.Milliseconds(),
	})
	return report, nil
}

func (i *Ingestor) processRow(
	ctx context.Context,
	branch *schema.Branch,
	mappings []schema.FieldMapping,
	record mapper.RawRecord,
	row int,
	seen map[string]map[string]bool,
) RowOutcome {
	result := mapper.MapRow(record, branch.ID, mappings)
	if !result.Accepted() {
		return RowOutcome{Row: row, Status: StatusRejected, Failures: result.Failures}
	}
	lead := result.Lead

	// Uniqueness: in-batch first, then the persisted store. A collision is
	// a Duplicate, not a validation error of the row's own data.
	for _, m := range mappings {
		if !m.Unique {
			continue
		}
		norm, present := lead.Norms[m.FieldKey]
		if !present || norm == "" {
			continue
		}

		if seen[m.FieldKey][norm] {
			return RowOutcome{
				Row:            row,
				Status:         StatusDuplicate,
				DuplicateField: m.FieldKey,
				DuplicateValue: norm,
			}
		}

		var unused bool
		err := i.retry.Retry(ctx, func() error {
			var checkErr error
			unused, checkErr = i.checker.CheckUnique(ctx, branch.ID, m.FieldKey, norm)
			if checkErr != nil {
				metrics.StoreRetriesTotal.WithLabelValues("check_unique").Inc()
				return apperrors.NewStoreUnavailableError("check_unique", checkErr)
			}
			return nil
		})
		if err != nil {
			return i.storeUnavailableOutcome(row, m.FieldKey, err)
		}
		if !unused {
			return RowOutcome{
				Row:            row,
				Status:         StatusDuplicate,
				DuplicateField: m.FieldKey,
				DuplicateValue: norm,
			}
		}
	}

	var leadID string
	err := i.retry.Retry(ctx, func() error {
		id, persistErr := i.store.Persist(ctx, lead)
		if persistErr != nil {
			metrics.StoreRetriesTotal.WithLabelValues("persist").Inc()
			return apperrors.NewStoreUnavailableError("persist", persistErr)
		}
		leadID = id
		return nil
	})
	if err != nil {
		return i.storeUnavailableOutcome(row, "", err)
	}

	// Only rows that actually persisted claim their unique values.
	for _, m := range mappings {
		if m.Unique {
			if norm, ok := lead.Norms[m.FieldKey]; ok && norm != "" {
				seen[m.FieldKey][norm] = true
			}
		}
	}

	return RowOutcome{Row: row, Status: StatusAccepted, LeadID: leadID}
}

func (i *Ingestor) storeUnavailableOutcome(row int, fieldKey string, err error) RowOutcome {
	i.logger.Warn("store unavailable for row", map[string]interface{}{
		"row":   row,
		"error": err.Error(),
	})
	return RowOutcome{
		Row:    row,
		Status: StatusRejected,
		Failures: []rules.FieldFailure{{
			FieldKey: fieldKey,
			Rule:     RuleStoreUnavailable,
			Reason:   fmt.Sprintf("lead store unavailable: %v", err),
		}},
	}
}
