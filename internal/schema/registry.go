package schema

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "lead-engine/internal/common/errors"
	"lead-engine/internal/common/logger"
)

// Registry is the read side of the schema store consumed by the engine.
// GetMappings returns an empty slice, not an error, for a configured-but-empty
// branch; only an unknown branch identifier is an error.
type Registry interface {
	GetBranch(ctx context.Context, branchID string) (*Branch, error)
	GetMappings(ctx context.Context, branchID string) ([]FieldMapping, error)
}

// IsNotFound reports whether err is a branch-not-found registry error.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return apperrors.AsStandard(err).Code == apperrors.ErrCodeBranchNotFound
}

// PostgresRegistry is the relational implementation of the schema registry,
// including the admin write side used by the back office.
type PostgresRegistry struct {
	db     *sql.DB
	logger logger.Logger

	// invalidate is called after every write with the affected branch id.
	invalidate func(ctx context.Context, branchID string)
}

func NewPostgresRegistry(db *sql.DB, log logger.Logger) *PostgresRegistry {
	return &PostgresRegistry{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "schema-registry"}),
	}
}

// OnWrite registers a hook invoked after every registry write. Used by the
// cache layer to drop stale entries.
func (r *PostgresRegistry) OnWrite(fn func(ctx context.Context, branchID string)) {
	r.invalidate = fn
}

func (r *PostgresRegistry) notifyWrite(ctx context.Context, branchID string) {
	if r.invalidate != nil {
		r.invalidate(ctx, branchID)
	}
}

const branchColumns = "id, machine_name, display_name, active, icon, email_template, created_at"

func (r *PostgresRegistry) GetBranch(ctx context.Context, branchID string) (*Branch, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM branches WHERE id::text = $1 OR machine_name = $1", branchColumns)

	var b Branch
	err := r.db.QueryRowContext(ctx, query, branchID).Scan(
		&b.ID, &b.MachineName, &b.DisplayName, &b.Active, &b.Icon, &b.EmailTemplate, &b.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewBranchNotFoundError(branchID)
	}
	if err != nil {
		return nil, apperrors.NewMappingFetchError(branchID, err)
	}
	return &b, nil
}

func (r *PostgresRegistry) GetMappings(ctx context.Context, branchID string) ([]FieldMapping, error) {
	branch, err := r.GetBranch(ctx, branchID)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, branch_id, source_column, field_key, label, field_type,
		required, is_unique, pattern, show_in_list, show_in_detail,
		include_in_email, email_priority, help_text, sort_order
		FROM field_mappings WHERE branch_id = $1 ORDER BY sort_order ASC`

	rows, err := r.db.QueryContext(ctx, query, branch.ID)
	if err != nil {
		return nil, apperrors.NewMappingFetchError(branchID, err)
	}
	defer rows.Close()

	mappings := []FieldMapping{}
	for rows.Next() {
		var m FieldMapping
		if err := rows.Scan(
			&m.ID, &m.BranchID, &m.SourceColumn, &m.FieldKey, &m.Label, &m.Type,
			&m.Required, &m.Unique, &m.Pattern, &m.ShowInList, &m.ShowInDetail,
			&m.IncludeInEmail, &m.EmailPriority, &m.HelpText, &m.SortOrder,
		); err != nil {
			return nil, apperrors.NewMappingFetchError(branchID, err)
		}
		mappings = append(mappings, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewMappingFetchError(branchID, err)
	}
	return mappings, nil
}

// CreateBranch inserts a new branch. The machine name is derived from the
// display name here, once, and stored.
func (r *PostgresRegistry) CreateBranch(ctx context.Context, displayName, icon, emailTemplate string) (*Branch, error) {
	b := &Branch{
		ID:            uuid.New().String(),
		MachineName:   MachineName(displayName),
		DisplayName:   displayName,
		Active:        true,
		Icon:          icon,
		EmailTemplate: emailTemplate,
		CreatedAt:     time.Now().UTC(),
	}
	if b.MachineName == "" {
		return nil, fmt.Errorf("display name %q produces an empty machine name", displayName)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO branches (id, machine_name, display_name, active, icon, email_template, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.MachineName, b.DisplayName, b.Active, b.Icon, b.EmailTemplate, b.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create branch: %w", err)
	}

	r.logger.Info("branch created", map[string]interface{}{
		"branchId":    b.ID,
		"machineName": b.MachineName,
	})
	r.notifyWrite(ctx, b.ID)
	return b, nil
}

// SaveMapping inserts or updates one field mapping. The field key must be
// unique within the branch; the upsert keys on (branch_id, field_key).
func (r *PostgresRegistry) SaveMapping(ctx context.Context, m FieldMapping) (*FieldMapping, error) {
	if !ValidFieldType(m.Type) {
		return nil, fmt.Errorf("unknown field type %q", m.Type)
	}
	if m.FieldKey == "" {
		return nil, fmt.Errorf("field key is required")
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO field_mappings (id, branch_id, source_column, field_key, label, field_type,
			required, is_unique, pattern, show_in_list, show_in_detail,
			include_in_email, email_priority, help_text, sort_order)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (branch_id, field_key) DO UPDATE SET
			source_column = EXCLUDED.source_column,
			label = EXCLUDED.label,
			field_type = EXCLUDED.field_type,
			required = EXCLUDED.required,
			is_unique = EXCLUDED.is_unique,
			pattern = EXCLUDED.pattern,
			show_in_list = EXCLUDED.show_in_list,
			show_in_detail = EXCLUDED.show_in_detail,
			include_in_email = EXCLUDED.include_in_email,
			email_priority = EXCLUDED.email_priority,
			help_text = EXCLUDED.help_text,
			sort_order = EXCLUDED.sort_order`,
		m.ID, m.BranchID, m.SourceColumn, m.FieldKey, m.Label, m.Type,
		m.Required, m.Unique, m.Pattern, m.ShowInList, m.ShowInDetail,
		m.IncludeInEmail, m.EmailPriority, m.HelpText, m.SortOrder,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save mapping: %w", err)
	}

	r.logger.Info("field mapping saved", map[string]interface{}{
		"branchId": m.BranchID,
		"fieldKey": m.FieldKey,
	})
	r.notifyWrite(ctx, m.BranchID)
	return &m, nil
}

// DeactivateBranch soft-deactivates a branch. Mappings and leads referencing
// it are left in place.
func (r *PostgresRegistry) DeactivateBranch(ctx context.Context, branchID string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE branches SET active = false WHERE id::text = $1 OR machine_name = $1", branchID)
	if err != nil {
		return fmt.Errorf("failed to deactivate branch: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewBranchNotFoundError(branchID)
	}

	r.logger.Info("branch deactivated", map[string]interface{}{"branchId": branchID})
	r.notifyWrite(ctx, branchID)
	return nil
}
