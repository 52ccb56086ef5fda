package instance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists instances in the storage_providers table.
// The encrypted credential map and its masked copy are jsonb documents.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository with the given pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const instanceColumns = `id, user_id, name, code, template_id, config, config_last_chars,
	supported_extensions, is_active, last_connection_check, is_connection_healthy,
	connection_error, created_at, updated_at`

func scanInstance(row pgx.Row) (*Instance, error) {
	inst := &Instance{}
	var config, lastChars []byte
	err := row.Scan(&inst.ID, &inst.UserID, &inst.Name, &inst.Code, &inst.TemplateID,
		&config, &lastChars, &inst.SupportedExtensions, &inst.IsActive,
		&inst.LastConnectionCheck, &inst.IsConnectionHealthy, &inst.ConnectionError,
		&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(config, &inst.Config); err != nil {
		return nil, fmt.Errorf("decode instance config: %w", err)
	}
	if err := json.Unmarshal(lastChars, &inst.ConfigLastChars); err != nil {
		return nil, fmt.Errorf("decode instance config display copy: %w", err)
	}
	return inst, nil
}

func collectInstances(rows pgx.Rows) ([]Instance, error) {
	defer rows.Close()
	var out []Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, rows.Err()
}

// Create inserts a new instance and returns the stored record.
func (r *PostgresRepository) Create(ctx context.Context, inst *Instance) (*Instance, error) {
	config, err := json.Marshal(inst.Config)
	if err != nil {
		return nil, fmt.Errorf("encode instance config: %w", err)
	}
	lastChars, err := json.Marshal(inst.ConfigLastChars)
	if err != nil {
		return nil, fmt.Errorf("encode instance config display copy: %w", err)
	}

	created, err := scanInstance(r.db.QueryRow(ctx,
		`INSERT INTO storage_providers (user_id, name, code, template_id, config, config_last_chars, supported_extensions)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+instanceColumns,
		inst.UserID, inst.Name, inst.Code, inst.TemplateID, config, lastChars, inst.SupportedExtensions))
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}
	return created, nil
}

// Get fetches an instance by id, scoped to its owner.
func (r *PostgresRepository) Get(ctx context.Context, id, userID string) (*Instance, error) {
	inst, err := scanInstance(r.db.QueryRow(ctx,
		`SELECT `+instanceColumns+` FROM storage_providers WHERE id = $1 AND user_id = $2`,
		id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return inst, nil
}

// List returns all instances owned by the user.
func (r *PostgresRepository) List(ctx context.Context, userID string) ([]Instance, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+instanceColumns+` FROM storage_providers WHERE user_id = $1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return collectInstances(rows)
}

// ByIDs returns the owner's instances whose id is in the given set. Ids
// that do not exist or belong to another user are simply absent from the
// result. Row order is unspecified; ids must be well-formed UUIDs or the
// array parameter fails to encode. The service layer filters and reorders.
func (r *PostgresRepository) ByIDs(ctx context.Context, ids []string, userID string) ([]Instance, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+instanceColumns+` FROM storage_providers WHERE id = ANY($1) AND user_id = $2`,
		ids, userID)
	if err != nil {
		return nil, fmt.Errorf("list instances by ids: %w", err)
	}
	return collectInstances(rows)
}

// UpdateConnectionStatus persists the outcome of a health check.
func (r *PostgresRepository) UpdateConnectionStatus(ctx context.Context, id string, status ConnectionStatus) error {
	var connErr *string
	if status.Error != "" {
		connErr = &status.Error
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE storage_providers
		 SET last_connection_check = $2, is_connection_healthy = $3, connection_error = $4, updated_at = NOW()
		 WHERE id = $1`,
		id, status.CheckedAt, status.IsHealthy, connErr)
	if err != nil {
		return fmt.Errorf("update connection status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an instance, scoped to its owner.
func (r *PostgresRepository) Delete(ctx context.Context, id, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM storage_providers WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
