package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists templates in the provider_templates table.
// Field descriptors are stored as a jsonb document.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository with the given pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const templateColumns = `id, code, name, description, supported_extensions, fields, created_at, updated_at`

func scanTemplate(row pgx.Row) (*Template, error) {
	t := &Template{}
	var fields []byte
	err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Description, &t.SupportedExtensions, &fields, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &t.Fields); err != nil {
		return nil, fmt.Errorf("decode template fields: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) collect(rows pgx.Rows) ([]Template, error) {
	defer rows.Close()
	var out []Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// List returns all templates.
func (r *PostgresRepository) List(ctx context.Context) ([]Template, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+templateColumns+` FROM provider_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return r.collect(rows)
}

// Get fetches a template by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Template, error) {
	t, err := scanTemplate(r.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM provider_templates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

// ListByCodes returns the templates whose code is in the given set.
func (r *PostgresRepository) ListByCodes(ctx context.Context, codes []string) ([]Template, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+templateColumns+` FROM provider_templates WHERE code = ANY($1) ORDER BY name`,
		codes)
	if err != nil {
		return nil, fmt.Errorf("list templates by codes: %w", err)
	}
	return r.collect(rows)
}

// Create inserts a new template and returns the stored record.
func (r *PostgresRepository) Create(ctx context.Context, t *Template) (*Template, error) {
	fields, err := json.Marshal(fieldsOrEmpty(t.Fields))
	if err != nil {
		return nil, fmt.Errorf("encode template fields: %w", err)
	}

	created, err := scanTemplate(r.db.QueryRow(ctx,
		`INSERT INTO provider_templates (code, name, description, supported_extensions, fields)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+templateColumns,
		t.Code, t.Name, t.Description, t.SupportedExtensions, fields))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCodeTaken
		}
		return nil, fmt.Errorf("create template: %w", err)
	}
	return created, nil
}

// Update replaces a template's mutable attributes.
func (r *PostgresRepository) Update(ctx context.Context, id string, t *Template) (*Template, error) {
	fields, err := json.Marshal(fieldsOrEmpty(t.Fields))
	if err != nil {
		return nil, fmt.Errorf("encode template fields: %w", err)
	}

	updated, err := scanTemplate(r.db.QueryRow(ctx,
		`UPDATE provider_templates
		 SET code = $2, name = $3, description = $4, supported_extensions = $5, fields = $6, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+templateColumns,
		id, t.Code, t.Name, t.Description, t.SupportedExtensions, fields))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrCodeTaken
		}
		return nil, fmt.Errorf("update template: %w", err)
	}
	return updated, nil
}

// Delete removes a template by id.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM provider_templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func fieldsOrEmpty(fields []Field) []Field {
	if fields == nil {
		return []Field{}
	}
	return fields
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
