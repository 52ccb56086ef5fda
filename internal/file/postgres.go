package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository persists file records in the files table and their
// links in upload_links. Links load with their file, ordered by insertion.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository with the given pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const fileColumns = `id, user_id, original_name, folder_id, category, status, error_message, created_at, updated_at`

func scanFile(row pgx.Row) (*FileRecord, error) {
	rec := &FileRecord{}
	err := row.Scan(&rec.ID, &rec.UserID, &rec.OriginalName, &rec.FolderID,
		&rec.Category, &rec.Status, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Create inserts a new pending file record.
func (r *PostgresRepository) Create(ctx context.Context, rec *FileRecord) (*FileRecord, error) {
	created, err := scanFile(r.db.QueryRow(ctx,
		`INSERT INTO files (id, user_id, original_name, folder_id, category)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+fileColumns,
		rec.ID, rec.UserID, rec.OriginalName, rec.FolderID, rec.Category))
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	created.Links = []UploadLink{}
	return created, nil
}

// GetByID fetches a file record with its links, unscoped. Used by the
// orchestrators, which already run on behalf of a validated owner.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*FileRecord, error) {
	return r.get(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
}

// GetOwned fetches a file record with its links, scoped to its owner.
func (r *PostgresRepository) GetOwned(ctx context.Context, id, userID string) (*FileRecord, error) {
	return r.get(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1 AND user_id = $2`, id, userID)
}

func (r *PostgresRepository) get(ctx context.Context, query string, args ...any) (*FileRecord, error) {
	rec, err := scanFile(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	if err := r.loadLinks(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *PostgresRepository) loadLinks(ctx context.Context, rec *FileRecord) error {
	rows, err := r.db.Query(ctx,
		`SELECT provider_code, provider_instance_id, url, thumbnail, metadata
		 FROM upload_links WHERE file_id = $1 ORDER BY id`, rec.ID)
	if err != nil {
		return fmt.Errorf("load links: %w", err)
	}
	defer rows.Close()

	rec.Links = []UploadLink{}
	for rows.Next() {
		var link UploadLink
		var metadata []byte
		if err := rows.Scan(&link.ProviderCode, &link.ProviderID, &link.URL, &link.Thumbnail, &metadata); err != nil {
			return fmt.Errorf("scan link: %w", err)
		}
		if err := json.Unmarshal(metadata, &link.Metadata); err != nil {
			return fmt.Errorf("decode link metadata: %w", err)
		}
		rec.Links = append(rec.Links, link)
	}
	return rows.Err()
}

// Delete removes a file record. Its links go with it via the FK cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachLink appends an upload link and marks the file completed. The
// unique constraint on (file_id, provider_instance_id) keeps a repeated
// upload through the same instance from producing a second link; the
// newer result wins.
func (r *PostgresRepository) AttachLink(ctx context.Context, fileID string, link UploadLink) error {
	metadata, err := json.Marshal(link.Metadata)
	if err != nil {
		return fmt.Errorf("encode link metadata: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("attach link: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO upload_links (file_id, provider_code, provider_instance_id, url, thumbnail, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (file_id, provider_instance_id)
		 DO UPDATE SET url = EXCLUDED.url, thumbnail = EXCLUDED.thumbnail, metadata = EXCLUDED.metadata`,
		fileID, link.ProviderCode, link.ProviderID, link.URL, link.Thumbnail, metadata)
	if err != nil {
		return fmt.Errorf("insert link: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE files SET status = $2, error_message = NULL, updated_at = NOW() WHERE id = $1`,
		fileID, StatusCompleted)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return tx.Commit(ctx)
}

// RemoveLink deletes the link for one (file, instance) pair.
func (r *PostgresRepository) RemoveLink(ctx context.Context, fileID, providerInstanceID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM upload_links WHERE file_id = $1 AND provider_instance_id = $2`,
		fileID, providerInstanceID)
	if err != nil {
		return fmt.Errorf("remove link: %w", err)
	}
	return nil
}

// MarkFailed sets a pending file to failed. A completed file stays
// completed, the status is monotone.
func (r *PostgresRepository) MarkFailed(ctx context.Context, fileID, message string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE files SET status = $2, error_message = $3, updated_at = NOW()
		 WHERE id = $1 AND status = $4`,
		fileID, StatusFailed, message, StatusPending)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

// UpsertFolder returns the folder with the given name, creating it on
// first reference.
func (r *PostgresRepository) UpsertFolder(ctx context.Context, name string) (*Folder, error) {
	folder := &Folder{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO folders (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name`, name).Scan(&folder.ID, &folder.Name)
	if err != nil {
		return nil, fmt.Errorf("upsert folder: %w", err)
	}
	return folder, nil
}

// ListFolders returns the folders holding the user's files, with completed
// file counts and the most recent thumbnail.
func (r *PostgresRepository) ListFolders(ctx context.Context, userID string) ([]FolderStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT fo.id, fo.name,
		        COUNT(fi.id) FILTER (WHERE fi.status = 'completed'),
		        COUNT(fi.id) FILTER (WHERE fi.status = 'completed' AND fi.category = 'image'),
		        COUNT(fi.id) FILTER (WHERE fi.status = 'completed' AND fi.category = 'video'),
		        COALESCE((
		            SELECT ul.thumbnail
		            FROM upload_links ul
		            JOIN files lf ON lf.id = ul.file_id
		            WHERE lf.folder_id = fo.id AND lf.user_id = $1 AND ul.thumbnail <> ''
		            ORDER BY ul.created_at DESC
		            LIMIT 1
		        ), '')
		 FROM folders fo
		 JOIN files fi ON fi.folder_id = fo.id AND fi.user_id = $1
		 GROUP BY fo.id, fo.name
		 ORDER BY fo.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var out []FolderStats
	for rows.Next() {
		var fs FolderStats
		if err := rows.Scan(&fs.ID, &fs.Name, &fs.FileCount, &fs.ImageCount, &fs.VideoCount, &fs.LatestThumbnail); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}

// FolderFiles returns the user's completed files in a folder, optionally
// filtered by category, with links loaded.
func (r *PostgresRepository) FolderFiles(ctx context.Context, folderID, userID, category string) ([]FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files
	          WHERE folder_id = $1 AND user_id = $2 AND status = 'completed'`
	args := []any{folderID, userID}
	if category != "" {
		query += ` AND category = $3`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list folder files: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := r.loadLinks(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RemoveLinksForInstance strips every link referencing the instance and
// returns the number of files touched. File statuses are left as they are;
// only future uploads through the instance are prevented.
func (r *PostgresRepository) RemoveLinksForInstance(ctx context.Context, instanceID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`WITH removed AS (
		     DELETE FROM upload_links WHERE provider_instance_id = $1 RETURNING file_id
		 )
		 SELECT COUNT(DISTINCT file_id) FROM removed`, instanceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("remove instance links: %w", err)
	}
	return count, nil
}
