// Package file manages file records, their upload links, and folders.
package file

import (
	"context"
	"errors"
	"time"
)

// File statuses. Transitions are monotone from pending: a completed file
// never goes back to pending or failed.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// UploadLink records that a file was successfully placed on a provider
// instance, plus what is needed to retrieve or delete it there. Links are
// embedded in their file record and not independently addressable.
type UploadLink struct {
	ProviderCode string         `json:"providerCode"`
	ProviderID   string         `json:"providerId"`
	URL          string         `json:"url"`
	Thumbnail    string         `json:"thumbnail,omitempty"`
	Metadata     map[string]any `json:"metadata"`
}

// FileRecord tracks one uploaded file and its per-backend outcomes.
type FileRecord struct {
	ID           string       `json:"id"`
	UserID       string       `json:"-"`
	OriginalName string       `json:"originalName"`
	FolderID     string       `json:"folderId"`
	Category     string       `json:"category"`
	Status       string       `json:"status"`
	ErrorMessage *string      `json:"errorMessage,omitempty"`
	Links        []UploadLink `json:"links"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Folder groups files under a unique name. Folders are upserted lazily on
// first upload that references the name.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FolderStats is a folder plus aggregate counts for listing.
type FolderStats struct {
	Folder
	FileCount       int    `json:"fileCount"`
	ImageCount      int    `json:"imageCount"`
	VideoCount      int    `json:"videoCount"`
	LatestThumbnail string `json:"latestThumbnail,omitempty"`
}

// ErrNotFound is returned when a file or folder does not exist or is not
// owned by the requesting user.
var ErrNotFound = errors.New("file not found")

// Repository abstracts file, link, and folder persistence.
type Repository interface {
	Create(ctx context.Context, rec *FileRecord) (*FileRecord, error)
	GetByID(ctx context.Context, id string) (*FileRecord, error)
	GetOwned(ctx context.Context, id, userID string) (*FileRecord, error)
	Delete(ctx context.Context, id string) error

	AttachLink(ctx context.Context, fileID string, link UploadLink) error
	RemoveLink(ctx context.Context, fileID, providerInstanceID string) error
	MarkFailed(ctx context.Context, fileID, message string) error

	UpsertFolder(ctx context.Context, name string) (*Folder, error)
	ListFolders(ctx context.Context, userID string) ([]FolderStats, error)
	FolderFiles(ctx context.Context, folderID, userID, category string) ([]FileRecord, error)

	RemoveLinksForInstance(ctx context.Context, instanceID string) (int, error)
}
