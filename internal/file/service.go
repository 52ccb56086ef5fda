package file

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Service contains the business logic for file records and folders.
type Service struct {
	repo Repository
}

// NewService creates a new file Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateRecord derives the file's category, lazily upserts the folder, and
// persists a pending record the orchestrator will fill in.
func (s *Service) CreateRecord(ctx context.Context, userID, originalName, folderName string) (*FileRecord, error) {
	category, err := CategoryForName(originalName)
	if err != nil {
		return nil, err
	}

	folder, err := s.repo.UpsertFolder(ctx, folderName)
	if err != nil {
		return nil, err
	}

	rec, err := s.repo.Create(ctx, &FileRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		OriginalName: originalName,
		FolderID:     folder.ID,
		Category:     category,
	})
	if err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}
	return rec, nil
}

// Get returns a file record scoped to its owner, links included.
func (s *Service) Get(ctx context.Context, id, userID string) (*FileRecord, error) {
	return s.repo.GetOwned(ctx, id, userID)
}

// ListFolders returns the user's folders with aggregate stats.
func (s *Service) ListFolders(ctx context.Context, userID string) ([]FolderStats, error) {
	return s.repo.ListFolders(ctx, userID)
}

// FolderFiles returns the user's completed files in a folder, optionally
// filtered by category.
func (s *Service) FolderFiles(ctx context.Context, folderID, userID, category string) ([]FileRecord, error) {
	return s.repo.FolderFiles(ctx, folderID, userID, category)
}
