package instance

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/omnistore/service/internal/provider"
	"github.com/omnistore/service/internal/template"
	"github.com/omnistore/service/internal/vault"
)

// LinkStripper removes the upload links that reference an instance. It is
// satisfied by the file store.
type LinkStripper interface {
	RemoveLinksForInstance(ctx context.Context, instanceID string) (int, error)
}

// Service contains the business logic for storage provider instances.
type Service struct {
	repo      Repository
	templates template.Repository
	registry  *provider.Registry
	vault     *vault.Vault
	links     LinkStripper
	logger    *slog.Logger
}

// NewService creates a new instance Service.
func NewService(repo Repository, templates template.Repository, registry *provider.Registry, v *vault.Vault, links LinkStripper, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		templates: templates,
		registry:  registry,
		vault:     v,
		links:     links,
		logger:    logger,
	}
}

// CreateInput carries the raw credentials submitted for a new instance.
type CreateInput struct {
	TemplateID string
	Name       string
	Config     map[string]string
}

// CreateFromTemplate instantiates a provider from its template. Raw
// credential values are encrypted before persistence; only the masked
// display copy stays readable. A best-effort health check runs after
// creation and its failure never fails the create.
func (s *Service) CreateFromTemplate(ctx context.Context, userID string, in CreateInput) (*Instance, error) {
	tmpl, err := s.templates.Get(ctx, in.TemplateID)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.Get(tmpl.Code); err != nil {
		return nil, err
	}
	if err := template.ValidateCredentials(tmpl, in.Config); err != nil {
		return nil, err
	}

	encrypted, err := s.vault.EncryptMap(in.Config)
	if err != nil {
		return nil, err
	}

	inst, err := s.repo.Create(ctx, &Instance{
		UserID:              userID,
		Name:                in.Name,
		Code:                tmpl.Code,
		TemplateID:          tmpl.ID,
		Config:              encrypted,
		ConfigLastChars:     vault.MaskMap(in.Config),
		SupportedExtensions: tmpl.SupportedExtensions,
	})
	if err != nil {
		return nil, err
	}

	// The raw credentials are still in hand here, so the initial health
	// check skips a decrypt round-trip.
	if err := s.checkConnection(ctx, inst, in.Config); err != nil {
		s.logger.Warn("initial health check failed",
			"instance_id", inst.ID, "code", inst.Code, "error", err)
	}
	return inst, nil
}

// Get returns an instance scoped to its owner.
func (s *Service) Get(ctx context.Context, id, userID string) (*Instance, error) {
	return s.repo.Get(ctx, id, userID)
}

// List returns all instances owned by the user.
func (s *Service) List(ctx context.Context, userID string) ([]Instance, error) {
	return s.repo.List(ctx, userID)
}

// ByIDs returns the owner's instances for the given id list, in the
// list's order. Malformed, unknown, and foreign ids are dropped silently;
// the database is free to return rows in any order, so the caller's
// ordering is restored here.
func (s *Service) ByIDs(ctx context.Context, ids []string, userID string) ([]Instance, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := uuid.Parse(id); err == nil {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return nil, nil
	}

	found, err := s.repo.ByIDs(ctx, valid, userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*Instance, len(found))
	for i := range found {
		byID[found[i].ID] = &found[i]
	}
	ordered := make([]Instance, 0, len(found))
	for _, id := range valid {
		if inst, ok := byID[id]; ok {
			ordered = append(ordered, *inst)
		}
	}
	return ordered, nil
}

// TestConnection runs a health check against the instance's backend and
// persists the outcome whether it passed or failed.
func (s *Service) TestConnection(ctx context.Context, id, userID string) (*provider.ConnectionResult, error) {
	inst, err := s.repo.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	creds, err := s.Decrypt(inst)
	if err != nil {
		result := &provider.ConnectionResult{IsHealthy: false, Error: err.Error()}
		_ = s.persistStatus(ctx, inst.ID, result)
		return result, nil
	}

	backend, err := s.registry.Get(inst.Code)
	if err != nil {
		result := &provider.ConnectionResult{IsHealthy: false, Error: err.Error()}
		_ = s.persistStatus(ctx, inst.ID, result)
		return result, nil
	}

	result, err := backend.TestConnection(ctx, creds)
	if err != nil {
		result = &provider.ConnectionResult{IsHealthy: false, Error: err.Error()}
	}
	if err := s.persistStatus(ctx, inst.ID, result); err != nil {
		s.logger.Warn("persist health check failed", "instance_id", inst.ID, "error", err)
	}
	return result, nil
}

// Delete removes an instance and strips its upload links from every file.
// Content already uploaded to the remote backend is left untouched; the
// links just stop resolving through this credential. Returns the number
// of links removed.
func (s *Service) Delete(ctx context.Context, id, userID string) (int, error) {
	if _, err := s.repo.Get(ctx, id, userID); err != nil {
		return 0, err
	}

	stripped, err := s.links.RemoveLinksForInstance(ctx, id)
	if err != nil {
		return 0, err
	}
	if err := s.repo.Delete(ctx, id, userID); err != nil {
		return stripped, err
	}
	return stripped, nil
}

// Decrypt returns the instance's credential map in plaintext. Callers must
// not persist or log the result.
func (s *Service) Decrypt(inst *Instance) (provider.Credentials, error) {
	decrypted, err := s.vault.DecryptMap(inst.Config)
	if err != nil {
		return nil, err
	}
	return provider.Credentials(decrypted), nil
}

func (s *Service) checkConnection(ctx context.Context, inst *Instance, creds map[string]string) error {
	backend, err := s.registry.Get(inst.Code)
	if err != nil {
		return err
	}
	result, err := backend.TestConnection(ctx, provider.Credentials(creds))
	if err != nil {
		result = &provider.ConnectionResult{IsHealthy: false, Error: err.Error()}
	}
	return s.persistStatus(ctx, inst.ID, result)
}

func (s *Service) persistStatus(ctx context.Context, id string, result *provider.ConnectionResult) error {
	return s.repo.UpdateConnectionStatus(ctx, id, ConnectionStatus{
		CheckedAt: time.Now(),
		IsHealthy: result.IsHealthy,
		Error:     result.Error,
	})
}
