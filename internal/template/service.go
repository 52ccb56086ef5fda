package template

import (
	"context"
	"errors"
	"fmt"

	"github.com/omnistore/service/internal/provider"
)

// ErrValidation is returned for template or credential validation failures.
var ErrValidation = errors.New("validation failed")

// Service enforces the catalog invariant: a template's code must always
// resolve to an implemented provider capability.
type Service struct {
	repo     Repository
	registry *provider.Registry
}

// NewService creates a new template Service.
func NewService(repo Repository, registry *provider.Registry) *Service {
	return &Service{repo: repo, registry: registry}
}

// List returns all templates, including ones whose provider has no
// implementation yet (visible for administration, not instantiable).
func (s *Service) List(ctx context.Context) ([]Template, error) {
	return s.repo.List(ctx)
}

// Get returns a template by id.
func (s *Service) Get(ctx context.Context, id string) (*Template, error) {
	return s.repo.Get(ctx, id)
}

// Available returns only the templates whose code has a registered
// capability, i.e. the ones a provider instance can be created from.
func (s *Service) Available(ctx context.Context) ([]Template, error) {
	return s.repo.ListByCodes(ctx, s.registry.Codes())
}

// AvailableCodes returns the provider codes with an implementation.
func (s *Service) AvailableCodes() []string {
	return s.registry.Codes()
}

// Create stores a new template. The code must belong to an implemented
// provider; violations fail without any write.
func (s *Service) Create(ctx context.Context, t *Template) (*Template, error) {
	if err := s.checkCode(t.Code); err != nil {
		return nil, err
	}
	return s.repo.Create(ctx, t)
}

// Update replaces a template. The (possibly changed) code must still
// belong to an implemented provider; violations fail without any write.
func (s *Service) Update(ctx context.Context, id string, t *Template) (*Template, error) {
	if err := s.checkCode(t.Code); err != nil {
		return nil, err
	}
	return s.repo.Update(ctx, id, t)
}

// Delete removes a template by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) checkCode(code string) error {
	if code == "" {
		return fmt.Errorf("%w: template code is required", ErrValidation)
	}
	if !s.registry.Available(code) {
		return fmt.Errorf("%w for code %q", provider.ErrNotImplemented, code)
	}
	return nil
}

// ValidateCredentials checks that every required field declared by the
// template is present and non-empty in the submitted credential map. It
// checks presence only, not value shape.
func ValidateCredentials(t *Template, config map[string]string) error {
	for _, field := range t.Fields {
		if !field.Required {
			continue
		}
		if config[field.Key] == "" {
			return fmt.Errorf("%w: required field %q is missing", ErrValidation, field.Key)
		}
	}
	return nil
}
