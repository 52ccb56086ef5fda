// Package stream proxies byte-range reads of uploaded files through the
// backend that holds them.
package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/omnistore/service/internal/file"
	"github.com/omnistore/service/internal/instance"
	"github.com/omnistore/service/internal/provider"
)

// ErrNoStreaming is returned when the link's provider cannot serve reads.
var ErrNoStreaming = errors.New("provider does not support streaming")

// ErrNoLink is returned when the file has no upload link for the requested
// provider instance.
var ErrNoLink = errors.New("no upload link for provider")

// InstanceSource resolves and decrypts provider instances for the proxy.
type InstanceSource interface {
	Get(ctx context.Context, id, userID string) (*instance.Instance, error)
	Decrypt(inst *instance.Instance) (provider.Credentials, error)
}

// Service resolves a file and provider to a live backend byte stream.
// It never mutates the file record.
type Service struct {
	files     file.Repository
	instances InstanceSource
	registry  *provider.Registry
}

// NewService creates a new stream Service.
func NewService(files file.Repository, instances InstanceSource, registry *provider.Registry) *Service {
	return &Service{files: files, instances: instances, registry: registry}
}

// Open locates the file's link for the given provider instance and opens a
// (possibly ranged) read through its backend. An empty providerID selects
// the file's first link. The caller must close the result body.
func (s *Service) Open(ctx context.Context, fileID, providerID, userID, rangeHeader string) (*provider.StreamResult, error) {
	rec, err := s.files.GetOwned(ctx, fileID, userID)
	if err != nil {
		return nil, err
	}

	link, err := pickLink(rec, providerID)
	if err != nil {
		return nil, err
	}

	streamer, ok := s.registry.Streamer(link.ProviderCode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStreaming, link.ProviderCode)
	}

	inst, err := s.instances.Get(ctx, link.ProviderID, userID)
	if err != nil {
		return nil, err
	}
	creds, err := s.instances.Decrypt(inst)
	if err != nil {
		return nil, err
	}

	return streamer.GetStream(ctx, provider.StreamInput{
		Credentials: creds,
		Metadata:    provider.Metadata(link.Metadata),
		Range:       rangeHeader,
	})
}

func pickLink(rec *file.FileRecord, providerID string) (*file.UploadLink, error) {
	if len(rec.Links) == 0 {
		return nil, ErrNoLink
	}
	if providerID == "" {
		return &rec.Links[0], nil
	}
	for i := range rec.Links {
		if rec.Links[i].ProviderID == providerID {
			return &rec.Links[i], nil
		}
	}
	return nil, ErrNoLink
}
