// Package provider defines the capability contract implemented by every
// storage backend and the registry that resolves provider codes to
// implementations.
package provider

import (
	"context"
	"errors"
	"io"
)

// ErrNotImplemented is returned when a provider code has no registered
// capability.
var ErrNotImplemented = errors.New("provider service not implemented")

// Credentials is a decrypted, string-valued credential map as configured
// through a provider template.
type Credentials map[string]string

// Metadata is the provider-specific payload persisted with an upload link
// (remote key, filecode, size, etag, ...).
type Metadata map[string]any

// UploadInput carries everything a capability needs to place one file.
type UploadInput struct {
	Credentials  Credentials
	FilePath     string
	OriginalName string
	FileID       string
	FolderName   string
}

// UploadResult is returned by a capability after a successful upload.
type UploadResult struct {
	URL       string
	Thumbnail string
	Metadata  Metadata
}

// DeleteInput identifies a previously uploaded file on the backend.
type DeleteInput struct {
	Credentials Credentials
	Metadata    Metadata
}

// DeleteResult reports the outcome of a backend delete.
type DeleteResult struct {
	Success bool
	Error   string
}

// ConnectionResult reports the outcome of a connectivity check.
type ConnectionResult struct {
	IsHealthy bool
	Error     string
}

// StreamInput requests a (possibly ranged) read of an uploaded file.
type StreamInput struct {
	Credentials Credentials
	Metadata    Metadata
	// Range is the raw HTTP Range header value, e.g. "bytes=0-1023".
	// Empty means the whole object.
	Range string
}

// StreamResult carries a backend byte stream plus the headers needed to
// relay it. Body must be closed by the caller.
type StreamResult struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	AcceptRanges  bool
	ContentRange  string
	StatusCode    int
}

// Capability is the contract every storage backend implements.
type Capability interface {
	// Code returns the stable provider code this capability serves.
	Code() string

	Upload(ctx context.Context, in UploadInput) (*UploadResult, error)
	Delete(ctx context.Context, in DeleteInput) (*DeleteResult, error)
	TestConnection(ctx context.Context, creds Credentials) (*ConnectionResult, error)
}

// Streamer is the optional capability family for backends that can serve
// byte-range reads of uploaded content.
type Streamer interface {
	GetStream(ctx context.Context, in StreamInput) (*StreamResult, error)
}
