// Package instance manages storage provider instances: a user's concrete,
// credentialed configuration of a provider code.
package instance

import (
	"context"
	"errors"
	"time"
)

// Instance is one configured storage provider. Config holds the encrypted
// credential values; ConfigLastChars holds the masked display copies.
type Instance struct {
	ID                  string            `json:"id"`
	UserID              string            `json:"-"`
	Name                string            `json:"name"`
	Code                string            `json:"code"`
	TemplateID          string            `json:"templateId"`
	Config              map[string]string `json:"-"`
	ConfigLastChars     map[string]string `json:"configLastChars"`
	SupportedExtensions []string          `json:"supportedExtensions"`
	IsActive            bool              `json:"isActive"`
	LastConnectionCheck *time.Time        `json:"lastConnectionCheck,omitempty"`
	IsConnectionHealthy *bool             `json:"isConnectionHealthy,omitempty"`
	ConnectionError     *string           `json:"connectionError,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// ErrNotFound is returned when an instance does not exist or is not owned
// by the requesting user.
var ErrNotFound = errors.New("storage provider not found")

// ConnectionStatus is the persisted outcome of a health check.
type ConnectionStatus struct {
	CheckedAt time.Time
	IsHealthy bool
	Error     string
}

// Repository abstracts instance persistence. All reads are scoped to the
// owning user.
type Repository interface {
	Create(ctx context.Context, inst *Instance) (*Instance, error)
	Get(ctx context.Context, id, userID string) (*Instance, error)
	List(ctx context.Context, userID string) ([]Instance, error)
	ByIDs(ctx context.Context, ids []string, userID string) ([]Instance, error)
	UpdateConnectionStatus(ctx context.Context, id string, status ConnectionStatus) error
	Delete(ctx context.Context, id, userID string) error
}
