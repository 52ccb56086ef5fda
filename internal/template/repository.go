// Package template manages provider templates: the credential-field schema
// and extension support declaration for each provider code.
package template

import (
	"context"
	"errors"
	"time"
)

// Option is one selectable value for a select-type field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field describes one credential input declared by a template.
type Field struct {
	Key          string   `json:"key"`
	Label        string   `json:"label"`
	Type         string   `json:"type"` // text | password | select | textarea
	Placeholder  string   `json:"placeholder,omitempty"`
	Required     bool     `json:"required"`
	Description  string   `json:"description,omitempty"`
	DefaultValue string   `json:"defaultValue,omitempty"`
	Options      []Option `json:"options,omitempty"`
}

// Template declares, per provider code, the required credential fields and
// the file extensions the provider supports.
type Template struct {
	ID                  string    `json:"id"`
	Code                string    `json:"code"`
	Name                string    `json:"name"`
	Description         string    `json:"description,omitempty"`
	SupportedExtensions []string  `json:"supportedExtensions"`
	Fields              []Field   `json:"fields"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when a template does not exist.
var ErrNotFound = errors.New("provider template not found")

// ErrCodeTaken is returned when a template for the code already exists.
var ErrCodeTaken = errors.New("template code already in use")

// Repository abstracts template persistence.
type Repository interface {
	List(ctx context.Context) ([]Template, error)
	Get(ctx context.Context, id string) (*Template, error)
	ListByCodes(ctx context.Context, codes []string) ([]Template, error)
	Create(ctx context.Context, t *Template) (*Template, error)
	Update(ctx context.Context, id string, t *Template) (*Template, error)
	Delete(ctx context.Context, id string) error
}
