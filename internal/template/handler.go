package template

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnistore/service/internal/provider"
	"github.com/omnistore/service/internal/response"
)

// Handler holds HTTP handlers for template endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new template Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type templateRequest struct {
	Code                string   `json:"code" example:"s3"`
	Name                string   `json:"name" example:"S3 Compatible Storage"`
	Description         string   `json:"description,omitempty"`
	SupportedExtensions []string `json:"supportedExtensions"`
	Fields              []Field  `json:"fields"`
}

func (req *templateRequest) toTemplate() *Template {
	return &Template{
		Code:                req.Code,
		Name:                req.Name,
		Description:         req.Description,
		SupportedExtensions: req.SupportedExtensions,
		Fields:              req.Fields,
	}
}

// List godoc
//
//	@Summary		List templates
//	@Description	Return all provider templates, including ones without an implemented backend.
//	@Tags			provider-templates
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]Template}
//	@Failure		500	{object}	response.Envelope
//	@Router			/provider-templates [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.List(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, templates)
}

// Available godoc
//
//	@Summary		List available templates
//	@Description	Return only the templates whose provider code has an implementation.
//	@Tags			provider-templates
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]Template}
//	@Failure		500	{object}	response.Envelope
//	@Router			/provider-templates/available [get]
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	templates, err := h.svc.Available(r.Context())
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, templates)
}

// Get godoc
//
//	@Summary		Get template
//	@Tags			provider-templates
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Template ID"
//	@Success		200	{object}	response.Envelope{data=Template}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/provider-templates/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "template not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, t)
}

// Create godoc
//
//	@Summary		Create template
//	@Description	Register a template for an implemented provider code.
//	@Tags			provider-templates
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		templateRequest	true	"Template definition"
//	@Success		201		{object}	response.Envelope{data=Template}
//	@Failure		400		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/provider-templates [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	created, err := h.svc.Create(r.Context(), req.toTemplate())
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.Created(w, created)
}

// Update godoc
//
//	@Summary		Update template
//	@Tags			provider-templates
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string			true	"Template ID"
//	@Param			request	body		templateRequest	true	"Template definition"
//	@Success		200		{object}	response.Envelope{data=Template}
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/provider-templates/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	updated, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), req.toTemplate())
	if err != nil {
		h.writeError(w, err)
		return
	}
	response.OK(w, updated)
}

// Delete godoc
//
//	@Summary		Delete template
//	@Tags			provider-templates
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Template ID"
//	@Success		200	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/provider-templates/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "template not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, map[string]bool{"deleted": true})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, provider.ErrNotImplemented):
		response.BadRequest(w, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "template not found")
	case errors.Is(err, ErrCodeTaken):
		response.Conflict(w, "template code already in use")
	default:
		response.InternalError(w)
	}
}
