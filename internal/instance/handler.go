package instance

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnistore/service/internal/middleware"
	"github.com/omnistore/service/internal/provider"
	"github.com/omnistore/service/internal/response"
	"github.com/omnistore/service/internal/template"
)

// Handler holds HTTP handlers for storage provider endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new instance Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type createRequest struct {
	TemplateID string            `json:"templateId" example:"8f14e45f-ceea-4e07-8d5b-1b2f8c2a9b11"`
	Name       string            `json:"name"       example:"My S3 bucket"`
	Config     map[string]string `json:"config"`
}

// Create godoc
//
//	@Summary		Create storage provider
//	@Description	Instantiate a provider from a template with raw credentials. Credentials are stored encrypted.
//	@Tags			storage-providers
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		createRequest	true	"Instance definition"
//	@Success		201		{object}	response.Envelope{data=Instance}
//	@Failure		400		{object}	response.Envelope
//	@Failure		404		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/storage-providers [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.Name == "" {
		response.BadRequest(w, "name is required")
		return
	}

	inst, err := h.svc.CreateFromTemplate(r.Context(), middleware.UserID(r.Context()), CreateInput{
		TemplateID: req.TemplateID,
		Name:       req.Name,
		Config:     req.Config,
	})
	if err != nil {
		switch {
		case errors.Is(err, template.ErrNotFound):
			response.NotFound(w, "template not found")
		case errors.Is(err, template.ErrValidation), errors.Is(err, provider.ErrNotImplemented):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w)
		}
		return
	}
	response.Created(w, inst)
}

// List godoc
//
//	@Summary		List storage providers
//	@Tags			storage-providers
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]Instance}
//	@Failure		500	{object}	response.Envelope
//	@Router			/storage-providers [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	instances, err := h.svc.List(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, instances)
}

// Get godoc
//
//	@Summary		Get storage provider
//	@Tags			storage-providers
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Instance ID"
//	@Success		200	{object}	response.Envelope{data=Instance}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/storage-providers/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	inst, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), middleware.UserID(r.Context()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "storage provider not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, inst)
}

// TestConnection godoc
//
//	@Summary		Test storage provider connection
//	@Description	Run a health check against the backend and persist the result.
//	@Tags			storage-providers
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Instance ID"
//	@Success		200	{object}	response.Envelope{data=provider.ConnectionResult}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/storage-providers/{id}/test-connection [post]
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.TestConnection(r.Context(), chi.URLParam(r, "id"), middleware.UserID(r.Context()))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			response.NotFound(w, "storage provider not found")
		case errors.Is(err, provider.ErrNotImplemented):
			response.BadRequest(w, err.Error())
		default:
			response.InternalError(w)
		}
		return
	}
	response.OK(w, result)
}

type deleteData struct {
	FilesUpdated int `json:"filesUpdated"`
}

// Delete godoc
//
//	@Summary		Delete storage provider
//	@Description	Remove the instance and strip its upload links from all files. Remote content is not deleted.
//	@Tags			storage-providers
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Instance ID"
//	@Success		200	{object}	response.Envelope{data=deleteData}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/storage-providers/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	count, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), middleware.UserID(r.Context()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "storage provider not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, deleteData{FilesUpdated: count})
}
