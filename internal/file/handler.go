package file

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnistore/service/internal/middleware"
	"github.com/omnistore/service/internal/response"
)

// Handler holds HTTP handlers for file browsing endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new file Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ListFolders godoc
//
//	@Summary		List folders
//	@Description	Return the user's folders with file counts and the latest thumbnail.
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	response.Envelope{data=[]FolderStats}
//	@Failure		500	{object}	response.Envelope
//	@Router			/files/folders [get]
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := h.svc.ListFolders(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, folders)
}

// FolderFiles godoc
//
//	@Summary		List folder files
//	@Description	Return the completed files in a folder, optionally filtered by category.
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id			path		string	true	"Folder ID"
//	@Param			category	query		string	false	"Filter by category (image, video, document, audio)"
//	@Success		200			{object}	response.Envelope{data=[]FileRecord}
//	@Failure		500			{object}	response.Envelope
//	@Router			/files/folders/{id} [get]
func (h *Handler) FolderFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.FolderFiles(r.Context(),
		chi.URLParam(r, "id"),
		middleware.UserID(r.Context()),
		r.URL.Query().Get("category"))
	if err != nil {
		response.InternalError(w)
		return
	}
	response.OK(w, files)
}

// Get godoc
//
//	@Summary		Get file
//	@Description	Return a file record with its upload links.
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"File ID"
//	@Success		200	{object}	response.Envelope{data=FileRecord}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/files/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"), middleware.UserID(r.Context()))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(w, "file not found")
			return
		}
		response.InternalError(w)
		return
	}
	response.OK(w, rec)
}
