package stream

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/omnistore/service/internal/file"
	"github.com/omnistore/service/internal/instance"
	"github.com/omnistore/service/internal/middleware"
	"github.com/omnistore/service/internal/response"
)

// Handler relays backend byte streams to HTTP clients.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler creates a new stream Handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger.With(slog.String("component", "stream_handler"))}
}

// Stream godoc
//
//	@Summary		Stream file
//	@Description	Proxy the file's bytes from a linked backend, honoring the Range header where the backend supports it.
//	@Tags			files
//	@Produce		octet-stream
//	@Security		BearerAuth
//	@Param			id			path	string	true	"File ID"
//	@Param			providerId	query	string	false	"Provider instance to read from, defaults to the file's first link"
//	@Param			Range		header	string	false	"Byte range, e.g. bytes=0-1023"
//	@Success		200
//	@Success		206
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/files/{id}/stream [get]
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Open(r.Context(),
		chi.URLParam(r, "id"),
		r.URL.Query().Get("providerId"),
		middleware.UserID(r.Context()),
		r.Header.Get("Range"))
	if err != nil {
		switch {
		case errors.Is(err, file.ErrNotFound), errors.Is(err, instance.ErrNotFound), errors.Is(err, ErrNoLink):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrNoStreaming):
			response.BadRequest(w, err.Error())
		default:
			h.logger.Error("open stream", "file_id", chi.URLParam(r, "id"), "error", err)
			response.InternalError(w)
		}
		return
	}
	defer result.Body.Close()

	if result.ContentType != "" {
		w.Header().Set("Content-Type", result.ContentType)
	}
	if result.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.ContentLength, 10))
	}
	if result.AcceptRanges {
		w.Header().Set("Accept-Ranges", "bytes")
	}
	if result.ContentRange != "" {
		w.Header().Set("Content-Range", result.ContentRange)
	}
	w.WriteHeader(result.StatusCode)

	// One in-flight chunk at a time; the proxy never buffers the object.
	if _, err := io.Copy(w, result.Body); err != nil {
		h.logger.Debug("stream interrupted", "file_id", chi.URLParam(r, "id"), "error", err)
	}
}
