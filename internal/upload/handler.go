package upload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/omnistore/service/internal/file"
	"github.com/omnistore/service/internal/middleware"
	"github.com/omnistore/service/internal/response"
)

// parseMemoryLimit caps how much of the multipart body is buffered in
// memory before spilling to disk.
const parseMemoryLimit = 32 << 20

// Handler accepts upload and deletion requests and hands them to the
// orchestrator as background work.
type Handler struct {
	orch     *Orchestrator
	files    *file.Service
	tmpDir   string
	maxBytes int64
	logger   *slog.Logger
}

// NewHandler creates a new upload Handler.
func NewHandler(orch *Orchestrator, files *file.Service, tmpDir string, maxBytes int64, logger *slog.Logger) *Handler {
	return &Handler{
		orch:     orch,
		files:    files,
		tmpDir:   tmpDir,
		maxBytes: maxBytes,
		logger:   logger.With(slog.String("component", "upload_handler")),
	}
}

type uploadAck struct {
	FileID string `json:"fileId"`
	Status string `json:"status" example:"pending"`
}

// Upload godoc
//
//	@Summary		Upload file
//	@Description	Accept a file and fan it out to the given provider instances in the background. The response acknowledges the request; outcomes arrive on the progress websocket and in the file record.
//	@Tags			uploads
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			file		formData	file	true	"File to upload"
//	@Param			folderName	formData	string	true	"Target folder name, created on first use"
//	@Param			providerIds	formData	string	true	"Comma-separated storage provider instance ids"
//	@Success		202			{object}	response.Envelope{data=uploadAck}
//	@Failure		400			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/uploads/file [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	if err := r.ParseMultipartForm(parseMemoryLimit); err != nil {
		response.BadRequest(w, "invalid multipart body or file too large")
		return
	}

	src, header, err := r.FormFile("file")
	if err != nil {
		response.BadRequest(w, "file field is required")
		return
	}
	defer src.Close()

	folderName := r.FormValue("folderName")
	if folderName == "" {
		response.BadRequest(w, "folderName is required")
		return
	}

	providerIDs := parseProviderIDs(r)
	if len(providerIDs) == 0 {
		response.BadRequest(w, "providerIds is required")
		return
	}

	userID := middleware.UserID(r.Context())
	rec, err := h.files.CreateRecord(r.Context(), userID, header.Filename, folderName)
	if err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	tmpPath, err := h.saveTempFile(rec.ID, header.Filename, src)
	if err != nil {
		h.logger.Error("save temp file", "file_id", rec.ID, "error", err)
		response.InternalError(w)
		return
	}

	response.Accepted(w, uploadAck{FileID: rec.ID, Status: rec.Status})

	// The request is acknowledged; the fan-out runs detached from it so a
	// client disconnect cannot abort in-flight backend calls.
	go h.orch.ProcessUpload(context.Background(), Job{
		FileID:       rec.ID,
		FilePath:     tmpPath,
		OriginalName: header.Filename,
		FolderName:   folderName,
		UserID:       userID,
		InstanceIDs:  providerIDs,
	})
}

// Delete godoc
//
//	@Summary		Delete file
//	@Description	Remove the file from every linked backend in the background. Links whose backend delete fails are retained.
//	@Tags			files
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"File ID"
//	@Success		202	{object}	response.Envelope{data=uploadAck}
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/files/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	fileID := chi.URLParam(r, "id")

	rec, err := h.files.Get(r.Context(), fileID, userID)
	if err != nil {
		if errors.Is(err, file.ErrNotFound) {
			response.NotFound(w, "file not found")
			return
		}
		response.InternalError(w)
		return
	}

	response.Accepted(w, uploadAck{FileID: rec.ID, Status: "deleting"})

	go h.orch.ProcessDelete(context.Background(), rec.ID, userID)
}

func (h *Handler) saveTempFile(fileID, originalName string, src io.Reader) (string, error) {
	if err := os.MkdirAll(h.tmpDir, 0o755); err != nil {
		return "", err
	}

	path := filepath.Join(h.tmpDir, fileID+file.Extension(originalName))
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// parseProviderIDs accepts repeated providerIds fields as well as a single
// comma-separated value.
func parseProviderIDs(r *http.Request) []string {
	var out []string
	for _, raw := range r.Form["providerIds"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}
