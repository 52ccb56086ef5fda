package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnistore/service/internal/file"
	"github.com/omnistore/service/internal/instance"
	"github.com/omnistore/service/internal/middleware"
	"github.com/omnistore/service/internal/provider"
)

type fakeFiles struct {
	records map[string]*file.FileRecord
}

func (f *fakeFiles) GetOwned(ctx context.Context, id, userID string) (*file.FileRecord, error) {
	rec, ok := f.records[id]
	if !ok || rec.UserID != userID {
		return nil, file.ErrNotFound
	}
	return rec, nil
}

func (f *fakeFiles) Create(ctx context.Context, rec *file.FileRecord) (*file.FileRecord, error) {
	return rec, nil
}
func (f *fakeFiles) GetByID(ctx context.Context, id string) (*file.FileRecord, error) {
	return f.GetOwned(ctx, id, "user-1")
}
func (f *fakeFiles) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeFiles) AttachLink(ctx context.Context, fileID string, link file.UploadLink) error {
	return nil
}
func (f *fakeFiles) RemoveLink(ctx context.Context, fileID, providerInstanceID string) error {
	return nil
}
func (f *fakeFiles) MarkFailed(ctx context.Context, fileID, message string) error { return nil }
func (f *fakeFiles) UpsertFolder(ctx context.Context, name string) (*file.Folder, error) {
	return nil, nil
}
func (f *fakeFiles) ListFolders(ctx context.Context, userID string) ([]file.FolderStats, error) {
	return nil, nil
}
func (f *fakeFiles) FolderFiles(ctx context.Context, folderID, userID, category string) ([]file.FileRecord, error) {
	return nil, nil
}
func (f *fakeFiles) RemoveLinksForInstance(ctx context.Context, instanceID string) (int, error) {
	return 0, nil
}

type fakeSource struct {
	instances map[string]*instance.Instance
}

func (f *fakeSource) Get(ctx context.Context, id, userID string) (*instance.Instance, error) {
	inst, ok := f.instances[id]
	if !ok || inst.UserID != userID {
		return nil, instance.ErrNotFound
	}
	return inst, nil
}

func (f *fakeSource) Decrypt(inst *instance.Instance) (provider.Credentials, error) {
	return provider.Credentials(inst.Config), nil
}

type streamingBackend struct {
	code      string
	content   string
	lastInput provider.StreamInput
}

func (b *streamingBackend) Code() string { return b.code }
func (b *streamingBackend) Upload(ctx context.Context, in provider.UploadInput) (*provider.UploadResult, error) {
	return &provider.UploadResult{}, nil
}
func (b *streamingBackend) Delete(ctx context.Context, in provider.DeleteInput) (*provider.DeleteResult, error) {
	return &provider.DeleteResult{Success: true}, nil
}
func (b *streamingBackend) TestConnection(ctx context.Context, creds provider.Credentials) (*provider.ConnectionResult, error) {
	return &provider.ConnectionResult{IsHealthy: true}, nil
}

func (b *streamingBackend) GetStream(ctx context.Context, in provider.StreamInput) (*provider.StreamResult, error) {
	b.lastInput = in
	if in.Range == "" {
		return &provider.StreamResult{
			Body:          io.NopCloser(strings.NewReader(b.content)),
			ContentType:   "video/mp4",
			ContentLength: int64(len(b.content)),
			AcceptRanges:  true,
			StatusCode:    http.StatusOK,
		}, nil
	}
	partial := b.content[:4]
	return &provider.StreamResult{
		Body:          io.NopCloser(strings.NewReader(partial)),
		ContentType:   "video/mp4",
		ContentLength: int64(len(partial)),
		AcceptRanges:  true,
		ContentRange:  "bytes 0-3/" + strconv.Itoa(len(b.content)),
		StatusCode:    http.StatusPartialContent,
	}, nil
}

type plainBackend struct{ code string }

func (b *plainBackend) Code() string { return b.code }
func (b *plainBackend) Upload(ctx context.Context, in provider.UploadInput) (*provider.UploadResult, error) {
	return &provider.UploadResult{}, nil
}
func (b *plainBackend) Delete(ctx context.Context, in provider.DeleteInput) (*provider.DeleteResult, error) {
	return &provider.DeleteResult{Success: true}, nil
}
func (b *plainBackend) TestConnection(ctx context.Context, creds provider.Credentials) (*provider.ConnectionResult, error) {
	return &provider.ConnectionResult{IsHealthy: true}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.UserIDKey, "user-1")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/files/{id}/stream", h.Stream)
	return r
}

func fixtures(backends ...provider.Capability) (*Service, *fakeFiles) {
	files := &fakeFiles{records: map[string]*file.FileRecord{
		"f1": {
			ID:     "f1",
			UserID: "user-1",
			Status: file.StatusCompleted,
			Links: []file.UploadLink{
				{ProviderCode: "s3", ProviderID: "inst-1", URL: "u", Metadata: map[string]any{"key": "clip.mp4"}},
			},
		},
	}}
	source := &fakeSource{instances: map[string]*instance.Instance{
		"inst-1": {ID: "inst-1", UserID: "user-1", Code: "s3", Config: map[string]string{"bucket": "b"}},
	}}
	return NewService(files, source, provider.NewRegistry(backends...)), files
}

func TestStreamFullRead(t *testing.T) {
	backend := &streamingBackend{code: "s3", content: "0123456789"}
	svc, _ := fixtures(backend)
	router := testRouter(NewHandler(svc, discardLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/f1/stream", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0123456789", rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "10", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Empty(t, rec.Header().Get("Content-Range"))
}

func TestStreamRangedRead(t *testing.T) {
	backend := &streamingBackend{code: "s3", content: "0123456789"}
	svc, _ := fixtures(backend)
	router := testRouter(NewHandler(svc, discardLogger()))

	req := httptest.NewRequest(http.MethodGet, "/files/f1/stream", nil)
	req.Header.Set("Range", "bytes=0-3")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "0123", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Range"))
	assert.Equal(t, "bytes=0-3", backend.lastInput.Range, "range header passes through untouched")
	assert.Equal(t, "clip.mp4", backend.lastInput.Metadata["key"], "link metadata reaches the backend")
}

func TestStreamUnsupportedProvider(t *testing.T) {
	svc, _ := fixtures(&plainBackend{code: "s3"})
	router := testRouter(NewHandler(svc, discardLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/f1/stream", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamMissingLink(t *testing.T) {
	backend := &streamingBackend{code: "s3", content: "x"}
	svc, files := fixtures(backend)
	files.records["f1"].Links = nil
	router := testRouter(NewHandler(svc, discardLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/f1/stream", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamUnknownProviderID(t *testing.T) {
	backend := &streamingBackend{code: "s3", content: "x"}
	svc, _ := fixtures(backend)
	router := testRouter(NewHandler(svc, discardLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/f1/stream?providerId=other", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamUnknownFile(t *testing.T) {
	backend := &streamingBackend{code: "s3", content: "x"}
	svc, _ := fixtures(backend)
	router := testRouter(NewHandler(svc, discardLogger()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/nope/stream", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
