package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnistore/service/internal/file"
	"github.com/omnistore/service/internal/instance"
	"github.com/omnistore/service/internal/progress"
	"github.com/omnistore/service/internal/provider"
)

type fakeSource struct {
	instances  map[string]*instance.Instance
	decryptErr map[string]error
}

func newFakeSource(instances ...*instance.Instance) *fakeSource {
	src := &fakeSource{
		instances:  make(map[string]*instance.Instance),
		decryptErr: make(map[string]error),
	}
	for _, inst := range instances {
		src.instances[inst.ID] = inst
	}
	return src
}

func (f *fakeSource) ByIDs(ctx context.Context, ids []string, userID string) ([]instance.Instance, error) {
	var out []instance.Instance
	for _, id := range ids {
		if inst, ok := f.instances[id]; ok && inst.UserID == userID {
			out = append(out, *inst)
		}
	}
	return out, nil
}

func (f *fakeSource) Get(ctx context.Context, id, userID string) (*instance.Instance, error) {
	inst, ok := f.instances[id]
	if !ok || inst.UserID != userID {
		return nil, instance.ErrNotFound
	}
	return inst, nil
}

func (f *fakeSource) Decrypt(inst *instance.Instance) (provider.Credentials, error) {
	if err := f.decryptErr[inst.ID]; err != nil {
		return nil, err
	}
	return provider.Credentials(inst.Config), nil
}

type fakeFiles struct {
	records map[string]*file.FileRecord
}

func newFakeFiles(records ...*file.FileRecord) *fakeFiles {
	f := &fakeFiles{records: make(map[string]*file.FileRecord)}
	for _, rec := range records {
		f.records[rec.ID] = rec
	}
	return f
}

func (f *fakeFiles) Create(ctx context.Context, rec *file.FileRecord) (*file.FileRecord, error) {
	stored := *rec
	stored.Status = file.StatusPending
	f.records[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeFiles) GetByID(ctx context.Context, id string) (*file.FileRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, file.ErrNotFound
	}
	return rec, nil
}

func (f *fakeFiles) GetOwned(ctx context.Context, id, userID string) (*file.FileRecord, error) {
	rec, ok := f.records[id]
	if !ok || rec.UserID != userID {
		return nil, file.ErrNotFound
	}
	copied := *rec
	copied.Links = append([]file.UploadLink(nil), rec.Links...)
	return &copied, nil
}

func (f *fakeFiles) Delete(ctx context.Context, id string) error {
	if _, ok := f.records[id]; !ok {
		return file.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeFiles) AttachLink(ctx context.Context, fileID string, link file.UploadLink) error {
	rec, ok := f.records[fileID]
	if !ok {
		return file.ErrNotFound
	}
	for i := range rec.Links {
		if rec.Links[i].ProviderID == link.ProviderID {
			rec.Links[i] = link
			rec.Status = file.StatusCompleted
			return nil
		}
	}
	rec.Links = append(rec.Links, link)
	rec.Status = file.StatusCompleted
	rec.ErrorMessage = nil
	return nil
}

func (f *fakeFiles) RemoveLink(ctx context.Context, fileID, providerInstanceID string) error {
	rec, ok := f.records[fileID]
	if !ok {
		return file.ErrNotFound
	}
	kept := rec.Links[:0]
	for _, link := range rec.Links {
		if link.ProviderID != providerInstanceID {
			kept = append(kept, link)
		}
	}
	rec.Links = kept
	return nil
}

func (f *fakeFiles) MarkFailed(ctx context.Context, fileID, message string) error {
	rec, ok := f.records[fileID]
	if !ok {
		return file.ErrNotFound
	}
	if rec.Status == file.StatusPending {
		rec.Status = file.StatusFailed
		rec.ErrorMessage = &message
	}
	return nil
}

func (f *fakeFiles) UpsertFolder(ctx context.Context, name string) (*file.Folder, error) {
	return &file.Folder{ID: "folder-1", Name: name}, nil
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

type stubBackend struct {
	code       string
	url        string
	uploadErr  error
	deleteErr  error
	deleteFail bool
}

func (b *stubBackend) Code() string { return b.code }

func (b *stubBackend) Upload(ctx context.Context, in provider.UploadInput) (*provider.UploadResult, error) {
	if b.uploadErr != nil {
		return nil, b.uploadErr
	}
	return &provider.UploadResult{
		URL:      b.url,
		Metadata: map[string]any{"name": in.OriginalName},
	}, nil
}

func (b *stubBackend) Delete(ctx context.Context, in provider.DeleteInput) (*provider.DeleteResult, error) {
	if b.deleteErr != nil {
		return nil, b.deleteErr
	}
	if b.deleteFail {
		return &provider.DeleteResult{Success: false, Error: "backend refused"}, nil
	}
	return &provider.DeleteResult{Success: true}, nil
}

func (b *stubBackend) TestConnection(ctx context.Context, creds provider.Credentials) (*provider.ConnectionResult, error) {
	return &provider.ConnectionResult{IsHealthy: true}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func videoInstance(id, code string) *instance.Instance {
	return &instance.Instance{
		ID:                  id,
		UserID:              "user-1",
		Name:                "inst " + id,
		Code:                code,
		Config:              map[string]string{"apiKey": "k"},
		SupportedExtensions: []string{".mp4", ".mkv"},
	}
}

func pendingFile(id string) *file.FileRecord {
	return &file.FileRecord{
		ID:           id,
		UserID:       "user-1",
		OriginalName: "clip.mp4",
		Status:       file.StatusPending,
		Links:        []file.UploadLink{},
	}
}

func drainEvents(ch chan progress.Event) []progress.Event {
	var out []progress.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func eventsWithStatus(events []progress.Event, status string) []progress.Event {
	var out []progress.Event
	for _, e := range events {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func newTestOrchestrator(src *fakeSource, files *fakeFiles, backends ...provider.Capability) (*Orchestrator, *progress.Hub) {
	hub := progress.NewHub(discardLogger())
	return NewOrchestrator(provider.NewRegistry(backends...), src, files, hub, discardLogger()), hub
}

func TestUploadIsolation(t *testing.T) {
	src := newFakeSource(
		videoInstance("a", "ok"),
		videoInstance("b", "boom"),
		videoInstance("c", "ok"),
	)
	files := newFakeFiles(pendingFile("f1"))
	orch, hub := newTestOrchestrator(src, files,
		&stubBackend{code: "ok", url: "https://host/e/xyz"},
		&stubBackend{code: "boom", uploadErr: errors.New("connection reset")},
	)

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	orch.ProcessUpload(context.Background(), Job{
		FileID:       "f1",
		OriginalName: "clip.mp4",
		UserID:       "user-1",
		InstanceIDs:  []string{"a", "b", "c"},
	})

	events := drainEvents(sub)
	assert.Len(t, eventsWithStatus(events, progress.StatusError), 1)
	assert.Len(t, eventsWithStatus(events, progress.StatusCompleted), 2)

	rec := files.records["f1"]
	assert.Equal(t, file.StatusCompleted, rec.Status)
	require.Len(t, rec.Links, 2)
	assert.Equal(t, "a", rec.Links[0].ProviderID)
	assert.Equal(t, "c", rec.Links[1].ProviderID)
}

func TestUploadExtensionMismatch(t *testing.T) {
	inst := videoInstance("a", "ok")
	inst.SupportedExtensions = []string{".jpg"}
	src := newFakeSource(inst)
	files := newFakeFiles(pendingFile("f1"))
	orch, hub := newTestOrchestrator(src, files, &stubBackend{code: "ok", url: "u"})

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	orch.ProcessUpload(context.Background(), Job{
		FileID:       "f1",
		OriginalName: "clip.mp4",
		UserID:       "user-1",
		InstanceIDs:  []string{"a"},
	})

	events := drainEvents(sub)
	errs := eventsWithStatus(events, progress.StatusError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "does not support")
	assert.Empty(t, files.records["f1"].Links)
}

func TestUploadPartialFailure(t *testing.T) {
	src := newFakeSource(videoInstance("a", "ok"), videoInstance("b", "slow"))
	files := newFakeFiles(pendingFile("f1"))
	orch, hub := newTestOrchestrator(src, files,
		&stubBackend{code: "ok", url: "https://host/e/xyz"},
		&stubBackend{code: "slow", uploadErr: errors.New("request timed out")},
	)

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	orch.ProcessUpload(context.Background(), Job{
		FileID:       "f1",
		OriginalName: "clip.mp4",
		UserID:       "user-1",
		InstanceIDs:  []string{"a", "b"},
	})

	rec := files.records["f1"]
	assert.Equal(t, file.StatusCompleted, rec.Status, "one success is enough to complete")
	require.Len(t, rec.Links, 1)
	assert.Equal(t, "https://host/e/xyz", rec.Links[0].URL)

	errs := eventsWithStatus(drainEvents(sub), progress.StatusError)
	require.Len(t, errs, 1)
	assert.Equal(t, "b", errs[0].ProviderID)
}

func TestUploadAllFailMarksFailed(t *testing.T) {
	src := newFakeSource(videoInstance("a", "boom"), videoInstance("b", "boom"))
	files := newFakeFiles(pendingFile("f1"))
	orch, hub := newTestOrchestrator(src, files,
		&stubBackend{code: "boom", uploadErr: errors.New("nope")},
	)

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	orch.ProcessUpload(context.Background(), Job{
		FileID:       "f1",
		OriginalName: "clip.mp4",
		UserID:       "user-1",
		InstanceIDs:  []string{"a", "b"},
	})

	rec := files.records["f1"]
	assert.Equal(t, file.StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
	assert.Contains(t, *rec.ErrorMessage, "2 provider(s)")
}

func TestUploadDropsForeignInstanceIDs(t *testing.T) {
	foreign := videoInstance("b", "ok")
	foreign.UserID = "user-2"
	src := newFakeSource(videoInstance("a", "ok"), foreign)
	files := newFakeFiles(pendingFile("f1"))
	orch, hub := newTestOrchestrator(src, files, &stubBackend{code: "ok", url: "u"})

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	orch.ProcessUpload(context.Background(), Job{
		FileID:       "f1",
		OriginalName: "clip.mp4",
		UserID:       "user-1",
		InstanceIDs:  []string{"missing", "b", "a"},
	})

	events := drainEvents(sub)
	for _, e := range events {
		assert.Equal(t, "a", e.ProviderID, "dropped ids must not produce events")
	}
	assert.Len(t, files.records["f1"].Links, 1)
}

func TestUploadEmptyResolvedSetStaysPending(t *testing.T) {
	src := newFakeSource()
	files := newFakeFiles(pendingFile("f1"))
	orch, _ := newTestOrchestrator(src, files, &stubBackend{code: "ok"})

	orch.ProcessUpload(context.Background(), Job{
		FileID:       "f1",
		OriginalName: "clip.mp4",
		UserID:       "user-1",
		InstanceIDs:  []string{"missing"},
	})

	assert.Equal(t, file.StatusPending, files.records["f1"].Status)
}

func TestUploadEventOrderingIsSequential(t *testing.T) {
	src := newFakeSource(videoInstance("a", "ok"), videoInstance("b", "ok"))
	files := newFakeFiles(pendingFile("f1"))
	orch, hub := newTestOrchestrator(src, files, &stubBackend{code: "ok", url: "u"})

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	orch.ProcessUpload(context.Background(), Job{
		FileID:       "f1",
		OriginalName: "clip.mp4",
		UserID:       "user-1",
		InstanceIDs:  []string{"a", "b"},
	})

	events := drainEvents(sub)
	require.Len(t, events, 4)
	want := []struct{ provider, status string }{
		{"a", progress.StatusStarting},
		{"a", progress.StatusCompleted},
		{"b", progress.StatusStarting},
		{"b", progress.StatusCompleted},
	}
	for i, w := range want {
		assert.Equal(t, w.provider, events[i].ProviderID, "event %d", i)
		assert.Equal(t, w.status, events[i].Status, "event %d", i)
	}
}

func TestDeletePartialFailure(t *testing.T) {
	rec := pendingFile("f1")
	rec.Status = file.StatusCompleted
	rec.Links = []file.UploadLink{
		{ProviderCode: "ok", ProviderID: "a", URL: "u1"},
		{ProviderCode: "stuck", ProviderID: "b", URL: "u2"},
	}
	src := newFakeSource(videoInstance("a", "ok"), videoInstance("b", "stuck"))
	files := newFakeFiles(rec)
	orch, hub := newTestOrchestrator(src, files,
		&stubBackend{code: "ok"},
		&stubBackend{code: "stuck", deleteFail: true},
	)

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	orch.ProcessDelete(context.Background(), "f1", "user-1")

	stored := files.records["f1"]
	require.NotNil(t, stored, "record stays while a link remains")
	require.Len(t, stored.Links, 1)
	assert.Equal(t, "b", stored.Links[0].ProviderID)

	events := drainEvents(sub)
	errs := eventsWithStatus(events, progress.StatusError)
	require.Len(t, errs, 1)
	assert.Equal(t, "backend refused", errs[0].Error)
	assert.Len(t, eventsWithStatus(events, progress.StatusCompleted), 1)
}

func TestDeleteRemovesRecordWhenAllLinksGone(t *testing.T) {
	rec := pendingFile("f1")
	rec.Status = file.StatusCompleted
	rec.Links = []file.UploadLink{
		{ProviderCode: "ok", ProviderID: "a", URL: "u1"},
		{ProviderCode: "ok", ProviderID: "b", URL: "u2"},
	}
	src := newFakeSource(videoInstance("a", "ok"), videoInstance("b", "ok"))
	files := newFakeFiles(rec)
	orch, _ := newTestOrchestrator(src, files, &stubBackend{code: "ok"})

	orch.ProcessDelete(context.Background(), "f1", "user-1")

	assert.Nil(t, files.records["f1"])
}

func TestDeleteMissingInstanceKeepsLink(t *testing.T) {
	rec := pendingFile("f1")
	rec.Status = file.StatusCompleted
	rec.Links = []file.UploadLink{{ProviderCode: "ok", ProviderID: "gone", URL: "u1"}}
	src := newFakeSource()
	files := newFakeFiles(rec)
	orch, hub := newTestOrchestrator(src, files, &stubBackend{code: "ok"})

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	orch.ProcessDelete(context.Background(), "f1", "user-1")

	require.NotNil(t, files.records["f1"])
	assert.Len(t, files.records["f1"].Links, 1)

	errs := eventsWithStatus(drainEvents(sub), progress.StatusError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error, "no longer exists")
}

func TestUploadDecryptFailureIsolated(t *testing.T) {
	src := newFakeSource(videoInstance("a", "ok"), videoInstance("b", "ok"))
	src.decryptErr["a"] = fmt.Errorf("vault: decryption failed")
	files := newFakeFiles(pendingFile("f1"))
	orch, hub := newTestOrchestrator(src, files, &stubBackend{code: "ok", url: "u"})

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	orch.ProcessUpload(context.Background(), Job{
		FileID:       "f1",
		OriginalName: "clip.mp4",
		UserID:       "user-1",
		InstanceIDs:  []string{"a", "b"},
	})

	events := drainEvents(sub)
	assert.Len(t, eventsWithStatus(events, progress.StatusError), 1)
	assert.Len(t, eventsWithStatus(events, progress.StatusCompleted), 1)
	assert.Equal(t, file.StatusCompleted, files.records["f1"].Status)
}
