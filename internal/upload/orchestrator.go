// Package upload runs the fan-out of one file to multiple provider
// instances, and the symmetric teardown.
package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/omnistore/service/internal/file"
	"github.com/omnistore/service/internal/instance"
	"github.com/omnistore/service/internal/progress"
	"github.com/omnistore/service/internal/provider"
)

// InstanceSource is the slice of the instance service the orchestrator
// needs: owner-scoped resolution and transient credential decryption.
// ByIDs must return instances in the order of the id list, with
// malformed, unknown, and foreign ids dropped silently.
type InstanceSource interface {
	ByIDs(ctx context.Context, ids []string, userID string) ([]instance.Instance, error)
	Get(ctx context.Context, id, userID string) (*instance.Instance, error)
	Decrypt(inst *instance.Instance) (provider.Credentials, error)
}

// Orchestrator coordinates provider uploads and deletions for one file at
// a time. Instances are processed strictly sequentially, so progress
// events for instance i are always emitted before work starts on i+1.
type Orchestrator struct {
	registry  *provider.Registry
	instances InstanceSource
	files     file.Repository
	hub       *progress.Hub
	logger    *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(registry *provider.Registry, instances InstanceSource, files file.Repository, hub *progress.Hub, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		instances: instances,
		files:     files,
		hub:       hub,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Job describes one upload fan-out: a file already sitting in local
// temporary storage and the provider instances to push it to.
type Job struct {
	FileID       string
	FilePath     string
	OriginalName string
	FolderName   string
	UserID       string
	InstanceIDs  []string
}

// ProcessUpload pushes the file to every resolved provider instance.
// Instance ids that do not exist or belong to another user are dropped
// silently. Failures are isolated per instance: one backend erroring never
// prevents the next from being attempted. The temporary file is removed
// when the run finishes.
func (o *Orchestrator) ProcessUpload(ctx context.Context, job Job) {
	defer o.removeTempFile(job.FilePath)

	instances, err := o.instances.ByIDs(ctx, job.InstanceIDs, job.UserID)
	if err != nil {
		o.logger.Error("resolve instances", "file_id", job.FileID, "error", err)
		return
	}

	succeeded := 0
	for i := range instances {
		if o.uploadToInstance(ctx, job, &instances[i]) {
			succeeded++
		}
	}

	if len(instances) > 0 && succeeded == 0 {
		msg := fmt.Sprintf("upload failed on all %d provider(s)", len(instances))
		if err := o.files.MarkFailed(ctx, job.FileID, msg); err != nil {
			o.logger.Error("mark failed", "file_id", job.FileID, "error", err)
		}
	}
}

func (o *Orchestrator) uploadToInstance(ctx context.Context, job Job, inst *instance.Instance) bool {
	o.hub.Publish(progress.EventUpload, progress.Event{
		FileID:     job.FileID,
		ProviderID: inst.ID,
		Status:     progress.StatusStarting,
	})

	if !supportsExtension(inst, job.OriginalName) {
		o.publishUploadError(job.FileID, inst.ID,
			fmt.Sprintf("provider %s does not support %s files", inst.Name, file.Extension(job.OriginalName)))
		return false
	}

	creds, err := o.instances.Decrypt(inst)
	if err != nil {
		o.publishUploadError(job.FileID, inst.ID, err.Error())
		return false
	}

	backend, err := o.registry.Get(inst.Code)
	if err != nil {
		o.publishUploadError(job.FileID, inst.ID, err.Error())
		return false
	}

	result, err := backend.Upload(ctx, provider.UploadInput{
		Credentials:  creds,
		FilePath:     job.FilePath,
		OriginalName: job.OriginalName,
		FileID:       job.FileID,
		FolderName:   job.FolderName,
	})
	if err != nil {
		o.logger.Warn("provider upload failed",
			"file_id", job.FileID, "instance_id", inst.ID, "code", inst.Code, "error", err)
		o.publishUploadError(job.FileID, inst.ID, err.Error())
		return false
	}

	err = o.files.AttachLink(ctx, job.FileID, file.UploadLink{
		ProviderCode: inst.Code,
		ProviderID:   inst.ID,
		URL:          result.URL,
		Thumbnail:    result.Thumbnail,
		Metadata:     result.Metadata,
	})
	if err != nil {
		o.logger.Error("attach link", "file_id", job.FileID, "instance_id", inst.ID, "error", err)
		o.publishUploadError(job.FileID, inst.ID, "failed to record upload result")
		return false
	}

	o.hub.Publish(progress.EventUpload, progress.Event{
		FileID:     job.FileID,
		ProviderID: inst.ID,
		Status:     progress.StatusCompleted,
		URL:        result.URL,
	})
	return true
}

// ProcessDelete tears a file down link by link. Each link is handled
// independently: a backend refusing a delete keeps that link in place and
// the loop continues. The record itself is removed only once every link
// is gone.
func (o *Orchestrator) ProcessDelete(ctx context.Context, fileID, userID string) {
	rec, err := o.files.GetOwned(ctx, fileID, userID)
	if err != nil {
		o.logger.Error("resolve file", "file_id", fileID, "error", err)
		return
	}

	remaining := len(rec.Links)
	for _, link := range rec.Links {
		if o.deleteLink(ctx, rec.ID, userID, link) {
			remaining--
		}
	}

	if remaining == 0 {
		if err := o.files.Delete(ctx, rec.ID); err != nil {
			o.logger.Error("delete file record", "file_id", rec.ID, "error", err)
		}
	}
}

func (o *Orchestrator) deleteLink(ctx context.Context, fileID, userID string, link file.UploadLink) bool {
	o.hub.Publish(progress.EventDelete, progress.Event{
		FileID:     fileID,
		ProviderID: link.ProviderID,
		Status:     progress.StatusStarting,
	})

	inst, err := o.instances.Get(ctx, link.ProviderID, userID)
	if err != nil {
		o.publishDeleteError(fileID, link.ProviderID, "provider instance no longer exists")
		return false
	}

	creds, err := o.instances.Decrypt(inst)
	if err != nil {
		o.publishDeleteError(fileID, link.ProviderID, err.Error())
		return false
	}

	backend, err := o.registry.Get(link.ProviderCode)
	if err != nil {
		o.publishDeleteError(fileID, link.ProviderID, err.Error())
		return false
	}

	result, err := backend.Delete(ctx, provider.DeleteInput{
		Credentials: creds,
		Metadata:    link.Metadata,
	})
	if err != nil {
		o.publishDeleteError(fileID, link.ProviderID, err.Error())
		return false
	}
	if !result.Success {
		o.publishDeleteError(fileID, link.ProviderID, result.Error)
		return false
	}

	if err := o.files.RemoveLink(ctx, fileID, link.ProviderID); err != nil {
		o.logger.Error("remove link", "file_id", fileID, "instance_id", link.ProviderID, "error", err)
		o.publishDeleteError(fileID, link.ProviderID, "failed to record link removal")
		return false
	}

	o.hub.Publish(progress.EventDelete, progress.Event{
		FileID:     fileID,
		ProviderID: link.ProviderID,
		Status:     progress.StatusCompleted,
	})
	return true
}

func (o *Orchestrator) publishUploadError(fileID, providerID, msg string) {
	o.hub.Publish(progress.EventUpload, progress.Event{
		FileID:     fileID,
		ProviderID: providerID,
		Status:     progress.StatusError,
		Error:      msg,
	})
}

func (o *Orchestrator) publishDeleteError(fileID, providerID, msg string) {
	o.hub.Publish(progress.EventDelete, progress.Event{
		FileID:     fileID,
		ProviderID: providerID,
		Status:     progress.StatusError,
		Error:      msg,
	})
}

func (o *Orchestrator) removeTempFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		o.logger.Warn("remove temp file", "path", path, "error", err)
	}
}

func supportsExtension(inst *instance.Instance, name string) bool {
	ext := file.Extension(name)
	for _, supported := range inst.SupportedExtensions {
		if strings.EqualFold(supported, ext) {
			return true
		}
	}
	return false
}
