// Package dood implements the hosting-API provider capability against a
// Doodstream-compatible video host. Uploads go through a remote
// upload-server handshake; deletes move files into a trash folder because
// the hosting API has no hard delete.
package dood

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/omnistore/service/internal/provider"
)

// ProviderCode is the stable registry code for this capability.
const ProviderCode = "dood"

const (
	defaultAPIBase = "https://doodapi.com/api"
	embedBase      = "https://dood.to/e/"
	rootFolderID   = "0"
	trashFolder    = "trash"
)

// Capability talks to the hosting API with per-operation credentials.
// Expected credential keys: apiKey (required), apiUrl (optional override,
// useful for tests and mirrors).
type Capability struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates the hosting-API capability.
func New(logger *slog.Logger) *Capability {
	return &Capability{
		// Uploads of large files can legitimately take a long time; the
		// handshake endpoints get their own shorter per-request timeouts.
		httpClient: &http.Client{},
		logger:     logger.With(slog.String("component", "dood_provider")),
	}
}

// Code returns the registry code.
func (c *Capability) Code() string { return ProviderCode }

func apiBase(creds provider.Credentials) string {
	if base := creds["apiUrl"]; base != "" {
		return base
	}
	return defaultAPIBase
}

type apiEnvelope struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

type uploadServerResponse struct {
	apiEnvelope
	Result string `json:"result"`
}

type folderListResponse struct {
	apiEnvelope
	Result struct {
		Folders []struct {
			FldID json.Number `json:"fld_id"`
			Name  string      `json:"name"`
		} `json:"folders"`
	} `json:"result"`
}

type folderCreateResponse struct {
	apiEnvelope
	Result struct {
		FldID json.Number `json:"fld_id"`
	} `json:"result"`
}

type uploadResponse struct {
	apiEnvelope
	Result []struct {
		DownloadURL string `json:"download_url"`
		Filecode    string `json:"filecode"`
		SplashImg   string `json:"splash_img"`
		Size        string `json:"size"`
		Title       string `json:"title"`
	} `json:"result"`
}

// get issues an API GET and decodes the JSON envelope into out, which must
// embed apiEnvelope.
func (c *Capability) get(ctx context.Context, rawURL string, out interface{ status() (int, string) }) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dood: api returned http %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("dood: decode response: %w", err)
	}
	if status, msg := out.status(); status != 200 {
		return fmt.Errorf("dood: api error %d: %s", status, msg)
	}
	return nil
}

func (e *apiEnvelope) status() (int, string) { return e.Status, e.Msg }

// resolveFolder finds the remote folder with the given name, creating it
// when absent. Folder management is best-effort: any error falls back to
// the root folder rather than failing the upload. Tolerates racing
// creators because the post-create list wins on the next upload.
func (c *Capability) resolveFolder(ctx context.Context, base, apiKey, name string) string {
	if name == "" {
		return rootFolderID
	}

	var list folderListResponse
	listURL := fmt.Sprintf("%s/folder/list?key=%s&fld_id=%s", base, url.QueryEscape(apiKey), rootFolderID)
	if err := c.get(ctx, listURL, &list); err != nil {
		c.logger.Warn("folder list failed, using root", slog.String("folder", name), slog.String("error", err.Error()))
		return rootFolderID
	}
	for _, f := range list.Result.Folders {
		if f.Name == name {
			return f.FldID.String()
		}
	}

	var created folderCreateResponse
	createURL := fmt.Sprintf("%s/folder/create?key=%s&name=%s", base, url.QueryEscape(apiKey), url.QueryEscape(name))
	if err := c.get(ctx, createURL, &created); err != nil {
		c.logger.Warn("folder create failed, using root", slog.String("folder", name), slog.String("error", err.Error()))
		return rootFolderID
	}
	return created.Result.FldID.String()
}

// Upload obtains a one-time upload endpoint and posts the file as a
// multipart form, sampling progress at 10% increments into the log.
func (c *Capability) Upload(ctx context.Context, in provider.UploadInput) (*provider.UploadResult, error) {
	apiKey := in.Credentials["apiKey"]
	if apiKey == "" {
		return nil, fmt.Errorf("dood: credential %q is required", "apiKey")
	}
	base := apiBase(in.Credentials)

	folderID := c.resolveFolder(ctx, base, apiKey, in.FolderName)

	var server uploadServerResponse
	serverURL := fmt.Sprintf("%s/upload/server?key=%s", base, url.QueryEscape(apiKey))
	if err := c.get(ctx, serverURL, &server); err != nil {
		return nil, fmt.Errorf("dood: resolve upload server: %w", err)
	}
	if server.Result == "" {
		return nil, fmt.Errorf("dood: api returned empty upload server")
	}

	resp, err := c.postFile(ctx, server.Result, apiKey, folderID, in)
	if err != nil {
		return nil, err
	}

	if len(resp.Result) == 0 || resp.Result[0].Filecode == "" {
		return nil, fmt.Errorf("dood: upload response contains no filecode")
	}
	file := resp.Result[0]

	size, _ := strconv.ParseInt(file.Size, 10, 64)
	return &provider.UploadResult{
		URL:       embedBase + file.Filecode,
		Thumbnail: file.SplashImg,
		Metadata: provider.Metadata{
			"filecode":  file.Filecode,
			"thumbnail": file.SplashImg,
			"size":      size,
			"title":     file.Title,
		},
	}, nil
}

// postFile streams the multipart body through a pipe so only one chunk is
// buffered at a time.
func (c *Capability) postFile(ctx context.Context, uploadURL, apiKey, folderID string, in provider.UploadInput) (*uploadResponse, error) {
	f, err := os.Open(in.FilePath)
	if err != nil {
		return nil, fmt.Errorf("dood: open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("dood: stat file: %w", err)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		defer pw.Close()

		if err := form.WriteField("api_key", apiKey); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := form.WriteField("fld_id", folderID); err != nil {
			pw.CloseWithError(err)
			return
		}
		part, err := form.CreateFormFile("file", in.OriginalName)
		if err != nil {
			pw.CloseWithError(err)
			return
		}

		progress := &progressReader{
			reader: f,
			total:  stat.Size(),
			report: func(pct int) {
				c.logger.Info("upload progress",
					slog.String("file_id", in.FileID),
					slog.String("name", in.OriginalName),
					slog.Int("percent", pct),
				)
			},
		}
		if _, err := io.Copy(part, progress); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(form.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, pr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dood: upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dood: upload server returned http %d", resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("dood: decode upload response: %w", err)
	}
	if out.Status != 200 {
		return nil, fmt.Errorf("dood: upload failed %d: %s", out.Status, out.Msg)
	}
	return &out, nil
}

// Delete moves the remote file into the trash folder. The hosting API has
// no hard delete, so this is the closest non-reversible equivalent.
func (c *Capability) Delete(ctx context.Context, in provider.DeleteInput) (*provider.DeleteResult, error) {
	apiKey := in.Credentials["apiKey"]
	if apiKey == "" {
		return &provider.DeleteResult{Success: false, Error: "apiKey credential is required"}, nil
	}
	filecode, _ := in.Metadata["filecode"].(string)
	if filecode == "" {
		return &provider.DeleteResult{Success: false, Error: "filecode not found in metadata"}, nil
	}
	base := apiBase(in.Credentials)

	trashID := c.resolveFolder(ctx, base, apiKey, trashFolder)
	if trashID == rootFolderID {
		return &provider.DeleteResult{Success: false, Error: "could not resolve trash folder"}, nil
	}

	var moved apiEnvelope
	moveURL := fmt.Sprintf("%s/file/move?key=%s&file_code=%s&fld_id=%s",
		base, url.QueryEscape(apiKey), url.QueryEscape(filecode), url.QueryEscape(trashID))
	if err := c.get(ctx, moveURL, &moved); err != nil {
		return &provider.DeleteResult{Success: false, Error: err.Error()}, nil
	}

	c.logger.Info("file moved to trash", slog.String("filecode", filecode))
	return &provider.DeleteResult{Success: true}, nil
}

// TestConnection validates the API key against the account endpoint.
func (c *Capability) TestConnection(ctx context.Context, creds provider.Credentials) (*provider.ConnectionResult, error) {
	apiKey := creds["apiKey"]
	if apiKey == "" {
		return &provider.ConnectionResult{IsHealthy: false, Error: "apiKey credential is required"}, nil
	}

	var info apiEnvelope
	infoURL := fmt.Sprintf("%s/account/info?key=%s", apiBase(creds), url.QueryEscape(apiKey))
	if err := c.get(ctx, infoURL, &info); err != nil {
		return &provider.ConnectionResult{IsHealthy: false, Error: err.Error()}, nil
	}
	return &provider.ConnectionResult{IsHealthy: true}, nil
}

// progressReader logs transfer progress at 10% increments.
type progressReader struct {
	reader  io.Reader
	total   int64
	read    int64
	lastPct int
	report  func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.reader.Read(b)
	p.read += int64(n)
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct >= p.lastPct+10 {
			p.lastPct = pct - pct%10
			p.report(p.lastPct)
		}
	}
	return n, err
}
