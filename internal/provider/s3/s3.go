// Package s3 implements the object-storage provider capability on top of
// any S3-compatible backend (MinIO, Storj gateway, AWS S3, ArvanCloud).
// A client is built per operation from the instance's decrypted credentials.
package s3

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/omnistore/service/internal/provider"
)

// ProviderCode is the stable registry code for this capability.
const ProviderCode = "s3"

// Capability uploads to, deletes from, and streams out of an S3-compatible
// bucket described entirely by instance credentials.
type Capability struct {
	logger *slog.Logger
}

// New creates the object-storage capability.
func New(logger *slog.Logger) *Capability {
	return &Capability{logger: logger.With(slog.String("component", "s3_provider"))}
}

// Code returns the registry code.
func (c *Capability) Code() string { return ProviderCode }

// client builds a minio client from decrypted instance credentials.
// Expected keys: endpoint, accessKeyId, secretAccessKey, bucket; optional
// region and useSSL.
func (c *Capability) client(creds provider.Credentials) (*minio.Client, error) {
	endpoint := creds["endpoint"]
	if endpoint == "" {
		return nil, fmt.Errorf("s3: credential %q is required", "endpoint")
	}

	useSSL := creds["useSSL"] != "false"
	// tolerate endpoints configured with a scheme
	if strings.Contains(endpoint, "://") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("s3: parse endpoint: %w", err)
		}
		useSSL = u.Scheme != "http"
		endpoint = u.Host
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(creds["accessKeyId"], creds["secretAccessKey"], ""),
		Secure: useSSL,
		Region: creds["region"],
	})
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	return client, nil
}

func (c *Capability) publicURL(creds provider.Credentials, key string) string {
	endpoint := strings.TrimRight(creds["endpoint"], "/")
	if !strings.Contains(endpoint, "://") {
		scheme := "https"
		if creds["useSSL"] == "false" {
			scheme = "http"
		}
		endpoint = scheme + "://" + endpoint
	}
	return endpoint + "/" + creds["bucket"] + "/" + key
}

// Upload streams the local file into {bucket}/{folder}/{originalName}.
// Transfer progress is logged at 10% steps; it is not re-broadcast.
func (c *Capability) Upload(ctx context.Context, in provider.UploadInput) (*provider.UploadResult, error) {
	client, err := c.client(in.Credentials)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(in.FilePath)
	if err != nil {
		return nil, fmt.Errorf("s3: open file: %w", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("s3: stat file: %w", err)
	}

	key := in.FolderName + "/" + in.OriginalName
	bucket := in.Credentials["bucket"]

	reader := &progressReader{
		reader: f,
		total:  stat.Size(),
		report: func(pct int) {
			c.logger.Info("upload progress",
				slog.String("file_id", in.FileID),
				slog.String("key", key),
				slog.Int("percent", pct),
			)
		},
	}

	info, err := client.PutObject(ctx, bucket, key, reader, stat.Size(), minio.PutObjectOptions{
		ContentType: contentTypeFor(in.OriginalName),
	})
	if err != nil {
		return nil, fmt.Errorf("s3: put object %q: %w", key, err)
	}

	return &provider.UploadResult{
		URL: c.publicURL(in.Credentials, key),
		Metadata: provider.Metadata{
			"bucket": bucket,
			"key":    key,
			"size":   stat.Size(),
			"etag":   info.ETag,
		},
	}, nil
}

// Delete removes the object identified by the link metadata's key. A key
// missing from the metadata is a hard failure; backend errors pass through.
func (c *Capability) Delete(ctx context.Context, in provider.DeleteInput) (*provider.DeleteResult, error) {
	key, _ := in.Metadata["key"].(string)
	if key == "" {
		return &provider.DeleteResult{Success: false, Error: "file key not found in metadata"}, nil
	}

	client, err := c.client(in.Credentials)
	if err != nil {
		return &provider.DeleteResult{Success: false, Error: err.Error()}, nil
	}

	bucket, _ := in.Metadata["bucket"].(string)
	if bucket == "" {
		bucket = in.Credentials["bucket"]
	}

	if err := client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return &provider.DeleteResult{Success: false, Error: err.Error()}, nil
	}

	c.logger.Info("object deleted", slog.String("bucket", bucket), slog.String("key", key))
	return &provider.DeleteResult{Success: true}, nil
}

// TestConnection verifies the credentials can see the configured bucket.
func (c *Capability) TestConnection(ctx context.Context, creds provider.Credentials) (*provider.ConnectionResult, error) {
	client, err := c.client(creds)
	if err != nil {
		return &provider.ConnectionResult{IsHealthy: false, Error: err.Error()}, nil
	}

	exists, err := client.BucketExists(ctx, creds["bucket"])
	if err != nil {
		return &provider.ConnectionResult{IsHealthy: false, Error: classifyError(err)}, nil
	}
	if !exists {
		return &provider.ConnectionResult{
			IsHealthy: false,
			Error:     fmt.Sprintf("bucket %q does not exist", creds["bucket"]),
		}, nil
	}

	return &provider.ConnectionResult{IsHealthy: true}, nil
}

// GetStream issues a (possibly ranged) GET and passes the body through
// untouched. The status code is 206 only when a parseable range was
// requested.
func (c *Capability) GetStream(ctx context.Context, in provider.StreamInput) (*provider.StreamResult, error) {
	key, _ := in.Metadata["key"].(string)
	if key == "" {
		return nil, fmt.Errorf("s3: file key not found in metadata")
	}

	client, err := c.client(in.Credentials)
	if err != nil {
		return nil, err
	}

	bucket, _ := in.Metadata["bucket"].(string)
	if bucket == "" {
		bucket = in.Credentials["bucket"]
	}

	stat, err := client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("s3: stat object %q: %w", key, err)
	}

	opts := minio.GetObjectOptions{}
	start, end, rangeOK := parseRange(in.Range, stat.Size)
	if rangeOK {
		if err := opts.SetRange(start, end); err != nil {
			return nil, fmt.Errorf("s3: set range: %w", err)
		}
	}

	obj, err := client.GetObject(ctx, bucket, key, opts)
	if err != nil {
		return nil, fmt.Errorf("s3: get object %q: %w", key, err)
	}

	contentType := stat.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	result := &provider.StreamResult{
		Body:          obj,
		ContentType:   contentType,
		ContentLength: stat.Size,
		AcceptRanges:  true,
		StatusCode:    200,
	}
	if rangeOK {
		result.StatusCode = 206
		result.ContentLength = end - start + 1
		result.ContentRange = fmt.Sprintf("bytes %d-%d/%d", start, end, stat.Size)
	}
	return result, nil
}

// parseRange interprets an HTTP Range header value ("bytes=start-end",
// "bytes=start-", "bytes=-suffix") against the object size. Unparseable or
// unsatisfiable ranges degrade to a full read.
func parseRange(header string, size int64) (start, end int64, ok bool) {
	if header == "" || size <= 0 {
		return 0, 0, false
	}
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}

	startStr, endStr, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false
	}

	if startStr == "" {
		// suffix form: last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		if n > size {
			n = size
		}
		return size - n, size - 1, true
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, false
	}

	end = size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, false
		}
		if end >= size {
			end = size - 1
		}
	}
	return start, end, true
}

// progressReader logs transfer progress at 10% increments as bytes flow
// through it.
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
		if pct >= p.lastPct+10 || (pct == 100 && p.lastPct != 100) {
			p.lastPct = pct - pct%10
			p.report(p.lastPct)
		}
	}
	return n, err
}

// contentTypeFor maps a filename extension to its MIME type.
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4":
		return "video/mp4"
	case ".avi":
		return "video/avi"
	case ".mov":
		return "video/quicktime"
	case ".wmv":
		return "video/x-ms-wmv"
	case ".flv":
		return "video/x-flv"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".svg":
		return "image/svg+xml"
	case ".pdf":
		return "application/pdf"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg":
		return "audio/ogg"
	case ".flac":
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// classifyError turns common S3 error codes into human-readable messages.
func classifyError(err error) string {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchBucket":
		return "bucket does not exist"
	case "InvalidAccessKeyId":
		return "invalid access key ID"
	case "SignatureDoesNotMatch":
		return "invalid secret access key"
	case "AccessDenied":
		return "access denied"
	}
	if strings.Contains(err.Error(), "no such host") || strings.Contains(err.Error(), "connection refused") {
		return "network connection failed"
	}
	return err.Error()
}
