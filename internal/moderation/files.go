package moderation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"memalerts/internal/fileutil"
	"memalerts/internal/queue"
	"memalerts/internal/services"
)

// FileContext describes the media behind a submission.
type FileContext struct {
	LocalPath   string
	Fingerprint string
	DurationMS  int64
	Computed    bool
}

// FileResolver locates submitted media and fingerprints it.
type FileResolver struct {
	UploadsDir string
	// HTTP fetches url sources. http.DefaultClient is used when nil.
	HTTP          *http.Client
	FetchTimeout  time.Duration
	MaxFetchBytes int64
}

// Resolve returns the media context for sub. Upload locators must resolve to
// an existing file under UploadsDir. URL sources without a fingerprint are
// downloaded once and hashed while streaming; nothing is kept on disk.
func (r FileResolver) Resolve(ctx context.Context, sub *queue.Submission) (FileContext, error) {
	fc := FileContext{
		Fingerprint: strings.TrimSpace(sub.Fingerprint),
		DurationMS:  sub.DurationMS,
	}
	if err := ctx.Err(); err != nil {
		return fc, err
	}
	if sub.SourceKind == queue.SourceURL {
		if fc.Fingerprint != "" {
			return fc, nil
		}
		digest, err := r.fetchDigest(ctx, sub.FileLocator)
		if err != nil {
			return fc, err
		}
		fc.Fingerprint = digest.SHA256
		fc.Computed = true
		return fc, nil
	}

	path, err := fileutil.ResolveWithin(r.UploadsDir, sub.FileLocator)
	if err != nil {
		return fc, services.Wrap(services.ErrValidation, "moderation", "resolve file", sub.FileLocator, err)
	}
	fc.LocalPath = path

	if fc.Fingerprint != "" {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return fc, services.Wrap(services.ErrNotFound, "moderation", "resolve file", "uploaded file is missing", err)
		}
		return fc, nil
	}

	digest, err := fileutil.HashFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fc, services.Wrap(services.ErrNotFound, "moderation", "resolve file", "uploaded file is missing", err)
		}
		return fc, services.Wrap(services.ErrTransient, "moderation", "fingerprint", sub.FileLocator, err)
	}
	fc.Fingerprint = digest.SHA256
	fc.Computed = true
	return fc, nil
}

func (r FileResolver) fetchDigest(ctx context.Context, locator string) (fileutil.Digest, error) {
	locator = strings.TrimSpace(locator)
	parsed, err := url.Parse(locator)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fileutil.Digest{}, services.Wrap(services.ErrValidation, "moderation", "fetch media", "locator is not an http(s) url", err)
	}

	if r.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.FetchTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return fileutil.Digest{}, services.Wrap(services.ErrValidation, "moderation", "fetch media", "build request", err)
	}
	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fileutil.Digest{}, fetchError(ctx, r.FetchTimeout, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fileutil.Digest{}, services.Wrap(services.ErrNotFound, "moderation", "fetch media", fmt.Sprintf("remote returned %d", resp.StatusCode), nil)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fileutil.Digest{}, services.Wrap(services.ErrTransient, "moderation", "fetch media", fmt.Sprintf("remote returned %d", resp.StatusCode), nil)
	}
	if r.MaxFetchBytes > 0 && resp.ContentLength > r.MaxFetchBytes {
		return fileutil.Digest{}, tooLarge(r.MaxFetchBytes)
	}

	var body io.Reader = resp.Body
	if r.MaxFetchBytes > 0 {
		body = io.LimitReader(resp.Body, r.MaxFetchBytes+1)
	}
	digest, err := fileutil.HashReader(body)
	if err != nil {
		return fileutil.Digest{}, fetchError(ctx, r.FetchTimeout, err)
	}
	if r.MaxFetchBytes > 0 && digest.Size > r.MaxFetchBytes {
		return fileutil.Digest{}, tooLarge(r.MaxFetchBytes)
	}
	if digest.Size == 0 {
		return fileutil.Digest{}, services.Wrap(services.ErrTransient, "moderation", "fetch media", "remote returned an empty body", nil)
	}
	return digest, nil
}

func fetchError(ctx context.Context, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "moderation", "fetch media", fmt.Sprintf("exceeded %s", timeout), err)
	}
	return services.Wrap(services.ErrTransient, "moderation", "fetch media", "", err)
}

func tooLarge(limit int64) error {
	return services.Wrap(services.ErrValidation, "moderation", "fetch media", fmt.Sprintf("remote media exceeds %d bytes", limit), nil)
}
