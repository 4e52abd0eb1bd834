package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
)

// errTooManyRedirects stops the client after the single hop we follow.
var errTooManyRedirects = errors.New("more than one redirect")

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	Store      *FileStore
	HTTPClient *http.Client
	Logger     *infra.Logger
	Timeout    time.Duration
}

// Downloader fetches remote artifacts into the FileStore.
type Downloader struct {
	store      *FileStore
	httpClient *http.Client
	logger     *infra.Logger
}

// NewDownloader builds a Downloader. A caller-supplied HTTP client keeps its
// transport, but its redirect policy is replaced so at most one hop is taken.
func NewDownloader(opts DownloaderOptions) (*Downloader, error) {
	if opts.Store == nil {
		return nil, errors.New("storage: downloader needs a store")
	}
	client := &http.Client{}
	if opts.HTTPClient != nil {
		copied := *opts.HTTPClient
		client = &copied
	}
	if opts.Timeout > 0 {
		client.Timeout = opts.Timeout
	} else if client.Timeout == 0 {
		client.Timeout = 10 * time.Minute
	}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > 1 {
			return errTooManyRedirects
		}
		return nil
	}
	return &Downloader{store: opts.Store, httpClient: client, logger: infra.OrDiscard(opts.Logger)}, nil
}

// Download streams url into category under name and returns the final path.
// Any failure, including a non-2xx status or an empty body, removes the
// partial file and yields a *domain.DownloadError.
func (d *Downloader) Download(ctx context.Context, url string, c Category, name string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", &domain.DownloadError{URL: url, Err: errors.New("empty url")}
	}
	path, n, err := d.fetch(ctx, url, c, name)
	if err != nil {
		d.logger.Warn().Err(err).Str("url", url).Msg("downloader: download failed")
		return "", &domain.DownloadError{URL: url, Err: err}
	}
	d.logger.Info().Str("url", url).Str("path", path).Int64("bytes", n).Msg("downloader: saved artifact")
	return path, nil
}

func (d *Downloader) fetch(ctx context.Context, url string, c Category, name string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	tmp, err := d.store.createTemp(c, name)
	if err != nil {
		return "", 0, err
	}
	tmpPath := tmp.Name()
	fail := func(err error) (string, int64, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", 0, err
	}

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return fail(fmt.Errorf("read body: %w", err))
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return fail(fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength))
	}
	if n == 0 {
		return fail(errors.New("empty body"))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync: %w", err))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("close: %w", err)
	}
	final, err := d.store.commit(tmpPath, c, name)
	if err != nil {
		return "", 0, err
	}
	return final, n, nil
}
