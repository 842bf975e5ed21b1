// Package datasets downloads, caches and loads the example data used in
// documentation and examples.
//
// Files are fetched from a versioned remote location into a local cache
// directory, verified against a registry of SHA-256 hashes, and downloaded
// again only when missing or corrupt. The cache directory defaults to the OS
// cache directory and can be moved with the SKNNRSPATIAL_DATA_DIR
// environment variable.
package datasets

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/YuminosukeSato/scigo-spatial/pkg/config"
	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/YuminosukeSato/scigo-spatial/pkg/log"
)

// Registry maps file names to their SHA-256 hash in hex, optionally prefixed
// with "sha256:". An empty hash disables verification for that file.
type Registry map[string]string

// Processor post-processes a fetched file and returns the paths the caller
// should use. downloaded is true when the file was just downloaded.
type Processor func(path string, downloaded bool) ([]string, error)

// Fetcher downloads registered files into a local cache.
type Fetcher struct {
	baseURL   string
	dir       string
	registry  Registry
	retries   int
	retryWait func(attempt int) time.Duration
	client    *http.Client
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithBaseURL overrides the remote location. "{version}" is not expanded.
func WithBaseURL(url string) FetcherOption {
	return func(f *Fetcher) { f.baseURL = url }
}

// WithCacheDir overrides the local cache directory.
func WithCacheDir(dir string) FetcherOption {
	return func(f *Fetcher) { f.dir = dir }
}

// WithRegistry sets the files that can be fetched.
func WithRegistry(r Registry) FetcherOption {
	return func(f *Fetcher) {
		f.registry = make(Registry, len(r))
		for k, v := range r {
			f.registry[k] = v
		}
	}
}

// WithRetries sets the number of additional download attempts.
func WithRetries(n int) FetcherOption {
	return func(f *Fetcher) { f.retries = n }
}

// WithRetryWait sets the wait before retry attempt n (1-based).
func WithRetryWait(wait func(attempt int) time.Duration) FetcherOption {
	return func(f *Fetcher) { f.retryWait = wait }
}

// WithHTTPClient sets the HTTP client used for downloads.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// NewFetcher creates a fetcher from cfg. The cache directory is
// cfg.Data.Dir/cfg.Data.Version and the base URL has "{version}" replaced by
// cfg.Data.Version. A nil cfg uses config.DefaultConfig.
func NewFetcher(cfg *config.Config, opts ...FetcherOption) *Fetcher {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	f := &Fetcher{
		baseURL:   strings.ReplaceAll(cfg.Data.BaseURL, "{version}", cfg.Data.Version),
		dir:       filepath.Join(cfg.Data.Dir, cfg.Data.Version),
		registry:  Registry{},
		retries:   cfg.Data.Retries,
		retryWait: defaultRetryWait,
		client:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func defaultRetryWait(attempt int) time.Duration {
	return min(time.Duration(attempt)*time.Second, 10*time.Second)
}

// Dir returns the local cache directory.
func (f *Fetcher) Dir() string { return f.dir }

// Fetch returns the local path of name, downloading it when it is missing or
// its hash does not match the registry. With a processor, Fetch returns the
// processor's paths instead.
func (f *Fetcher) Fetch(ctx context.Context, name string, proc Processor) ([]string, error) {
	want, ok := f.registry[name]
	if !ok {
		return nil, errors.NewValueError("Fetcher.Fetch", fmt.Sprintf("%q is not in the registry", name))
	}
	want = strings.TrimPrefix(strings.ToLower(want), "sha256:")

	path := filepath.Join(f.dir, name)
	url := strings.TrimSuffix(f.baseURL, "/") + "/" + name
	logger := log.GetLoggerWithName("datasets").With(log.URLKey, url, log.PathKey, path)

	downloaded := false
	if got, err := fileHash(path); err == nil && (want == "" || got == want) {
		logger.Debug("cache hit", log.CacheHitKey, true)
	} else {
		if err := os.MkdirAll(f.dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create cache directory")
		}
		if err := f.download(ctx, url, path, want, logger); err != nil {
			return nil, err
		}
		downloaded = true
	}

	if proc == nil {
		return []string{path}, nil
	}
	return proc(path, downloaded)
}

func (f *Fetcher) download(ctx context.Context, url, path, want string, logger log.Logger) error {
	var err error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			logger.Warn("download failed, retrying", log.AttemptKey, attempt, "error", err.Error())
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "download canceled")
			case <-time.After(f.retryWait(attempt)):
			}
		}
		if err = f.downloadOnce(ctx, url, path, want); err == nil {
			logger.Info("downloaded", log.AttemptKey, attempt)
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return errors.Wrapf(err, "download %s", url)
}

// downloadOnce writes to a temporary file next to path and renames it into
// place only after the hash is verified.
func (f *Fetcher) downloadOnce(ctx context.Context, url, path, want string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrap(err, "write download")
	}

	if got := hex.EncodeToString(h.Sum(nil)); want != "" && got != want {
		return errors.Wrapf(errors.ErrChecksumMismatch,
			"SHA256 hash of downloaded file (%s) does not match the known hash: expected %s", got, want)
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "move download into cache")
}

func fileHash(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Unzip extracts an archive into "<archive>.unzip" next to it and returns
// the extracted file paths in archive order. The archive is extracted again
// when it was just downloaded or the directory is missing.
func Unzip(path string, downloaded bool) ([]string, error) {
	dest := path + ".unzip"
	_, statErr := os.Stat(dest)
	extract := downloaded || statErr != nil
	if extract {
		if err := os.RemoveAll(dest); err != nil {
			return nil, errors.Wrap(err, "clear extract directory")
		}
	}

	// ErrInsecurePath comes with a usable reader; such names are rejected below.
	r, err := zip.OpenReader(path)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, errors.Wrap(err, "open archive")
	}
	defer r.Close()

	var paths []string
	for _, zf := range r.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(zf.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return nil, errors.NewValueError("Unzip", fmt.Sprintf("illegal file path %q in archive", zf.Name))
		}
		if extract {
			if err := extractFile(zf, target); err != nil {
				return nil, err
			}
		}
		paths = append(paths, target)
	}
	return paths, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(err, "create directory")
	}
	src, err := zf.Open()
	if err != nil {
		return errors.Wrapf(err, "open %s", zf.Name)
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return errors.Wrapf(err, "create %s", target)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.Wrapf(err, "extract %s", zf.Name)
	}
	return dst.Close()
}
