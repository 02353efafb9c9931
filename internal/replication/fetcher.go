package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotPublished is returned for a sequence the server does not have yet
	ErrNotPublished = errors.New("sequence not published yet")
	// ErrUpToDate is returned by Next when no newer diff exists
	ErrUpToDate = errors.New("already at the latest sequence")
)

// Fetcher downloads state and change files from a source
type Fetcher struct {
	source     *Source
	client     *http.Client
	cacheDir   string
	maxRetries int
	retryDelay time.Duration
	log        *zap.Logger
}

// NewFetcher creates a fetcher caching diffs under cacheDir
func NewFetcher(source *Source, cacheDir string, log *zap.Logger) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		source:     source,
		client:     &http.Client{Timeout: 60 * time.Second},
		cacheDir:   cacheDir,
		maxRetries: 3,
		retryDelay: 5 * time.Second,
		log:        log,
	}
}

// CurrentState fetches the server's latest state
func (f *Fetcher) CurrentState(ctx context.Context) (*State, error) {
	resp, err := f.get(ctx, f.source.StateURL())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch state: %w", err)
	}
	defer resp.Body.Close()

	state, err := ParseState(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse state: %w", err)
	}
	f.log.Debug("Fetched replication state",
		zap.String("source", f.source.Name),
		zap.Int64("sequence", state.Sequence),
		zap.Time("timestamp", state.Timestamp))
	return state, nil
}

// SequenceState fetches the state written alongside the diff for seq
func (f *Fetcher) SequenceState(ctx context.Context, seq int64) (*State, error) {
	resp, err := f.get(ctx, f.source.SequenceStateURL(seq))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch state %d: %w", seq, err)
	}
	defer resp.Body.Close()
	return ParseState(resp.Body)
}

// Next downloads the diff following local and returns its path with the
// state to record once it has been encoded
func (f *Fetcher) Next(ctx context.Context, local *State) (string, *State, error) {
	remote, err := f.CurrentState(ctx)
	if err != nil {
		return "", nil, err
	}
	if local.Sequence >= remote.Sequence {
		return "", nil, ErrUpToDate
	}

	seq := local.Sequence + 1
	next := remote
	if seq != remote.Sequence {
		if next, err = f.SequenceState(ctx, seq); err != nil {
			return "", nil, err
		}
	}
	path, err := f.Download(ctx, seq)
	if err != nil {
		return "", nil, err
	}
	return path, next, nil
}

// Download stores the change file for seq in the cache and returns its path.
// A cached file is reused.
func (f *Fetcher) Download(ctx context.Context, seq int64) (string, error) {
	path := filepath.Join(f.cacheDir, filepath.FromSlash(SequencePath(seq))+".osc.gz")
	if _, err := os.Stat(path); err == nil {
		f.log.Debug("Using cached change file", zap.String("path", path))
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	url := f.source.DiffURL(seq)
	resp, err := f.get(ctx, url)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create cache file: %w", err)
	}
	n, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to rename cache file: %w", err)
	}

	f.log.Info("Downloaded change file",
		zap.Int64("sequence", seq),
		zap.Int64("bytes", n),
		zap.String("path", path))
	return path, nil
}

// get performs a GET, retrying transport and server errors. A 404 maps to
// ErrNotPublished; only 200 responses are returned.
func (f *Fetcher) get(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "georender-go/1.0")

		resp, err := f.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			return resp, nil
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return nil, ErrNotPublished
		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			f.log.Warn("Retrying replication request",
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
			continue
		default:
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
