// Package fetch downloads model artifacts over HTTP with retry and feeds
// the artifact cache. The orchestration core treats artifacts as opaque
// byte blobs; parsing is the execution backend's concern.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"detectd/internal/artifactcache"
	"detectd/internal/retry"
)

const defaultTimeout = 5 * time.Minute

// Fetcher resolves artifact URLs to bytes, cache first.
type Fetcher struct {
	Client *http.Client
	Cache  *artifactcache.Cache
	Policy retry.Policy
	Logger zerolog.Logger
}

// New builds a Fetcher with a default client and retry policy.
func New(cache *artifactcache.Cache, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		Client: &http.Client{Timeout: defaultTimeout},
		Cache:  cache,
		Logger: log,
	}
}

// Fetch returns the artifact bytes for key. Cache hits skip the network
// entirely. Downloads go through the retry policy; the blob is stored in
// the cache best-effort afterwards. onProgress, when non-nil, receives
// 0-100 as bytes arrive and is advisory only.
func (f *Fetcher) Fetch(ctx context.Context, key, url string, onProgress func(pct int)) ([]byte, error) {
	if f.Cache != nil {
		if blob := f.Cache.Get(ctx, key); blob != nil {
			f.Logger.Debug().Str("key", key).Int("bytes", len(blob)).Msg("artifact cache hit")
			if onProgress != nil {
				onProgress(100)
			}
			return blob, nil
		}
	}
	var blob []byte
	err := retry.Do(ctx, f.Policy, func(ctx context.Context) error {
		var err error
		blob, err = f.download(ctx, url, onProgress)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s: %w", key, err)
	}
	if f.Cache != nil {
		f.Cache.Put(ctx, key, blob)
	}
	return blob, nil
}

func (f *Fetcher) download(ctx context.Context, url string, onProgress func(pct int)) ([]byte, error) {
	// Local paths are read directly; useful for bundled artifacts and tests.
	if !strings.Contains(url, "://") {
		return os.ReadFile(url)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: HTTP status %s", url, resp.Status)
	}
	return readAllProgress(resp.Body, resp.ContentLength, onProgress)
}

// readAllProgress reads r to completion, reporting monotonically
// non-decreasing percentages when the total length is known.
func readAllProgress(r io.Reader, total int64, onProgress func(pct int)) ([]byte, error) {
	if onProgress == nil || total <= 0 {
		b, err := io.ReadAll(r)
		if err == nil && onProgress != nil {
			onProgress(100)
		}
		return b, err
	}
	buf := make([]byte, 0, total)
	chunk := make([]byte, 64<<10)
	last := -1
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			pct := int(int64(len(buf)) * 100 / total)
			if pct > 100 {
				pct = 100
			}
			if pct > last {
				onProgress(pct)
				last = pct
			}
		}
		if err == io.EOF {
			if last < 100 {
				onProgress(100)
			}
			return buf, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
