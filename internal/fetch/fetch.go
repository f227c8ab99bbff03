// Package fetch downloads the recognition package (item icon templates) from
// the asset host or CDN.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andresmejia3/depotscan/internal/blob"
	"github.com/andresmejia3/depotscan/internal/utils"
)

// DefaultMaxSize bounds the package download. The real archive is a few MB.
const DefaultMaxSize = 64 * 1024 * 1024

// HTTPFetcher performs a single GET of the package asset.
type HTTPFetcher struct {
	// BaseURL is the asset host, e.g. a CDN origin. Empty means AssetPath is absolute.
	BaseURL   string
	AssetPath string
	Client    *http.Client
	MaxSize   int64
	// Progress, when set, is called once the response size is known and
	// receives every chunk read from the body.
	Progress func(total int64) io.Writer
}

// New returns a fetcher with a default client timeout.
func New(baseURL, assetPath string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL:   baseURL,
		AssetPath: assetPath,
		Client:    &http.Client{Timeout: 2 * time.Minute},
		MaxSize:   DefaultMaxSize,
	}
}

// URL resolves the asset path against the base URL.
func (f *HTTPFetcher) URL() (string, error) {
	if f.BaseURL == "" {
		return f.AssetPath, nil
	}
	base, err := url.Parse(strings.TrimSuffix(f.BaseURL, "/") + "/")
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", f.BaseURL, err)
	}
	ref, err := url.Parse(strings.TrimPrefix(f.AssetPath, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid asset path %q: %w", f.AssetPath, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Fetch downloads the package and verifies its content address when the
// asset name carries one.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*blob.Blob, error) {
	target, err := f.URL()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download package: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("package download failed: %s", resp.Status)
	}

	limit := f.MaxSize
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("package is %d bytes, limit is %d", resp.ContentLength, limit)
	}

	var buf bytes.Buffer
	if resp.ContentLength > 0 {
		buf.Grow(int(resp.ContentLength))
	}
	var dst io.Writer = &buf
	if f.Progress != nil {
		if w := f.Progress(resp.ContentLength); w != nil {
			dst = io.MultiWriter(&buf, w)
		}
	}

	// Read one byte past the limit so oversize bodies without Content-Length are caught
	n, err := io.Copy(dst, io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read package body: %w", err)
	}
	if n > limit {
		return nil, fmt.Errorf("package exceeds %d bytes", limit)
	}
	if n == 0 {
		return nil, fmt.Errorf("package is empty")
	}

	data := buf.Bytes()
	if want := utils.AssetDigest(req.URL.Path); want != "" {
		if got := utils.ContentDigest(data, len(want)); got != want {
			return nil, fmt.Errorf("package digest mismatch: asset name says %s, content is %s", want, got)
		}
	}

	return blob.New(data), nil
}
