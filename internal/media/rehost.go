// Package media re-hosts images referenced by imported posts on the daemon.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/seedhypermedia/wxr-importer/internal/blocks"
	"github.com/seedhypermedia/wxr-importer/internal/daemon"
	"github.com/seedhypermedia/wxr-importer/internal/ratelimit"
)

const (
	// maxImageSize limits download size to prevent memory exhaustion.
	maxImageSize = 10 * 1024 * 1024 // 10MB

	// downloadTimeout is the maximum time for one image download.
	downloadTimeout = 30 * time.Second

	// Per source host: 2 requests per second, burst of 4.
	defaultRPS   = 2.0
	defaultBurst = 4
)

var (
	// ErrNotImage is returned when the response is not an image.
	ErrNotImage = errors.New("media: not an image")
	// ErrTooLarge is returned when the image exceeds maxImageSize.
	ErrTooLarge = errors.New("media: image too large")
)

// Rehoster downloads images and uploads them as daemon blobs.
type Rehoster struct {
	httpClient *http.Client
	uploader   daemon.BlobUploader
	limiter    *ratelimit.KeyedRateLimiter
	logger     *slog.Logger

	// widths remembers intrinsic widths by content id for cache hits.
	mu     sync.Mutex
	widths map[string]int
}

// NewRehoster creates a rehoster uploading through uploader.
func NewRehoster(uploader daemon.BlobUploader, logger *slog.Logger) *Rehoster {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Rehoster{
		httpClient: &http.Client{Timeout: downloadTimeout},
		uploader:   uploader,
		limiter:    ratelimit.New(defaultRPS, defaultBurst),
		logger:     logger,
		widths:     make(map[string]int),
	}
}

// Close stops the rate limiter.
func (r *Rehoster) Close() {
	r.limiter.Stop()
}

// Uploader returns a function for blocks.Options.UploadImage backed by cache,
// a source URL to content id map. Hits skip the download; their width is known
// only when this rehoster uploaded them. Failures are logged and reported as
// an empty image so the original URL is kept. The returned function is not
// safe for concurrent use.
func (r *Rehoster) Uploader(cache map[string]string) func(ctx context.Context, src string) (blocks.Image, error) {
	return func(ctx context.Context, src string) (blocks.Image, error) {
		if cid, ok := cache[src]; ok {
			return blocks.Image{CID: cid, Width: r.width(cid)}, nil
		}
		img, err := r.Rehost(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return blocks.Image{}, ctx.Err()
			}
			r.logger.Warn("failed to rehost image", "url", src, "error", err)
			return blocks.Image{}, nil
		}
		cache[src] = img.CID
		return img, nil
	}
}

// Rehost downloads the image at src and uploads it.
func (r *Rehoster) Rehost(ctx context.Context, src string) (blocks.Image, error) {
	u, err := url.Parse(src)
	if err != nil {
		return blocks.Image{}, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return blocks.Image{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	if err := r.limiter.WaitURL(ctx, u); err != nil {
		return blocks.Image{}, fmt.Errorf("rate limit wait: %w", err)
	}

	data, contentType, err := r.download(ctx, src)
	if err != nil {
		return blocks.Image{}, err
	}

	cid, err := r.uploader.UploadBlob(ctx, data, contentType)
	if err != nil {
		return blocks.Image{}, fmt.Errorf("upload: %w", err)
	}

	img := blocks.Image{CID: cid}
	// SVG and other formats without a decoder keep an unknown width.
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width = cfg.Width
		r.mu.Lock()
		r.widths[cid] = cfg.Width
		r.mu.Unlock()
		r.logger.Debug("rehosted image", "url", src, "cid", cid, "format", format, "width", cfg.Width, "height", cfg.Height)
	} else {
		r.logger.Debug("rehosted image", "url", src, "cid", cid, "content_type", contentType)
	}
	return img, nil
}

func (r *Rehoster) width(cid string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.widths[cid]
}

func (r *Rehoster) download(ctx context.Context, src string) ([]byte, string, error) {
	downloadCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "SeedImporter/1.0")

	// Redirects are followed by the client.
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read data: %w", err)
	}
	if len(data) > maxImageSize {
		return nil, "", ErrTooLarge
	}

	contentType := resp.Header.Get("Content-Type")
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	} else {
		contentType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		// Servers often send application/octet-stream for images.
		sniffed := http.DetectContentType(data)
		if !strings.HasPrefix(sniffed, "image/") {
			return nil, "", fmt.Errorf("%w: %s", ErrNotImage, contentType)
		}
		contentType = sniffed
	}
	return data, contentType, nil
}
