package images

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// keyPrefix is the bucket-relative prefix all listing photos live under.
const keyPrefix = "properties/"

// maxDownloadBytes bounds how much of a source image is read.
const maxDownloadBytes = 32 << 20

// Uploader is the slice of the object store the pipeline needs.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Pipeline turns one remote image into a compressed, durably stored copy:
// download, bounded resize, JPEG re-encode, upload. Each step's failure
// aborts only that image.
type Pipeline struct {
	uploader   Uploader
	httpClient *http.Client
	maxWidth   int
	maxHeight  int
	quality    int
}

// NewPipeline creates a Pipeline with the given bounds. downloadTimeout
// applies to each source download independently of other feed timeouts.
func NewPipeline(uploader Uploader, downloadTimeout time.Duration, maxWidth, maxHeight, quality int) *Pipeline {
	return &Pipeline{
		uploader:   uploader,
		httpClient: &http.Client{Timeout: downloadTimeout},
		maxWidth:   maxWidth,
		maxHeight:  maxHeight,
		quality:    quality,
	}
}

// Process downloads sourceURL, compresses it, uploads the result and
// returns the public storage URL.
func (p *Pipeline) Process(ctx context.Context, sourceURL string) (string, error) {
	raw, err := p.download(ctx, sourceURL)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", sourceURL, err)
	}

	compressed, err := p.compress(raw)
	if err != nil {
		return "", fmt.Errorf("compress %s: %w", sourceURL, err)
	}

	storageURL, err := p.uploader.Put(ctx, ObjectKey(sourceURL), compressed, "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", sourceURL, err)
	}

	return storageURL, nil
}

func (p *Pipeline) download(ctx context.Context, sourceURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

// compress decodes the source bytes, fits the image into the configured
// bounds preserving aspect ratio (never upscaling), and re-encodes as JPEG
// at the fixed quality target.
func (p *Pipeline) compress(raw []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > p.maxWidth || bounds.Dy() > p.maxHeight {
		img = imaging.Fit(img, p.maxWidth, p.maxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	return buf.Bytes(), nil
}

// ObjectKey derives the storage key for a source URL: the source filename
// under the properties/ prefix, normalized to a .jpg extension.
func ObjectKey(sourceURL string) string {
	name := sourceURL
	if parsed, err := url.Parse(sourceURL); err == nil && parsed.Path != "" {
		name = parsed.Path
	}

	base := path.Base(name)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}

	return keyPrefix + base + ".jpg"
}
