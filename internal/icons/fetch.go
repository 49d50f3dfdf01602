package icons

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/disintegration/imaging"
)

// ErrNoOpaquePixels is returned when an icon image is fully transparent.
var ErrNoOpaquePixels = errors.New("icon has no opaque pixels")

// maxIconBytes caps a single icon download.
const maxIconBytes = 4 << 20

// ColorSource yields the display color for an icon.
type ColorSource interface {
	Color(ctx context.Context, ref Ref) (uint32, error)
}

// HTTPColorSource downloads the rendered icon from the icon CDN and runs
// DominantColor over it.
type HTTPColorSource struct {
	client  *http.Client
	baseURL string
	size    int
}

// NewHTTPColorSource builds a source for baseURL, e.g. https://img.icons8.com.
func NewHTTPColorSource(client *http.Client, baseURL string, size int) *HTTPColorSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPColorSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		size:    size,
	}
}

// URL returns the image location for ref. References without a variant use
// the "color" style.
func (h *HTTPColorSource) URL(ref Ref) string {
	style := ref.Variant
	if style == "" {
		style = "color"
	}
	return fmt.Sprintf("%s/%s/%d/%s.png", h.baseURL, url.PathEscape(style), h.size, url.PathEscape(ref.Name))
}

func (h *HTTPColorSource) Color(ctx context.Context, ref Ref) (uint32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL(ref), nil)
	if err != nil {
		return 0, fmt.Errorf("icon %s: %w", ref.CommonName, err)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch icon %s: %w", ref.CommonName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch icon %s: unexpected status %d", ref.CommonName, resp.StatusCode)
	}

	img, err := imaging.Decode(io.LimitReader(resp.Body, maxIconBytes))
	if err != nil {
		return 0, fmt.Errorf("decode icon %s: %w", ref.CommonName, err)
	}

	argb, ok := DominantColor(img)
	if !ok {
		return 0, fmt.Errorf("icon %s: %w", ref.CommonName, ErrNoOpaquePixels)
	}
	return argb, nil
}
