package supplier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/okian/ryno/internal/domain/itemqueue"
	"github.com/okian/ryno/internal/domain/model"
	"github.com/okian/ryno/pkg/logger"
)

const (
	pixabayEndpoint = "https://pixabay.com/api/"
	pixabayTimeout  = 10 * time.Second
	pixabayMaxPage  = 200
	pixabayMinPage  = 3
)

// ImageSource returns up to n image URLs.
type ImageSource interface {
	ImageURLs(ctx context.Context, n int) ([]string, error)
}

// Pixabay fetches popular image URLs from the Pixabay API.
type Pixabay struct {
	key      string
	endpoint string
	client   *http.Client
}

// PixabayOption configures Pixabay.
type PixabayOption func(*Pixabay)

// WithPixabayEndpoint overrides the API endpoint.
func WithPixabayEndpoint(endpoint string) PixabayOption {
	return func(p *Pixabay) { p.endpoint = endpoint }
}

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) PixabayOption {
	return func(p *Pixabay) {
		if c != nil {
			p.client = c
		}
	}
}

// NewPixabay creates a Pixabay image source for the given API key.
func NewPixabay(key string, opts ...PixabayOption) *Pixabay {
	p := &Pixabay{
		key:      key,
		endpoint: pixabayEndpoint,
		client:   &http.Client{Timeout: pixabayTimeout},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type pixabayResponse struct {
	Hits []struct {
		WebformatURL string `json:"webformatURL"`
	} `json:"hits"`
}

// ImageURLs implements ImageSource.
func (p *Pixabay) ImageURLs(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	// the API rejects pages outside [3, 200]
	perPage := min(max(n, pixabayMinPage), pixabayMaxPage)

	q := url.Values{}
	q.Set("key", p.key)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("order", "popular")
	q.Set("image_type", "photo")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrImageFetch, resp.StatusCode)
	}
	var body pixabayResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrImageFetch, err)
	}

	urls := make([]string, 0, min(n, len(body.Hits)))
	for _, h := range body.Hits {
		if h.WebformatURL == "" {
			continue
		}
		urls = append(urls, h.WebformatURL)
		if len(urls) == n {
			break
		}
	}
	return urls, nil
}

// WithImages binds image URLs to "images" questions produced by Next, one
// URL per item in order. Items beyond the fetched URLs stay plain, and a
// failed fetch leaves the whole batch plain.
type WithImages struct {
	Next   itemqueue.Supplier
	Source ImageSource
	Logger logger.Logger
}

// Supply implements itemqueue.Supplier.
func (w WithImages) Supply(ctx context.Context, category, kind, theme string) ([]model.WorkItem, error) {
	items, err := w.Next.Supply(ctx, category, kind, theme)
	if err != nil || category != itemqueue.CategoryImages || kind != itemqueue.KindQuestions || len(items) == 0 {
		return items, err
	}

	log := w.Logger
	if log == nil {
		log = logger.Nop()
	}
	urls, err := w.Source.ImageURLs(ctx, len(items))
	if err != nil {
		log.Warn(ctx, "image fetch failed; questions stay unbound",
			logger.String("theme", theme),
			logger.Error(err))
		return items, nil
	}
	for i := range min(len(urls), len(items)) {
		items[i].Image = urls[i]
	}
	log.Debug(ctx, "images bound to questions",
		logger.String("theme", theme),
		logger.Int("bound", min(len(urls), len(items))),
		logger.Int("count", len(items)))
	return items, nil
}
