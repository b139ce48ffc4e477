package pricelist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/procurement/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Fetcher downloads published price lists over HTTP
type Fetcher struct {
	client  *resty.Client
	maxSize int64
	logger  *zap.Logger
}

// FetcherConfig configures a Fetcher
type FetcherConfig struct {
	Timeout time.Duration
	MaxSize int64
	Retries int
}

// NewFetcher creates a new Fetcher
func NewFetcher(cfg FetcherConfig, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500*time.Millisecond).
		SetHeader("User-Agent", "procurement-feed-sync/1.0").
		SetHeader("Accept", "application/x-yaml, application/yaml, application/json;q=0.9, */*;q=0.5").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &Fetcher{client: client, maxSize: cfg.MaxSize, logger: logger}
}

// Fetch downloads url. The format comes from the response Content-Type or,
// failing that, the URL path, and is "" when neither names one.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, "", fmt.Errorf("fetch price list: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != http.StatusOK {
		return nil, "", shared.NewValidationError("FEED_UNAVAILABLE",
			fmt.Sprintf("Price list URL answered %d", resp.StatusCode()))
	}

	raw, err := io.ReadAll(io.LimitReader(body, f.maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read price list: %w", err)
	}
	if int64(len(raw)) > f.maxSize {
		return nil, "", shared.NewValidationError("DOCUMENT_TOO_LARGE",
			fmt.Sprintf("Price list exceeds %d bytes", f.maxSize))
	}

	format := FormatFromContentType(resp.Header().Get("Content-Type"))
	if format == "" {
		format = FormatFromPath(strings.SplitN(url, "?", 2)[0])
	}
	f.logger.Debug("Fetched price list",
		zap.String("url", url),
		zap.Int("bytes", len(raw)),
		zap.String("format", format),
		zap.Duration("elapsed", resp.Time()))
	return raw, format, nil
}
