// Package collyfetcher downloads article pages using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBodySize caps the downloaded body in bytes. Zero keeps colly's 10MiB default.
	MaxBodySize int
}

// Page is the raw result of one fetch.
type Page struct {
	URL         string
	StatusCode  int
	Headers     http.Header
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// Fetcher performs single-page GETs. It is safe for concurrent use: the
// shared HTTP backend is configured once and every Fetch runs on a clone.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	c := colly.NewCollector(colly.Async(false))
	// candidates are re-fetched on reprocess
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	if cfg.MaxBodySize > 0 {
		c.MaxBodySize = cfg.MaxBodySize
	}
	c.WithTransport(newRobotsTransport(newHTTPTransport(), logger.Named("robots")))
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{cfg: cfg, baseCollector: c}
}

// Fetch executes a single HTTP GET. Non-2xx responses, robots.txt denials
// and transport failures are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	var (
		result   Page
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	f.configureCollectorHooks(collector, time.Now(), &result, &fetchErr)

	if err := collector.Visit(rawURL); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Page{}, fmt.Errorf("colly fetch canceled: %w", ctxErr)
		}
		if errors.Is(err, colly.ErrRobotsTxtBlocked) {
			return Page{}, fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		return Page{}, describeVisitError(rawURL, result, err)
	}
	if fetchErr != nil {
		return Page{}, fmt.Errorf("colly response failed: %w", fetchErr)
	}
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, start time.Time, result *Page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = Page{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			Headers:     r.Headers.Clone(),
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			result.StatusCode = r.StatusCode
		}
		*fetchErr = err
	})
}

func describeVisitError(rawURL string, result Page, err error) error {
	if result.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("fetch %s: http status %d: %w", rawURL, result.StatusCode, err)
	}
	return fmt.Errorf("colly visit failed: %w", err)
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
}
