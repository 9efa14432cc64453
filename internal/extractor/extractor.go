// Package extractor turns a candidate URL into article fields. Pages are
// downloaded with the colly fetcher, the main content is isolated with
// go-readability and the body is rendered as plain text (goquery) or
// markdown (html-to-markdown).
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	collyfetcher "github.com/JakeFAU/article-scraper/internal/fetcher/colly"
	"github.com/JakeFAU/article-scraper/internal/metrics"
	"github.com/JakeFAU/article-scraper/internal/scraper"
)

// Body formats.
const (
	FormatText     = "text"
	FormatMarkdown = "markdown"
)

// PageFetcher downloads a single page.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (collyfetcher.Page, error)
}

// HostLimiter throttles requests per host.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithLimiter makes every Extract wait on l before fetching.
func WithLimiter(l HostLimiter) Option {
	return func(e *Extractor) {
		e.limiter = l
	}
}

// Config controls how article bodies are rendered.
type Config struct {
	// Format is FormatText (default) or FormatMarkdown.
	Format string
}

// Extractor implements scraper.Extractor.
type Extractor struct {
	fetcher   PageFetcher
	format    string
	converter *md.Converter
	limiter   HostLimiter
	logger    *zap.Logger
}

var (
	whitespace  = regexp.MustCompile(`\s+`)
	blockOpen   = regexp.MustCompile(`<(div|p|br|li|td|tr|h[1-6]|blockquote)(\s[^>]*)?/?>`)
	bylineStart = regexp.MustCompile(`(?i)^(by|por|from)\s+`)
	bylineSplit = regexp.MustCompile(`(?i)\s*(,|;|&|\||\s+and\s+|\s+e\s+)\s*`)
)

// New builds an Extractor around fetcher.
func New(fetcher PageFetcher, cfg Config, logger *zap.Logger, opts ...Option) (*Extractor, error) {
	if fetcher == nil {
		return nil, errors.New("extractor requires a page fetcher")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatMarkdown:
	default:
		return nil, fmt.Errorf("unknown content format %q", cfg.Format)
	}
	e := &Extractor{
		fetcher:   fetcher,
		format:    format,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract downloads rawURL and parses the main article. Every failure wraps
// scraper.ErrExtraction; pages without readable body text also wrap
// scraper.ErrEmptyContent.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (scraper.Article, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx, rawURL); err != nil {
			return scraper.Article{}, fmt.Errorf("%w: %w", scraper.ErrExtraction, err)
		}
	}
	start := time.Now()
	page, err := e.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		metrics.ObserveExtraction(rawURL, false, 0, time.Since(start))
		return scraper.Article{}, fmt.Errorf("%w: download: %w", scraper.ErrExtraction, err)
	}

	article, err := e.parse(rawURL, page)
	metrics.ObserveExtraction(rawURL, err == nil, len(page.Body), time.Since(start))
	if err != nil {
		return scraper.Article{}, err
	}
	e.logger.Debug("article extracted",
		zap.String("url", rawURL),
		zap.Int("bytes", len(page.Body)),
		zap.Int("body_chars", len(article.BodyText)),
		zap.Duration("duration", time.Since(start)),
	)
	return article, nil
}

func (e *Extractor) parse(rawURL string, page collyfetcher.Page) (scraper.Article, error) {
	if ct := strings.ToLower(page.ContentType); ct != "" && !strings.Contains(ct, "html") {
		return scraper.Article{}, fmt.Errorf("%w: unsupported content type %q", scraper.ErrExtraction, page.ContentType)
	}
	pageURL := page.URL
	if pageURL == "" {
		pageURL = rawURL
	}
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return scraper.Article{}, fmt.Errorf("%w: parse url: %w", scraper.ErrExtraction, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return scraper.Article{}, fmt.Errorf("%w: parse html: %w", scraper.ErrExtraction, err)
	}

	parsed, err := readability.FromReader(bytes.NewReader(page.Body), parsedURL)
	if err != nil {
		if normalizeText(doc.Find("body").Text()) == "" {
			return scraper.Article{}, fmt.Errorf("%w: %w", scraper.ErrExtraction, scraper.ErrEmptyContent)
		}
		return scraper.Article{}, fmt.Errorf("%w: readability: %w", scraper.ErrExtraction, err)
	}

	body, err := e.render(parsed.Content, parsed.TextContent)
	if err != nil {
		return scraper.Article{}, err
	}
	if body == "" {
		return scraper.Article{}, fmt.Errorf("%w: %w", scraper.ErrExtraction, scraper.ErrEmptyContent)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		title = metaContent(doc, `meta[property="og:title"]`)
	}
	if title == "" {
		title = normalizeText(doc.Find("title").First().Text())
	}

	authors := splitByline(parsed.Byline)
	if len(authors) == 0 {
		authors = splitByline(metaContent(doc, `meta[name="author"]`))
	}

	publishDate := parsed.PublishedTime
	if publishDate == nil {
		publishDate = metaTime(doc)
	}
	if publishDate != nil {
		ts := publishDate.UTC()
		publishDate = &ts
	}

	return scraper.Article{
		URL:         pageURL,
		Title:       title,
		Authors:     authors,
		PublishDate: publishDate,
		BodyText:    body,
		RawHTML:     page.Body,
	}, nil
}

func (e *Extractor) render(contentHTML, fallbackText string) (string, error) {
	if e.format == FormatMarkdown && strings.TrimSpace(contentHTML) != "" {
		markdown, err := e.converter.ConvertString(contentHTML)
		if err != nil {
			return "", fmt.Errorf("%w: markdown: %w", scraper.ErrExtraction, err)
		}
		return strings.TrimSpace(markdown), nil
	}
	if strings.TrimSpace(contentHTML) == "" {
		return normalizeText(fallbackText), nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(spaceBlocks(contentHTML)))
	if err != nil {
		return "", fmt.Errorf("%w: parse content: %w", scraper.ErrExtraction, err)
	}
	return normalizeText(doc.Text()), nil
}

// spaceBlocks pads block-level tags so adjacent paragraphs do not run together
// once the markup is stripped.
func spaceBlocks(html string) string {
	return blockOpen.ReplaceAllString(html, " $0")
}

func normalizeText(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

func splitByline(byline string) []string {
	byline = normalizeText(byline)
	byline = bylineStart.ReplaceAllString(byline, "")
	if byline == "" {
		return nil
	}
	var authors []string
	seen := make(map[string]struct{})
	for _, part := range bylineSplit.Split(byline, -1) {
		name := strings.TrimSpace(bylineStart.ReplaceAllString(strings.TrimSpace(part), ""))
		if name == "" || strings.HasPrefix(name, "http") {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		authors = append(authors, name)
	}
	return authors
}

func metaContent(doc *goquery.Document, selector string) string {
	return normalizeText(doc.Find(selector).First().AttrOr("content", ""))
}

var publishedLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func metaTime(doc *goquery.Document) *time.Time {
	for _, selector := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="pubdate"]`,
		`meta[itemprop="datePublished"]`,
	} {
		raw := metaContent(doc, selector)
		if raw == "" {
			continue
		}
		for _, layout := range publishedLayouts {
			if ts, err := time.Parse(layout, raw); err == nil {
				return &ts
			}
		}
	}
	return nil
}
