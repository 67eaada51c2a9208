package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// FetchTimeout bounds each page request.
	FetchTimeout = 30 * time.Second

	// FetchUserAgent identifies the fetcher to remote sites.
	FetchUserAgent = "Mozilla/5.0 (compatible; LLM-Council/1.0)"

	// MaxFetchedChars caps the extracted text pasted into a prompt.
	MaxFetchedChars = 20000
)

// ErrUnsupportedURL is returned for anything but absolute http(s) URLs.
var ErrUnsupportedURL = errors.New("unsupported URL")

// URLContent is the readable text of a fetched page.
type URLContent struct {
	URL       string `json:"url"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Truncated bool   `json:"truncated,omitempty"`
}

// URLFetcher extracts readable text from web pages so users can add them to a
// question as context.
type URLFetcher struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// NewURLFetcher creates a fetcher with the default timeout.
func NewURLFetcher() *URLFetcher {
	return &URLFetcher{
		client:     &http.Client{Timeout: FetchTimeout},
		maxRetries: 2,
		retryDelay: 2 * time.Second,
	}
}

// FetchURLContent downloads a page and returns its title and body text.
func (f *URLFetcher) FetchURLContent(ctx context.Context, rawURL string) (URLContent, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return URLContent{}, fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL)
	}

	ctx, span := tracer.Start(ctx, "fetch.url")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return URLContent{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", FetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	// Execute request with retry logic
	var resp *http.Response
	for attempt := 0; attempt < f.maxRetries; attempt++ {
		resp, err = f.client.Do(req)
		if err == nil {
			break
		}

		if attempt < f.maxRetries-1 {
			slog.WarnContext(ctx, "url fetch failed, retrying", "url", parsed.String(), "attempt", attempt+1, "error", err)
			select {
			case <-ctx.Done():
				return URLContent{}, ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}
	}
	if err != nil {
		return URLContent{}, fmt.Errorf("failed to fetch %s after %d attempts: %w", parsed, f.maxRetries, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return URLContent{}, fmt.Errorf("unexpected status code %d for %s", resp.StatusCode, parsed)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return URLContent{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	content := ExtractReadableText(doc)
	content.URL = parsed.String()
	return content, nil
}

// ExtractReadableText pulls the title and block-level text out of a document,
// skipping scripts, styles and page chrome.
func ExtractReadableText(doc *goquery.Document) URLContent {
	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("main").First()
	}
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var blocks []string
	root.Find("h1, h2, h3, h4, p, li, pre, blockquote").Each(func(i int, s *goquery.Selection) {
		// Nested blocks are emitted by their innermost element.
		if s.Find("p, li, pre").Length() > 0 {
			return
		}
		text := collapseWhitespace(s.Text())
		if text != "" {
			blocks = append(blocks, text)
		}
	})

	if len(blocks) == 0 {
		if text := collapseWhitespace(root.Text()); text != "" {
			blocks = append(blocks, text)
		}
	}

	content := URLContent{Title: title, Content: strings.Join(blocks, "\n\n")}
	if runes := []rune(content.Content); len(runes) > MaxFetchedChars {
		content.Content = string(runes[:MaxFetchedChars])
		content.Truncated = true
	}
	return content
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
