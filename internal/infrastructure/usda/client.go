// Package usda downloads the USDA FoodData Central dataset and maps food
// table records to API responses.
package usda

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/foodbase/etl/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const (
	maxAttempts     = 3
	maxPageSize     = 10 << 20
	pageTimeout     = 30 * time.Second
	fullDownloadRow = "Full Download of All Data Types"
)

// datasetLinkPattern finds the CSV archive link when the downloads table layout changes
var datasetLinkPattern = regexp.MustCompile(`(?:https?://[^"'\s<>]+)?/fdc-datasets/FoodData_Central_csv_[^"'\s<>]*?\.zip`)

// Client downloads the FoodData Central CSV archive
type Client struct {
	httpClient  *http.Client
	pageURL     string
	baseURL     string
	rateLimiter *rate.Limiter
	debug       bool
}

// NewClient creates a new dataset download client. pageURL is the download
// page to scrape; relative links resolve against baseURL.
func NewClient(pageURL, baseURL string) *Client {
	// 1 request/sec, burst of 3
	limiter := rate.NewLimiter(rate.Limit(1), 3)

	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		pageURL:     pageURL,
		baseURL:     baseURL,
		rateLimiter: limiter,
	}
}

// SetDebug enables verbose logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

// exponentialBackoff returns the wait before retrying after the given attempt
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// doRequest executes an HTTP GET request with proper headers and error handling
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "foodetl/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDownloadFailure, err)
	}
	return resp, nil
}

// get fetches reqURL and hands a 200 response to handle, retrying transient
// failures (network errors, non-404 error statuses, errors from handle).
func (c *Client) get(ctx context.Context, reqURL string, handle func(io.Reader) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		lastErr = c.attempt(ctx, reqURL, handle)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(lastErr, domain.ErrDatasetNotFound) {
			return lastErr
		}

		log.Printf("[USDA] Request failed (attempt %d/%d): %v", attempt, maxAttempts, lastErr)
		if attempt < maxAttempts {
			if err := sleep(ctx, exponentialBackoff(attempt)); err != nil {
				return err
			}
		}
	}

	log.Printf("[USDA] All retries failed for %s", reqURL)
	return lastErr
}

func (c *Client) attempt(ctx context.Context, reqURL string, handle func(io.Reader) error) error {
	resp, err := c.doRequest(ctx, reqURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s returned 404", domain.ErrDatasetNotFound, reqURL)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", domain.ErrDownloadFailure, resp.StatusCode)
	}
	return handle(resp.Body)
}

// FindDatasetURL scrapes the download page for the full CSV archive link
func (c *Client) FindDatasetURL(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, pageTimeout)
	defer cancel()

	var page []byte
	err := c.get(ctx, c.pageURL, func(body io.Reader) error {
		var err error
		page, err = io.ReadAll(io.LimitReader(body, maxPageSize))
		if err != nil {
			return fmt.Errorf("%w: reading download page: %v", domain.ErrDownloadFailure, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	link := findFullDownloadLink(page)
	if link == "" {
		link = datasetLinkPattern.FindString(string(page))
		if link != "" && c.debug {
			log.Printf("[USDA] Downloads table not found, using link matched in page: %s", link)
		}
	}
	if link == "" {
		return "", fmt.Errorf("%w: no CSV archive link on %s", domain.ErrDatasetNotFound, c.pageURL)
	}

	resolved, err := c.resolve(link)
	if err != nil {
		return "", err
	}
	log.Printf("[USDA] Latest dataset: %s", resolved)
	return resolved, nil
}

func (c *Client) resolve(link string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", c.baseURL, err)
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: invalid archive link %q", domain.ErrDatasetNotFound, link)
	}
	return base.ResolveReference(ref).String(), nil
}

// Download streams the archive at archiveURL into destDir and returns the file path
func (c *Client) Download(ctx context.Context, archiveURL, destDir string) (string, error) {
	u, err := url.Parse(archiveURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid archive URL %q", domain.ErrDownloadFailure, archiveURL)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "dataset.zip"
	}
	dest := filepath.Join(destDir, name)
	partial := dest + ".part"

	start := time.Now()
	var written int64
	err = c.get(ctx, archiveURL, func(body io.Reader) error {
		f, err := os.Create(partial)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", partial, err)
		}
		written, err = io.Copy(f, body)
		closeErr := f.Close()
		if err != nil {
			return fmt.Errorf("%w: interrupted after %d bytes: %v", domain.ErrDownloadFailure, written, err)
		}
		return closeErr
	})
	if err != nil {
		os.Remove(partial)
		return "", err
	}
	if err := os.Rename(partial, dest); err != nil {
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}

	log.Printf("[USDA] Downloaded %s (%d bytes) in %v", dest, written, time.Since(start).Round(time.Millisecond))
	return dest, nil
}

// FetchTables downloads the latest archive into destDir and extracts the four source tables there
func (c *Client) FetchTables(ctx context.Context, destDir string) (domain.SourceFiles, error) {
	link, err := c.FindDatasetURL(ctx)
	if err != nil {
		return domain.SourceFiles{}, err
	}
	archive, err := c.Download(ctx, link, destDir)
	if err != nil {
		return domain.SourceFiles{}, err
	}
	return ExtractTables(archive, destDir, domain.SourceTableNames)
}

// findFullDownloadLink returns the href in the third cell of the downloads
// table row labelled "Full Download of All Data Types"
func findFullDownloadLink(page []byte) string {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return ""
	}

	for _, table := range findAll(doc, isDownloadsTable) {
		for _, row := range findAll(table, isElement("tr")) {
			cells := findAll(row, isElement("td"))
			if len(cells) < 3 || !strings.Contains(textContent(cells[0]), fullDownloadRow) {
				continue
			}
			for _, a := range findAll(cells[2], isElement("a")) {
				if href := attr(a, "href"); href != "" {
					return href
				}
			}
		}
	}
	return ""
}

func isElement(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func isDownloadsTable(n *html.Node) bool {
	if !isElement("table")(n) {
		return false
	}
	for _, class := range strings.Fields(attr(n, "class")) {
		if class == "downloads_table" {
			return true
		}
	}
	return false
}

func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if match(child) {
				out = append(out, child)
			}
			walk(child)
		}
	}
	walk(root)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textContent returns the text of n with whitespace runs collapsed
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
