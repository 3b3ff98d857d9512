// Package listsource expands list entries that reference external lists.
//
// An entry of the form file://<path> or http(s)://<url> is replaced by the
// lines of the referenced list. Blank lines and lines starting with "//" are
// skipped. Document tags (<Name>) in an entry are expanded before the entry
// is interpreted, so a list may depend on the document being processed.
// Loaded lists are cached per document.
package listsource

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/afpipeline/runtime/internal/document"
	"github.com/afpipeline/runtime/internal/errhandling"
	"github.com/afpipeline/runtime/internal/httpconfig"
	"github.com/afpipeline/runtime/internal/logger"
	"github.com/afpipeline/runtime/internal/pathutil"
	"github.com/afpipeline/runtime/internal/template"
)

const (
	filePrefix = "file://"

	// DefaultMaxDocuments is the number of documents whose lists are kept.
	DefaultMaxDocuments = 16
)

// Cache expands list entries and caches loaded lists per document ID.
// Cache is safe for concurrent use.
type Cache struct {
	// BaseDir resolves relative file:// paths, which may not leave it.
	// Empty means the working directory.
	BaseDir string
	// Headers are sent with HTTP fetches; values may use {{doc.*}} templates.
	Headers map[string]string
	// Retry applies to HTTP fetches.
	Retry errhandling.RetryConfig
	// Client performs HTTP fetches.
	Client *http.Client
	// MaxDocuments bounds the number of cached documents.
	MaxDocuments int

	evaluator *template.Evaluator

	mu    sync.Mutex
	docs  map[string]map[string][]string
	order []string
	loads int
}

// Default is the process-wide cache used by handlers without their own.
var Default = New()

// New creates a cache with default retry and HTTP settings.
func New() *Cache {
	return NewWithHTTPConfig(httpconfig.Default())
}

// NewWithHTTPConfig creates a cache fetching lists with the given HTTP settings.
func NewWithHTTPConfig(cfg httpconfig.Config) *Cache {
	return &Cache{
		Headers:      cfg.Headers,
		Retry:        cfg.Retry,
		Client:       cfg.Client(),
		MaxDocuments: DefaultMaxDocuments,
		evaluator:    template.NewEvaluator(),
	}
}

// IsExternal reports whether entry references an external list.
func IsExternal(entry string) bool {
	lower := strings.ToLower(strings.TrimSpace(entry))
	return strings.HasPrefix(lower, filePrefix) ||
		strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://")
}

// Expand returns entries with tags expanded and external lists inlined, in order.
func (c *Cache) Expand(ctx context.Context, doc *document.Document, entries []string) ([]string, error) {
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		expanded := entry
		if doc != nil {
			expanded = doc.ExpandTags(entry)
		}
		if !IsExternal(expanded) {
			out = append(out, expanded)
			continue
		}
		lines, err := c.load(ctx, doc, strings.TrimSpace(expanded))
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
	}
	return out, nil
}

// Forget drops every list cached for the document.
func (c *Cache) Forget(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, docID)
	for i, id := range c.order {
		if id == docID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Loads returns how many lists were loaded from their source.
func (c *Cache) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

func docKey(doc *document.Document) string {
	if doc == nil {
		return ""
	}
	return doc.ID
}

func (c *Cache) lookup(docID, source string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines, ok := c.docs[docID][source]
	return lines, ok
}

func (c *Cache) store(docID, source string, lines []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.docs == nil {
		c.docs = make(map[string]map[string][]string)
	}
	c.loads++
	perDoc, ok := c.docs[docID]
	if !ok {
		perDoc = make(map[string][]string)
		c.docs[docID] = perDoc
		c.order = append(c.order, docID)
		limit := c.MaxDocuments
		if limit <= 0 {
			limit = DefaultMaxDocuments
		}
		for len(c.order) > limit {
			delete(c.docs, c.order[0])
			c.order = c.order[1:]
		}
	}
	perDoc[source] = lines
}

func (c *Cache) load(ctx context.Context, doc *document.Document, source string) ([]string, error) {
	docID := docKey(doc)
	if lines, ok := c.lookup(docID, source); ok {
		return lines, nil
	}

	var (
		lines []string
		err   error
	)
	if strings.HasPrefix(strings.ToLower(source), filePrefix) {
		lines, err = c.readFile(source[len(filePrefix):])
	} else {
		lines, err = c.fetch(ctx, doc, source)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("list source loaded",
		slog.String("source", source),
		slog.String("document_id", docID),
		slog.Int("entries", len(lines)),
	)
	c.store(docID, source, lines)
	return lines, nil
}

func (c *Cache) readFile(path string) ([]string, error) {
	path, err := pathutil.Resolve(c.BaseDir, path)
	if err != nil {
		return nil, errhandling.NewInvalidConfiguration("", "invalid list file", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errhandling.ClassifyError(err)
	}
	defer f.Close()
	return ParseLines(f)
}

func (c *Cache) fetch(ctx context.Context, doc *document.Document, url string) ([]string, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	headers := c.headersFor(doc)

	var lines []string
	exec := errhandling.NewRetryExecutor(c.Retry)
	err := exec.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return errhandling.NewInvalidConfiguration("", fmt.Sprintf("invalid list url %q", url), err)
		}
		for name, value := range headers {
			req.Header.Set(name, value)
		}
		resp, err := client.Do(req)
		if err != nil {
			return errhandling.NewNetworkError(fmt.Sprintf("fetching %s", url), err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return errhandling.ClassifyHTTPStatus(resp.StatusCode, fmt.Sprintf("fetching %s", url))
		}
		lines, err = ParseLines(resp.Body)
		if err != nil {
			return errhandling.NewNetworkError(fmt.Sprintf("reading %s", url), err)
		}
		return nil
	})
	if err != nil {
		info := exec.GetRetryInfo()
		logger.Warn("list source fetch failed",
			slog.String("url", url),
			slog.Int("attempts", info.TotalAttempts),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return lines, nil
}

func (c *Cache) headersFor(doc *document.Document) map[string]string {
	if len(c.Headers) == 0 {
		return nil
	}
	evaluator := c.evaluator
	if evaluator == nil {
		evaluator = template.NewEvaluator()
	}
	cfg := httpconfig.Config{Headers: c.Headers}
	return cfg.ExpandHeaders(evaluator, doc.Env())
}

// ParseLines reads one entry per line, skipping blank lines and "//" comments.
// Entries are trimmed.
func ParseLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading list: %w", err)
	}
	return lines, nil
}
