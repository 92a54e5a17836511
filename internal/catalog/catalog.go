package catalog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dmercer/folio/internal/api"
	"github.com/dmercer/folio/internal/domain"
)

// fetchByIDConcurrency caps the fan-out when loading books individually
const fetchByIDConcurrency = 8

// Cache holds the fetched book set and a lazily-populated author mapping.
// Staleness is resolved only by explicit reload; there is no TTL eviction.
type Cache struct {
	books   domain.BookRepository
	authors domain.AuthorRepository
	logger  *slog.Logger

	downloadDir string

	mu            sync.RWMutex
	list          []domain.Book
	authorCache   map[string]domain.Author
	loading       bool
	errMsg        string
	lastAuthorErr error
}

// NewCache creates an empty catalog cache. Downloaded epubs are written
// under downloadDir.
func NewCache(books domain.BookRepository, authors domain.AuthorRepository, downloadDir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		books:       books,
		authors:     authors,
		logger:      logger,
		downloadDir: downloadDir,
		authorCache: make(map[string]domain.Author),
	}
}

// FetchAllBooks replaces the book set with the server's current listing.
// On failure the set becomes empty; stale data is never left in place.
//
// Overlapping calls are not coalesced; the last response to resolve wins.
func (c *Cache) FetchAllBooks(ctx context.Context) {
	c.beginLoad()
	defer c.endLoad()

	books, err := c.books.GetBooks(ctx)
	if err != nil {
		c.logger.Error("failed to load catalog", "error", err)
		c.mu.Lock()
		c.list = nil
		c.errMsg = messageOf(err, "Failed to load books")
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.list = books
	c.mu.Unlock()
	c.logger.Info("loaded catalog", "count", len(books))
}

// FetchBooksByIDs fetches each id independently in parallel. A single id's
// failure is dropped silently so partial results win over total failure.
// Result order follows the requested ids.
func (c *Cache) FetchBooksByIDs(ctx context.Context, ids []string) {
	c.beginLoad()
	defer c.endLoad()

	results := make([]*domain.Book, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchByIDConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			book, err := c.books.GetBook(gctx, id)
			if err != nil {
				// Missing or failed ids degrade by omission
				c.logger.Debug("book fetch dropped", "bookId", id, "error", err)
				return nil
			}
			results[i] = book
			return nil
		})
	}
	g.Wait()

	books := make([]domain.Book, 0, len(ids))
	for _, b := range results {
		if b != nil {
			books = append(books, *b)
		}
	}

	c.mu.Lock()
	c.list = books
	c.mu.Unlock()
	c.logger.Info("loaded books by id", "requested", len(ids), "loaded", len(books))
}

// AuthorByID is a cache-first author lookup. A fetch failure yields an
// absent result without caching the miss, so a later call retries.
func (c *Cache) AuthorByID(ctx context.Context, id string) (domain.Author, bool) {
	c.mu.RLock()
	author, ok := c.authorCache[id]
	c.mu.RUnlock()
	if ok {
		return author, true
	}

	fetched, err := c.authors.GetAuthor(ctx, id)
	if err != nil {
		c.logger.Debug("author fetch failed", "authorId", id, "error", err)
		c.mu.Lock()
		c.lastAuthorErr = err
		c.mu.Unlock()
		return domain.Author{}, false
	}

	c.mu.Lock()
	c.authorCache[id] = *fetched
	c.mu.Unlock()
	return *fetched, true
}

// BuyBook invokes the purchase side effect. It mutates no local state;
// callers refresh ownership-derived views afterward.
func (c *Cache) BuyBook(ctx context.Context, id string) bool {
	c.setError("")

	if err := c.books.BuyBook(ctx, id); err != nil {
		c.logger.Warn("purchase failed", "bookId", id, "error", err)
		c.setError(messageOf(err, "Failed to purchase book"))
		return false
	}
	c.logger.Info("purchased book", "bookId", id)
	return true
}

// DownloadBook fetches the epub asset and saves it as "<title>.epub" in the
// download directory. Failures are recorded as an error message, not
// returned.
func (c *Cache) DownloadBook(ctx context.Context, id, title string) bool {
	c.setError("")

	data, err := c.books.DownloadEpub(ctx, id)
	if err != nil {
		c.logger.Warn("download failed", "bookId", id, "error", err)
		c.setError(messageOf(err, "Failed to download book"))
		return false
	}

	if err := os.MkdirAll(c.downloadDir, 0755); err != nil {
		c.setError("Failed to download book")
		return false
	}
	path := filepath.Join(c.downloadDir, sanitizeFilename(title)+".epub")
	if err := os.WriteFile(path, data, 0644); err != nil {
		c.logger.Error("failed to write epub", "path", path, "error", err)
		c.setError("Failed to download book")
		return false
	}

	c.logger.Info("downloaded book", "bookId", id, "path", path)
	return true
}

// DeleteBook removes a book from the catalog (admin) and drops it from the
// local set on success.
func (c *Cache) DeleteBook(ctx context.Context, id string) bool {
	c.setError("")

	if err := c.books.DeleteBook(ctx, id); err != nil {
		c.logger.Warn("book delete failed", "bookId", id, "error", err)
		c.setError(messageOf(err, "Failed to delete book"))
		return false
	}

	c.mu.Lock()
	kept := c.list[:0]
	for _, b := range c.list {
		if b.ID != id {
			kept = append(kept, b)
		}
	}
	c.list = kept
	c.mu.Unlock()
	return true
}

// RegisterAuthor creates a new author (admin) and seeds the author cache
// with the result.
func (c *Cache) RegisterAuthor(ctx context.Context, firstName, lastName string) (domain.Author, bool) {
	c.setError("")

	author, err := c.authors.RegisterAuthor(ctx, firstName, lastName)
	if err != nil {
		c.logger.Warn("author create failed", "error", err)
		c.setError(messageOf(err, "Failed to create author"))
		return domain.Author{}, false
	}

	c.mu.Lock()
	c.authorCache[author.ID] = *author
	c.mu.Unlock()
	return *author, true
}

// Books returns a copy of the current book set
func (c *Cache) Books() []domain.Book {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Book, len(c.list))
	copy(out, c.list)
	return out
}

// Loading reports whether a fetch is in flight
func (c *Cache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Error returns the message recorded by the last failed operation
func (c *Cache) Error() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.errMsg
}

// LastAuthorErr exposes the most recent swallowed author-lookup failure
func (c *Cache) LastAuthorErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAuthorErr
}

func (c *Cache) beginLoad() {
	c.mu.Lock()
	c.loading = true
	c.errMsg = ""
	c.mu.Unlock()
}

func (c *Cache) endLoad() {
	c.mu.Lock()
	c.loading = false
	c.mu.Unlock()
}

func (c *Cache) setError(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
}

// sanitizeFilename strips path separators so a book title can name a file
func sanitizeFilename(title string) string {
	title = strings.TrimSpace(title)
	replacer := strings.NewReplacer("/", "-", "\\", "-", string(os.PathSeparator), "-")
	if title == "" {
		return "book"
	}
	return replacer.Replace(title)
}

// messageOf prefers a server-reported message over the fallback
func messageOf(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
