package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dmercer/folio/internal/catalog"
	"github.com/dmercer/folio/internal/domain"
	applog "github.com/dmercer/folio/internal/log"
)

type fakeBooks struct {
	mu        sync.Mutex
	books     map[string]domain.Book
	listErr   error
	buyErr    error
	epub      []byte
	epubErr   error
	buyCalls  []string
	getCalls  int
	listCalls int
}

func (f *fakeBooks) GetBooks(ctx context.Context) ([]domain.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Book, 0, len(f.books))
	for _, b := range f.books {
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBooks) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if b, ok := f.books[id]; ok {
		return &b, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeBooks) BuyBook(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buyCalls = append(f.buyCalls, id)
	return f.buyErr
}

func (f *fakeBooks) DownloadEpub(ctx context.Context, id string) ([]byte, error) {
	if f.epubErr != nil {
		return nil, f.epubErr
	}
	return f.epub, nil
}

func (f *fakeBooks) RegisterBook(ctx context.Context, book domain.NewBook) (*domain.Book, error) {
	return nil, domain.ErrUnauthorized
}

func (f *fakeBooks) DeleteBook(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.books, id)
	return nil
}

type fakeAuthors struct {
	mu      sync.Mutex
	authors map[string]domain.Author
	err     error
	calls   int
}

func (f *fakeAuthors) GetAuthor(ctx context.Context, id string) (*domain.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if a, ok := f.authors[id]; ok {
		return &a, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAuthors) GetAuthors(ctx context.Context) ([]domain.Author, error) {
	return nil, nil
}

func (f *fakeAuthors) RegisterAuthor(ctx context.Context, firstName, lastName string) (*domain.Author, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a := domain.Author{ID: "a-new", FirstName: firstName, LastName: lastName}
	if f.authors == nil {
		f.authors = make(map[string]domain.Author)
	}
	f.authors[a.ID] = a
	return &a, nil
}

func book(id, title string) domain.Book {
	return domain.Book{ID: id, Title: title, AuthorID: "a1", YearPublished: 1999}
}

func newCache(t *testing.T, books *fakeBooks, authors *fakeAuthors) *catalog.Cache {
	t.Helper()
	if authors == nil {
		authors = &fakeAuthors{}
	}
	return catalog.NewCache(books, authors, t.TempDir(), applog.NullLogger())
}

func TestFetchAllBooksReplacesSet(t *testing.T) {
	books := &fakeBooks{books: map[string]domain.Book{
		"b1": book("b1", "Dune"),
		"b2": book("b2", "Hyperion"),
	}}
	c := newCache(t, books, nil)

	c.FetchAllBooks(context.Background())

	if got := len(c.Books()); got != 2 {
		t.Fatalf("expected 2 books, got %d", got)
	}
	if c.Error() != "" {
		t.Fatalf("unexpected error: %s", c.Error())
	}
	if c.Loading() {
		t.Fatalf("loading flag should be cleared")
	}
}

func TestFetchAllBooksFailureClearsStaleData(t *testing.T) {
	books := &fakeBooks{books: map[string]domain.Book{"b1": book("b1", "Dune")}}
	c := newCache(t, books, nil)

	c.FetchAllBooks(context.Background())
	if len(c.Books()) != 1 {
		t.Fatalf("seed fetch failed")
	}

	books.mu.Lock()
	books.listErr = domain.ErrServerOffline
	books.mu.Unlock()

	c.FetchAllBooks(context.Background())

	if len(c.Books()) != 0 {
		t.Fatalf("stale data must not survive a failed refresh")
	}
	if c.Error() == "" {
		t.Fatalf("failed refresh should record an error message")
	}
}

func TestFetchBooksByIDsDropsFailuresSilently(t *testing.T) {
	books := &fakeBooks{books: map[string]domain.Book{
		"a": book("a", "Dune"),
		"b": book("b", "Hyperion"),
	}}
	c := newCache(t, books, nil)

	c.FetchBooksByIDs(context.Background(), []string{"a", "missing", "b"})

	got := c.Books()
	if len(got) != 2 {
		t.Fatalf("expected 2 books, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("result order must follow requested ids, got %v", got)
	}
	if c.Error() != "" {
		t.Fatalf("per-id failure must not surface an error, got %q", c.Error())
	}
}

func TestAuthorByIDCachesWithinSession(t *testing.T) {
	authors := &fakeAuthors{authors: map[string]domain.Author{
		"a1": {ID: "a1", FirstName: "Frank", LastName: "Herbert"},
	}}
	c := newCache(t, &fakeBooks{}, authors)

	first, ok := c.AuthorByID(context.Background(), "a1")
	if !ok {
		t.Fatalf("expected author")
	}
	second, ok := c.AuthorByID(context.Background(), "a1")
	if !ok || second != first {
		t.Fatalf("cached author mismatch")
	}
	if authors.calls != 1 {
		t.Fatalf("author should be fetched once, got %d calls", authors.calls)
	}
}

func TestAuthorByIDFailureIsNotCached(t *testing.T) {
	authors := &fakeAuthors{err: domain.ErrServerOffline}
	c := newCache(t, &fakeBooks{}, authors)

	if _, ok := c.AuthorByID(context.Background(), "a1"); ok {
		t.Fatalf("expected miss on fetch failure")
	}
	if c.LastAuthorErr() == nil {
		t.Fatalf("swallowed author failure should be recorded")
	}

	// The failure must not be cached: a later call retries and succeeds
	authors.mu.Lock()
	authors.err = nil
	authors.authors = map[string]domain.Author{"a1": {ID: "a1", FirstName: "Frank"}}
	authors.mu.Unlock()

	if _, ok := c.AuthorByID(context.Background(), "a1"); !ok {
		t.Fatalf("retry after failure should succeed")
	}
	if authors.calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", authors.calls)
	}
}

func TestBuyBookLeavesLocalStateAlone(t *testing.T) {
	books := &fakeBooks{books: map[string]domain.Book{"b1": book("b1", "Dune")}}
	c := newCache(t, books, nil)
	c.FetchAllBooks(context.Background())

	if !c.BuyBook(context.Background(), "b1") {
		t.Fatalf("buy failed: %s", c.Error())
	}
	if len(books.buyCalls) != 1 || books.buyCalls[0] != "b1" {
		t.Fatalf("purchase not submitted: %v", books.buyCalls)
	}
	if len(c.Books()) != 1 {
		t.Fatalf("buy must not mutate the book set")
	}
}

func TestBuyBookFailure(t *testing.T) {
	books := &fakeBooks{buyErr: domain.ErrServerOffline}
	c := newCache(t, books, nil)

	if c.BuyBook(context.Background(), "b1") {
		t.Fatalf("buy should have failed")
	}
	if c.Error() == "" {
		t.Fatalf("failed buy should record an error message")
	}
}

func TestDownloadBookWritesEpub(t *testing.T) {
	dir := t.TempDir()
	books := &fakeBooks{epub: []byte("epub-bytes")}
	c := catalog.NewCache(books, &fakeAuthors{}, dir, applog.NullLogger())

	if !c.DownloadBook(context.Background(), "b1", "Dune / Messiah") {
		t.Fatalf("download failed: %s", c.Error())
	}

	data, err := os.ReadFile(filepath.Join(dir, "Dune - Messiah.epub"))
	if err != nil {
		t.Fatalf("epub not written: %v", err)
	}
	if string(data) != "epub-bytes" {
		t.Fatalf("unexpected epub content %q", data)
	}
}

func TestDownloadBookFailure(t *testing.T) {
	books := &fakeBooks{epubErr: domain.ErrServerOffline}
	c := newCache(t, books, nil)

	if c.DownloadBook(context.Background(), "b1", "Dune") {
		t.Fatalf("download should have failed")
	}
	if c.Error() == "" {
		t.Fatalf("failed download should record an error message")
	}
}

func TestDeleteBookRemovesLocally(t *testing.T) {
	books := &fakeBooks{books: map[string]domain.Book{
		"b1": book("b1", "Dune"),
		"b2": book("b2", "Hyperion"),
	}}
	c := newCache(t, books, nil)
	c.FetchAllBooks(context.Background())

	if !c.DeleteBook(context.Background(), "b1") {
		t.Fatalf("delete failed: %s", c.Error())
	}
	for _, b := range c.Books() {
		if b.ID == "b1" {
			t.Fatalf("deleted book still present locally")
		}
	}
}

func TestRegisterAuthorSeedsCache(t *testing.T) {
	authors := &fakeAuthors{}
	c := newCache(t, &fakeBooks{}, authors)

	created, ok := c.RegisterAuthor(context.Background(), "Ursula", "Le Guin")
	if !ok {
		t.Fatalf("register author failed: %s", c.Error())
	}
	if created.FullName() != "Ursula Le Guin" {
		t.Fatalf("full name = %q", created.FullName())
	}

	callsBefore := authors.calls
	if _, ok := c.AuthorByID(context.Background(), created.ID); !ok {
		t.Fatalf("created author should be resolvable")
	}
	if authors.calls != callsBefore {
		t.Fatalf("lookup should hit the seeded cache, not the repository")
	}
}

func TestRegisterAuthorFailure(t *testing.T) {
	authors := &fakeAuthors{err: domain.ErrUnauthorized}
	c := newCache(t, &fakeBooks{}, authors)

	if _, ok := c.RegisterAuthor(context.Background(), "A", "B"); ok {
		t.Fatalf("register should have failed")
	}
	if c.Error() == "" {
		t.Fatalf("failure should record an error message")
	}
}
