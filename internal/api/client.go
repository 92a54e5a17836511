package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmercer/folio/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second
	userAgent      = "Folio/1.0"
)

// TokenSource supplies the current access token for outgoing requests.
// It is consulted on every request so a mid-session logout takes effect
// immediately.
type TokenSource interface {
	Token() string
}

// Error carries a server-reported failure message for display
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d", e.Status)
}

// Client implements domain.AuthRepository, domain.UserRepository,
// domain.BookRepository, domain.AuthorRepository, domain.ReviewRepository,
// and domain.FavoritesRepository against the bookstore REST API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	installID  string
	httpClient *http.Client
	logger     *slog.Logger

	// Invoked on a 401 outside the login flow (expired or revoked token)
	onUnauthorized func()
}

// NewClient creates a bookstore API client
func NewClient(baseURL string, tokens TokenSource, installID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		tokens:    tokens,
		installID: installID,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: logger,
	}
}

// OnUnauthorized registers the forced-logout hook. A 401 on any endpoint
// except the login flow triggers it before the error is returned.
func (c *Client) OnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// doRequest performs an authenticated HTTP request and returns the body
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	reqURL := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Folio-Client", c.installID)
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("api request", "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("api request failed", "error", err)
		return nil, domain.ErrServerOffline
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil

	case resp.StatusCode == http.StatusUnauthorized:
		// A rejected token outside the login flow invalidates the session
		if !strings.HasPrefix(path, "/auth/") && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrUnauthorized, serverMessage(respBody))

	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound

	default:
		c.logger.Error("api request error", "status", resp.StatusCode, "path", path)
		return nil, &Error{Status: resp.StatusCode, Message: serverMessage(respBody)}
	}
}

// doJSON performs a request with an optional JSON body, decoding the
// response into dest when dest is non-nil
func (c *Client) doJSON(ctx context.Context, method, path string, payload, dest any) error {
	var body io.Reader
	contentType := ""
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	respBody, err := c.doRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}

	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, dest); err != nil {
		c.logger.Error("JSON parse error", "error", err, "path", path)
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// serverMessage extracts the human-readable message from an error body
func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	return ""
}

// === Auth ===

// Login exchanges credentials for an access token
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.AuthResponse, error) {
	var resp domain.AuthResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates a new account
func (c *Client) Register(ctx context.Context, data domain.RegisterData) (*domain.User, error) {
	var user domain.User
	if err := c.doJSON(ctx, http.MethodPost, "/user", data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// === Users ===

// GetUser returns the full user record for an id
func (c *Client) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := c.doJSON(ctx, http.MethodGet, "/user/"+id, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// DeleteUser removes an account
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/user/"+id, nil, nil)
}

// === Books ===

// GetBooks returns the full catalog listing
func (c *Client) GetBooks(ctx context.Context) ([]domain.Book, error) {
	var books []domain.Book
	if err := c.doJSON(ctx, http.MethodGet, "/book", nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

// GetBook returns a single book by id
func (c *Client) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	var book domain.Book
	if err := c.doJSON(ctx, http.MethodGet, "/book/"+id, nil, &book); err != nil {
		return nil, err
	}
	return &book, nil
}

// BuyBook records a purchase of the book for the current user
func (c *Client) BuyBook(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPut, "/book/buy/"+id, nil, nil)
}

// DownloadEpub returns the book's epub asset
func (c *Client) DownloadEpub(ctx context.Context, id string) ([]byte, error) {
	return c.doRequest(ctx, http.MethodGet, "/book/epub/"+id, nil, "")
}

// RegisterBook uploads a new book with its epub asset
func (c *Client) RegisterBook(ctx context.Context, book domain.NewBook) (*domain.Book, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("title", book.Title); err != nil {
		return nil, err
	}
	if err := w.WriteField("authorId", book.AuthorID); err != nil {
		return nil, err
	}
	if err := w.WriteField("yearPublished", strconv.Itoa(book.YearPublished)); err != nil {
		return nil, err
	}
	part, err := w.CreateFormFile("epub", book.EpubName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(book.Epub); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	respBody, err := c.doRequest(ctx, http.MethodPost, "/book", &buf, w.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var created domain.Book
	if err := json.Unmarshal(respBody, &created); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &created, nil
}

// DeleteBook removes a book from the catalog
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/book/"+id, nil, nil)
}

// === Authors ===

// GetAuthor returns a single author by id
func (c *Client) GetAuthor(ctx context.Context, id string) (*domain.Author, error) {
	var author domain.Author
	if err := c.doJSON(ctx, http.MethodGet, "/author/"+id, nil, &author); err != nil {
		return nil, err
	}
	return &author, nil
}

// GetAuthors returns all authors
func (c *Client) GetAuthors(ctx context.Context) ([]domain.Author, error) {
	var authors []domain.Author
	if err := c.doJSON(ctx, http.MethodGet, "/authors", nil, &authors); err != nil {
		return nil, err
	}
	return authors, nil
}

// RegisterAuthor creates a new author
func (c *Client) RegisterAuthor(ctx context.Context, firstName, lastName string) (*domain.Author, error) {
	payload := map[string]string{"firstName": firstName, "lastName": lastName}
	var author domain.Author
	if err := c.doJSON(ctx, http.MethodPost, "/author", payload, &author); err != nil {
		return nil, err
	}
	return &author, nil
}

// === Reviews ===

// GetReviews returns all reviews for a book
func (c *Client) GetReviews(ctx context.Context, bookID string) ([]domain.Review, error) {
	var reviews []domain.Review
	if err := c.doJSON(ctx, http.MethodGet, "/review/"+bookID, nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// CreateReview submits a review for a book by the current user
func (c *Client) CreateReview(ctx context.Context, bookID string, stars int, body string) (*domain.Review, error) {
	payload := map[string]any{
		"bookId": bookID,
		"stars":  stars,
		"body":   body,
	}
	var review domain.Review
	if err := c.doJSON(ctx, http.MethodPost, "/review", payload, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// DeleteReview removes a review by id
func (c *Client) DeleteReview(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/review/"+id, nil, nil)
}

// === Favorites ===

// favoriteResponse wraps the updated user returned by favorite mutations
type favoriteResponse struct {
	UpdatedUser *domain.User `json:"updatedUser"`
}

// AddFavorite marks a book as a favorite and returns the updated user
func (c *Client) AddFavorite(ctx context.Context, bookID string) (*domain.User, error) {
	var resp favoriteResponse
	if err := c.doJSON(ctx, http.MethodPut, "/book/favorite/"+bookID, nil, &resp); err != nil {
		return nil, err
	}
	if resp.UpdatedUser == nil {
		return nil, fmt.Errorf("favorite response missing updated user")
	}
	return resp.UpdatedUser, nil
}

// RemoveFavorite unmarks a book as a favorite and returns the updated user
func (c *Client) RemoveFavorite(ctx context.Context, bookID string) (*domain.User, error) {
	var resp favoriteResponse
	if err := c.doJSON(ctx, http.MethodDelete, "/book/favorite/"+bookID, nil, &resp); err != nil {
		return nil, err
	}
	if resp.UpdatedUser == nil {
		return nil, fmt.Errorf("favorite response missing updated user")
	}
	return resp.UpdatedUser, nil
}
