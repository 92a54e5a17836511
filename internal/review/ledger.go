package review

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/dmercer/folio/internal/domain"
)

// Ledger holds the reviews loaded for one book at a time. The list is
// kept newest-first; the ordering is maintained client-side, not assumed
// from fetch order.
type Ledger struct {
	repo   domain.ReviewRepository
	logger *slog.Logger

	mu      sync.RWMutex
	bookID  string
	reviews []domain.Review
	errMsg  string
}

// AddReviewInput carries a new review plus the display name the backend
// may not echo back.
type AddReviewInput struct {
	BookID   string
	UserID   string
	UserName string
	Stars    int
	Body     string
}

// NewLedger creates an empty review ledger
func NewLedger(repo domain.ReviewRepository, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{repo: repo, logger: logger}
}

// LoadReviews switches the tracked book and replaces the full review list.
// A load failure resets to an empty list rather than retaining the previous
// book's reviews.
func (l *Ledger) LoadReviews(ctx context.Context, bookID string) {
	l.mu.Lock()
	l.bookID = bookID
	l.errMsg = ""
	l.mu.Unlock()

	reviews, err := l.repo.GetReviews(ctx, bookID)
	if err != nil {
		l.logger.Warn("failed to load reviews", "bookId", bookID, "error", err)
		l.mu.Lock()
		l.reviews = nil
		l.errMsg = "Failed to load reviews"
		l.mu.Unlock()
		return
	}

	l.mu.Lock()
	l.reviews = reviews
	l.mu.Unlock()
}

// AddReview submits a new review and prepends the server-returned record to
// the in-memory list. The caller-supplied display name fills in fields the
// backend does not echo.
func (l *Ledger) AddReview(ctx context.Context, in AddReviewInput) error {
	created, err := l.repo.CreateReview(ctx, in.BookID, in.Stars, in.Body)
	if err != nil {
		return err
	}

	if created.UserName == "" {
		created.UserName = in.UserName
	}
	if created.UserID == "" {
		created.UserID = in.UserID
	}
	if created.BookID == "" {
		created.BookID = in.BookID
	}

	l.mu.Lock()
	l.reviews = append([]domain.Review{*created}, l.reviews...)
	l.mu.Unlock()
	return nil
}

// DeleteReview submits the remote delete, then removes the matching entry
// locally. A failed remote delete propagates and leaves local state
// untouched; there is no optimistic removal here.
func (l *Ledger) DeleteReview(ctx context.Context, reviewID string) error {
	if err := l.repo.DeleteReview(ctx, reviewID); err != nil {
		return err
	}

	l.mu.Lock()
	kept := make([]domain.Review, 0, len(l.reviews))
	for _, r := range l.reviews {
		if r.ID != reviewID {
			kept = append(kept, r)
		}
	}
	l.reviews = kept
	l.mu.Unlock()
	return nil
}

// HasUserReviewed reports whether the user already reviewed the book. Only
// meaningful for the currently tracked book.
func (l *Ledger) HasUserReviewed(bookID, userID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.reviews {
		if r.BookID == bookID && r.UserID == userID {
			return true
		}
	}
	return false
}

// UserReview returns the user's review in the currently loaded list
func (l *Ledger) UserReview(userID string) (domain.Review, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.reviews {
		if r.UserID == userID {
			return r, true
		}
	}
	return domain.Review{}, false
}

// AverageRating returns the mean star rating rounded to one decimal place,
// or nil when no reviews are loaded.
func (l *Ledger) AverageRating() *float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.reviews) == 0 {
		return nil
	}
	sum := 0
	for _, r := range l.reviews {
		sum += r.Stars
	}
	avg := math.Round(float64(sum)/float64(len(l.reviews))*10) / 10
	return &avg
}

// Reviews returns a copy of the loaded review list, newest first
func (l *Ledger) Reviews() []domain.Review {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Review, len(l.reviews))
	copy(out, l.reviews)
	return out
}

// CurrentBookID returns the book the ledger currently tracks
func (l *Ledger) CurrentBookID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bookID
}

// Error returns the message recorded by the last failed load
func (l *Ledger) Error() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.errMsg
}
