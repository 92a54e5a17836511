package favorites

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmercer/folio/internal/domain"
)

// UserSession is the slice of the session manager the favorites set
// consults and updates. Implemented by session.Manager.
type UserSession interface {
	IsAuthenticated() bool
	IsGuest() bool
	User() *domain.User
	SetUser(user *domain.User)
}

// Set is the derived cache of book ids the current user has favorited. The
// loaded user's favorite-list field is the source of truth; the set mirrors
// it after every successful mutation.
type Set struct {
	repo    domain.FavoritesRepository
	session UserSession
	logger  *slog.Logger

	mu            sync.RWMutex
	ids           []string
	lastToggleErr error
}

// NewSet creates an empty favorites set
func NewSet(repo domain.FavoritesRepository, session UserSession, logger *slog.Logger) *Set {
	if logger == nil {
		logger = slog.Default()
	}
	return &Set{repo: repo, session: session, logger: logger}
}

// Load populates the set from the session's loaded user record. Favorites
// are a member-only feature: unauthenticated and guest sessions force an
// empty set. No network call happens here.
func (s *Set) Load() {
	if !s.session.IsAuthenticated() || s.session.IsGuest() {
		s.Clear()
		return
	}

	user := s.session.User()
	if user == nil {
		s.Clear()
		return
	}

	s.mu.Lock()
	s.ids = append([]string(nil), user.FavoriteBookIDs()...)
	s.mu.Unlock()
}

// IsFavorite reports membership for a book id
func (s *Set) IsFavorite(bookID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.contains(bookID)
}

// Toggle adds or removes the book based on current membership. On success
// the set is replaced with the server's authoritative list and the updated
// user record is written back into the session manager. On failure the
// toggle is silently discarded; the swallowed error is retained for
// LastToggleErr only.
func (s *Set) Toggle(ctx context.Context, bookID string) {
	s.mu.Lock()
	remove := s.contains(bookID)
	s.lastToggleErr = nil
	s.mu.Unlock()

	var (
		user *domain.User
		err  error
	)
	if remove {
		user, err = s.repo.RemoveFavorite(ctx, bookID)
	} else {
		user, err = s.repo.AddFavorite(ctx, bookID)
	}
	if err != nil {
		s.logger.Debug("favorite toggle discarded", "bookId", bookID, "error", err)
		s.mu.Lock()
		s.lastToggleErr = err
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.ids = append([]string(nil), user.FavoriteBookIDs()...)
	s.mu.Unlock()

	// The favorite list lives on the user object, so the session's copy
	// must follow the server's.
	s.session.SetUser(user)
}

// Count returns the number of favorited books
func (s *Set) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// BookIDs returns a copy of the favorited book ids
func (s *Set) BookIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Clear resets the set. Used on logout.
func (s *Set) Clear() {
	s.mu.Lock()
	s.ids = nil
	s.mu.Unlock()
}

// LastToggleErr exposes the most recent swallowed toggle failure
func (s *Set) LastToggleErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastToggleErr
}

// contains assumes the lock is held
func (s *Set) contains(bookID string) bool {
	for _, id := range s.ids {
		if id == bookID {
			return true
		}
	}
	return false
}
