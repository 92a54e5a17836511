package domain

import (
	"context"
)

// AuthRepository exchanges credentials for sessions and creates accounts
type AuthRepository interface {
	// Login exchanges credentials for an access token
	Login(ctx context.Context, creds Credentials) (*AuthResponse, error)

	// Register creates a new account. Success does not establish a session.
	Register(ctx context.Context, data RegisterData) (*User, error)
}

// UserRepository provides access to user records
type UserRepository interface {
	// GetUser returns the full user record for an id
	GetUser(ctx context.Context, id string) (*User, error)

	// DeleteUser removes an account (admin)
	DeleteUser(ctx context.Context, id string) error
}

// BookRepository provides access to the catalog and its side effects
type BookRepository interface {
	// GetBooks returns the full catalog listing
	GetBooks(ctx context.Context) ([]Book, error)

	// GetBook returns a single book by id
	GetBook(ctx context.Context, id string) (*Book, error)

	// BuyBook records a purchase of the book for the current user
	BuyBook(ctx context.Context, id string) error

	// DownloadEpub returns the book's epub asset
	DownloadEpub(ctx context.Context, id string) ([]byte, error)

	// RegisterBook uploads a new book with its epub asset (admin)
	RegisterBook(ctx context.Context, book NewBook) (*Book, error)

	// DeleteBook removes a book from the catalog (admin)
	DeleteBook(ctx context.Context, id string) error
}

// AuthorRepository provides access to author records
type AuthorRepository interface {
	// GetAuthor returns a single author by id
	GetAuthor(ctx context.Context, id string) (*Author, error)

	// GetAuthors returns all authors
	GetAuthors(ctx context.Context) ([]Author, error)

	// RegisterAuthor creates a new author (admin)
	RegisterAuthor(ctx context.Context, firstName, lastName string) (*Author, error)
}

// ReviewRepository provides access to book reviews
type ReviewRepository interface {
	// GetReviews returns all reviews for a book
	GetReviews(ctx context.Context, bookID string) ([]Review, error)

	// CreateReview submits a review for a book by the current user
	CreateReview(ctx context.Context, bookID string, stars int, body string) (*Review, error)

	// DeleteReview removes a review by id
	DeleteReview(ctx context.Context, id string) error
}

// FavoritesRepository toggles favorite membership for the current user.
// Both mutations return the server's updated user record, which is the
// authoritative favorite list.
type FavoritesRepository interface {
	// AddFavorite marks a book as a favorite
	AddFavorite(ctx context.Context, bookID string) (*User, error)

	// RemoveFavorite unmarks a book as a favorite
	RemoveFavorite(ctx context.Context, bookID string) (*User, error)
}
