package domain

import "strings"

// Role identifies a user's privilege level
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User represents a bookstore account.
//
// The favorite-book list has appeared under two field names across backend
// revisions: "favoriteBooks" (current) and "ownedBooks" (legacy). Both are
// decoded; FavoriteBookIDs resolves them.
type User struct {
	ID          string          `json:"_id"`
	Information UserInformation `json:"information"`
	Credentials UserCredentials `json:"credentials"`
	Role        Role            `json:"role"`

	FavoriteBooks []string `json:"favoriteBooks,omitempty"`
	OwnedBooks    []string `json:"ownedBooks,omitempty"`
}

// UserInformation holds the user's display fields
type UserInformation struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// UserCredentials holds the user's login identity (password is never returned)
type UserCredentials struct {
	Email string `json:"email"`
}

// FavoriteBookIDs returns the user's favorite-book list, preferring the
// canonical "favoriteBooks" field and falling back to the legacy
// "ownedBooks" alias.
func (u *User) FavoriteBookIDs() []string {
	if u.FavoriteBooks != nil {
		return u.FavoriteBooks
	}
	return u.OwnedBooks
}

// DisplayName returns the user's full name for review attribution
func (u *User) DisplayName() string {
	return strings.TrimSpace(u.Information.FirstName + " " + u.Information.LastName)
}

// IsAdmin reports whether the user holds the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Book represents a catalog entry. Books are immutable from the client's
// perspective; ownership changes live on User.
type Book struct {
	ID            string `json:"_id"`
	Title         string `json:"title"`
	AuthorID      string `json:"authorId"`
	YearPublished int    `json:"yearPublished"`
	Epub          string `json:"epub"`
}

// Author represents a book author
type Author struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// FullName returns the author's display name
func (a Author) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Review represents a star rating with text for one book by one user.
// UserName is a display convenience filled in client-side when the backend
// does not echo it.
type Review struct {
	ID       string `json:"_id"`
	BookID   string `json:"bookId"`
	UserID   string `json:"userId"`
	Stars    int    `json:"stars"`
	Body     string `json:"body"`
	UserName string `json:"userName,omitempty"`
}

// Credentials is the login payload
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterData is the account-creation payload
type RegisterData struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      Role   `json:"role,omitempty"`
}

// AuthResponse is the login success payload
type AuthResponse struct {
	AccessToken string `json:"accessToken"`
	User        *User  `json:"user,omitempty"`
}

// NewBook is the admin book-registration payload. Epub is the raw asset
// uploaded alongside the metadata.
type NewBook struct {
	Title         string
	AuthorID      string
	YearPublished int
	EpubName      string
	Epub          []byte
}
