package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/dmercer/folio/internal/api"
	"github.com/dmercer/folio/internal/catalog"
	"github.com/dmercer/folio/internal/config"
	"github.com/dmercer/folio/internal/domain"
	"github.com/dmercer/folio/internal/favorites"
	applog "github.com/dmercer/folio/internal/log"
	"github.com/dmercer/folio/internal/prefs"
	"github.com/dmercer/folio/internal/review"
	"github.com/dmercer/folio/internal/search"
	"github.com/dmercer/folio/internal/session"
	"github.com/dmercer/folio/internal/store"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	starStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	matchStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

const usage = `folio - bookstore client

Usage:
  folio login | register | guest | logout | whoami
  folio books | book <id> | search <query>
  folio buy <id> | download <id>
  folio reviews <bookId>
  folio review add <bookId> <stars> <text>
  folio review rm <reviewId>
  folio fav <bookId> | favs
  folio theme [dark|light]
  folio authors
  folio admin add-book <title> <authorId> <year> <epubPath>
  folio admin rm-book <bookId>
  folio admin add-author <firstName> <lastName>
  folio admin rm-user <userId>
`

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if showVersion {
		fmt.Printf("folio %s\n", Version)
		return
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app wires the session manager and the state stores together for one
// invocation
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	state     *store.StateStore
	client    *api.Client
	session   *session.Manager
	catalog   *catalog.Cache
	reviews   *review.Ledger
	favorites *favorites.Set
	prefs     *prefs.Service
	search    *search.Service
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Print(usage)
		return nil
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := applog.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = applog.NullLogger()
	}
	slog.SetDefault(logger)
	logger.Info("starting folio", "version", Version, "command", args[0])

	if !cfg.IsConfigured() {
		if err := runSetupFlow(cfg); err != nil {
			return err
		}
	}

	state, err := store.Open(config.DefaultDataPath())
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	defer state.Close()

	client := api.NewClient(cfg.Server.URL, state, state.InstallID(), logger)
	sess := session.NewManager(client, client, state, logger)
	cat := catalog.NewCache(client, client, cfg.Downloads.Dir, logger)
	ledger := review.NewLedger(client, logger)
	favs := favorites.NewSet(client, sess, logger)
	theme := prefs.NewService(state)
	searcher := search.NewService(cat, logger)

	// An authorization failure outside the login flow destroys the session
	client.OnUnauthorized(sess.Logout)
	sess.OnLogout(favs.Clear)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		state:     state,
		client:    client,
		session:   sess,
		catalog:   cat,
		reviews:   ledger,
		favorites: favs,
		prefs:     theme,
		search:    searcher,
	}

	ctx := context.Background()

	// The session is established from the persisted token before any
	// resource command runs.
	switch args[0] {
	case "login", "register", "guest", "logout", "theme":
	default:
		sess.LoadUser(ctx)
		favs.Load()
	}

	return a.dispatch(ctx, args)
}

func (a *app) dispatch(ctx context.Context, args []string) error {
	switch args[0] {
	case "login":
		return a.cmdLogin(ctx)
	case "register":
		return a.cmdRegister(ctx)
	case "guest":
		a.session.LoginAsGuest()
		fmt.Println(okStyle.Render("Browsing as guest. Favorites and purchases are unavailable."))
		return nil
	case "logout":
		a.session.Logout()
		fmt.Println(okStyle.Render("Logged out."))
		return nil
	case "whoami":
		return a.cmdWhoami()
	case "books":
		return a.cmdBooks(ctx)
	case "book":
		if len(args) < 2 {
			return fmt.Errorf("usage: folio book <id>")
		}
		return a.cmdBook(ctx, args[1])
	case "search":
		if len(args) < 2 {
			return fmt.Errorf("usage: folio search <query>")
		}
		return a.cmdSearch(ctx, strings.Join(args[1:], " "))
	case "buy":
		if len(args) < 2 {
			return fmt.Errorf("usage: folio buy <id>")
		}
		return a.cmdBuy(ctx, args[1])
	case "download":
		if len(args) < 2 {
			return fmt.Errorf("usage: folio download <id>")
		}
		return a.cmdDownload(ctx, args[1])
	case "reviews":
		if len(args) < 2 {
			return fmt.Errorf("usage: folio reviews <bookId>")
		}
		return a.cmdReviews(ctx, args[1])
	case "review":
		return a.cmdReview(ctx, args[1:])
	case "fav":
		if len(args) < 2 {
			return fmt.Errorf("usage: folio fav <bookId>")
		}
		return a.cmdFav(ctx, args[1])
	case "favs":
		return a.cmdFavs(ctx)
	case "theme":
		return a.cmdTheme(args[1:])
	case "authors":
		return a.cmdAuthors(ctx)
	case "admin":
		return a.cmdAdmin(ctx, args[1:])
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// runSetupFlow prompts for the server URL on first use
func runSetupFlow(cfg *config.Config) error {
	fmt.Println()
	fmt.Println("Welcome to Folio!")
	fmt.Println()

	url, err := promptLine("Enter your bookstore server URL (e.g., https://books.example.com/api): ")
	if err != nil {
		return err
	}
	if url == "" {
		return fmt.Errorf("server URL is required")
	}

	cfg.Server.URL = strings.TrimRight(url, "/")
	if err := config.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Println(okStyle.Render("Configuration saved."))
	return nil
}

func (a *app) cmdLogin(ctx context.Context) error {
	email, err := promptLine("Email: ")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	if !a.session.Login(ctx, domain.Credentials{Email: email, Password: password}) {
		return fmt.Errorf("%s", errStyle.Render(a.session.Error()))
	}

	user := a.session.User()
	fmt.Println(okStyle.Render("Logged in as " + user.DisplayName()))
	return nil
}

func (a *app) cmdRegister(ctx context.Context) error {
	first, err := promptLine("First name: ")
	if err != nil {
		return err
	}
	last, err := promptLine("Last name: ")
	if err != nil {
		return err
	}
	email, err := promptLine("Email: ")
	if err != nil {
		return err
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	data := domain.RegisterData{
		FirstName: first,
		LastName:  last,
		Email:     email,
		Password:  password,
	}
	if !a.session.Register(ctx, data) {
		return fmt.Errorf("%s", errStyle.Render(a.session.Error()))
	}

	fmt.Println(okStyle.Render("Account created and logged in."))
	return nil
}

func (a *app) cmdWhoami() error {
	switch {
	case a.session.IsGuest():
		fmt.Println("Guest session")
	case a.session.IsAuthenticated():
		user := a.session.User()
		if user == nil {
			fmt.Println("Authenticated (user record not loaded)")
			return nil
		}
		fmt.Printf("%s <%s>\n", titleStyle.Render(user.DisplayName()), user.Credentials.Email)
		if a.session.IsAdmin() {
			fmt.Println(dimStyle.Render("role: admin"))
		}
	default:
		fmt.Println("Not logged in")
	}
	return nil
}

func (a *app) cmdBooks(ctx context.Context) error {
	a.catalog.FetchAllBooks(ctx)
	if msg := a.catalog.Error(); msg != "" {
		return fmt.Errorf("%s", errStyle.Render(msg))
	}

	for _, b := range a.catalog.Books() {
		a.printBookLine(ctx, b)
	}
	return nil
}

func (a *app) cmdBook(ctx context.Context, id string) error {
	a.catalog.FetchBooksByIDs(ctx, []string{id})
	books := a.catalog.Books()
	if len(books) == 0 {
		return fmt.Errorf("book not found: %s", id)
	}
	b := books[0]

	fmt.Println(titleStyle.Render(b.Title))
	if author, ok := a.catalog.AuthorByID(ctx, b.AuthorID); ok {
		fmt.Println("by " + author.FullName())
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("published %d", b.YearPublished)))

	a.reviews.LoadReviews(ctx, b.ID)
	if avg := a.reviews.AverageRating(); avg != nil {
		fmt.Println(starStyle.Render(fmt.Sprintf("%.1f stars", *avg)) +
			dimStyle.Render(fmt.Sprintf(" (%d reviews)", len(a.reviews.Reviews()))))
	}
	if a.favorites.IsFavorite(b.ID) {
		fmt.Println(starStyle.Render("♥ favorited"))
	}
	return nil
}

func (a *app) cmdSearch(ctx context.Context, query string) error {
	a.catalog.FetchAllBooks(ctx)
	if msg := a.catalog.Error(); msg != "" {
		return fmt.Errorf("%s", errStyle.Render(msg))
	}

	matches := a.search.Filter(query)
	if len(matches) == 0 {
		fmt.Println(dimStyle.Render("no matches"))
		return nil
	}
	for _, m := range matches {
		fmt.Printf("%s  %s\n", highlightTitle(m.Book.Title, m.MatchedIndexes), dimStyle.Render(m.Book.ID))
	}
	return nil
}

func (a *app) cmdBuy(ctx context.Context, id string) error {
	if !a.requireMember() {
		return nil
	}
	if !a.catalog.BuyBook(ctx, id) {
		return fmt.Errorf("%s", errStyle.Render(a.catalog.Error()))
	}
	// Ownership lives on the user record; refresh the derived views
	a.session.LoadUser(ctx)
	a.favorites.Load()
	fmt.Println(okStyle.Render("Purchased."))
	return nil
}

func (a *app) cmdDownload(ctx context.Context, id string) error {
	a.catalog.FetchBooksByIDs(ctx, []string{id})
	books := a.catalog.Books()
	if len(books) == 0 {
		return fmt.Errorf("book not found: %s", id)
	}
	if !a.catalog.DownloadBook(ctx, id, books[0].Title) {
		return fmt.Errorf("%s", errStyle.Render(a.catalog.Error()))
	}
	fmt.Println(okStyle.Render("Saved " + books[0].Title + ".epub"))
	return nil
}

func (a *app) cmdReviews(ctx context.Context, bookID string) error {
	a.reviews.LoadReviews(ctx, bookID)
	reviews := a.reviews.Reviews()
	if len(reviews) == 0 {
		fmt.Println(dimStyle.Render("no reviews yet"))
		return nil
	}

	if avg := a.reviews.AverageRating(); avg != nil {
		fmt.Println(starStyle.Render(fmt.Sprintf("average %.1f stars", *avg)))
	}
	for _, r := range reviews {
		name := r.UserName
		if name == "" {
			name = "anonymous"
		}
		fmt.Printf("%s %s\n  %s\n", starStyle.Render(strings.Repeat("★", r.Stars)), titleStyle.Render(name), r.Body)
	}
	return nil
}

func (a *app) cmdReview(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: folio review add|rm ...")
	}

	switch args[0] {
	case "add":
		if len(args) < 4 {
			return fmt.Errorf("usage: folio review add <bookId> <stars> <text>")
		}
		if !a.requireMember() {
			return nil
		}
		stars, err := strconv.Atoi(args[2])
		if err != nil || stars < 1 || stars > 5 {
			return fmt.Errorf("stars must be 1-5")
		}

		user := a.session.User()
		bookID := args[1]

		// One review per user per book, checked client-side before submission
		a.reviews.LoadReviews(ctx, bookID)
		if a.reviews.HasUserReviewed(bookID, user.ID) {
			return fmt.Errorf("you have already reviewed this book")
		}

		err = a.reviews.AddReview(ctx, review.AddReviewInput{
			BookID:   bookID,
			UserID:   user.ID,
			UserName: user.DisplayName(),
			Stars:    stars,
			Body:     strings.Join(args[3:], " "),
		})
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render("Review posted."))
		return nil

	case "rm":
		if len(args) < 2 {
			return fmt.Errorf("usage: folio review rm <reviewId>")
		}
		if err := a.reviews.DeleteReview(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("Review removed."))
		return nil

	default:
		return fmt.Errorf("unknown review command: %s", args[0])
	}
}

func (a *app) cmdFav(ctx context.Context, bookID string) error {
	if !a.requireMember() {
		return nil
	}

	was := a.favorites.IsFavorite(bookID)
	a.favorites.Toggle(ctx, bookID)

	// A failed toggle leaves membership unchanged
	if a.favorites.IsFavorite(bookID) == was {
		fmt.Println(dimStyle.Render("no change"))
		return nil
	}
	if was {
		fmt.Println(okStyle.Render("Removed from favorites."))
	} else {
		fmt.Println(okStyle.Render("Added to favorites."))
	}
	return nil
}

func (a *app) cmdFavs(ctx context.Context) error {
	ids := a.favorites.BookIDs()
	if len(ids) == 0 {
		fmt.Println(dimStyle.Render("no favorites"))
		return nil
	}

	a.catalog.FetchBooksByIDs(ctx, ids)
	for _, b := range a.catalog.Books() {
		a.printBookLine(ctx, b)
	}
	return nil
}

func (a *app) cmdTheme(args []string) error {
	switch {
	case len(args) == 0:
		a.prefs.Toggle()
	case args[0] == "dark":
		a.prefs.SetDark(true)
	case args[0] == "light":
		a.prefs.SetDark(false)
	default:
		return fmt.Errorf("usage: folio theme [dark|light]")
	}

	if a.prefs.Dark() {
		fmt.Println("theme: dark")
	} else {
		fmt.Println("theme: light")
	}
	return nil
}

func (a *app) cmdAuthors(ctx context.Context) error {
	authors, err := a.client.GetAuthors(ctx)
	if err != nil {
		return err
	}
	if len(authors) == 0 {
		fmt.Println(dimStyle.Render("no authors"))
		return nil
	}
	for _, author := range authors {
		fmt.Printf("%s  %s\n", titleStyle.Render(author.FullName()), dimStyle.Render(author.ID))
	}
	return nil
}

func (a *app) cmdAdmin(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: folio admin add-book|rm-book|add-author|rm-user ...")
	}
	if !a.requireAdmin() {
		return nil
	}

	switch args[0] {
	case "add-book":
		if len(args) < 5 {
			return fmt.Errorf("usage: folio admin add-book <title> <authorId> <year> <epubPath>")
		}
		year, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("invalid year: %s", args[3])
		}
		epub, err := os.ReadFile(args[4])
		if err != nil {
			return fmt.Errorf("failed to read epub: %w", err)
		}
		book, err := a.client.RegisterBook(ctx, domain.NewBook{
			Title:         args[1],
			AuthorID:      args[2],
			YearPublished: year,
			EpubName:      filepath.Base(args[4]),
			Epub:          epub,
		})
		if err != nil {
			return err
		}
		fmt.Println(okStyle.Render("Added " + book.Title + " (" + book.ID + ")"))
		return nil

	case "rm-book":
		if len(args) < 2 {
			return fmt.Errorf("usage: folio admin rm-book <bookId>")
		}
		if !a.catalog.DeleteBook(ctx, args[1]) {
			return fmt.Errorf("%s", errStyle.Render(a.catalog.Error()))
		}
		fmt.Println(okStyle.Render("Book removed."))
		return nil

	case "add-author":
		if len(args) < 3 {
			return fmt.Errorf("usage: folio admin add-author <firstName> <lastName>")
		}
		author, ok := a.catalog.RegisterAuthor(ctx, args[1], args[2])
		if !ok {
			return fmt.Errorf("%s", errStyle.Render(a.catalog.Error()))
		}
		fmt.Println(okStyle.Render("Added " + author.FullName() + " (" + author.ID + ")"))
		return nil

	case "rm-user":
		if len(args) < 2 {
			return fmt.Errorf("usage: folio admin rm-user <userId>")
		}
		if err := a.client.DeleteUser(ctx, args[1]); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("User removed."))
		return nil

	default:
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

// requireMember gates member-only features behind an authenticated,
// non-guest session
func (a *app) requireMember() bool {
	if a.session.IsGuest() || !a.session.IsAuthenticated() {
		fmt.Println(errStyle.Render("This feature requires an account. Run: folio login"))
		return false
	}
	return true
}

// requireAdmin gates the catalog management surface behind the loaded
// user's role
func (a *app) requireAdmin() bool {
	if !a.requireMember() {
		return false
	}
	if !a.session.IsAdmin() {
		fmt.Println(errStyle.Render("This feature requires an admin account."))
		return false
	}
	return true
}

func (a *app) printBookLine(ctx context.Context, b domain.Book) {
	marker := " "
	if a.favorites.IsFavorite(b.ID) {
		marker = starStyle.Render("♥")
	}
	line := fmt.Sprintf("%s %s (%d)", marker, titleStyle.Render(b.Title), b.YearPublished)
	if author, ok := a.catalog.AuthorByID(ctx, b.AuthorID); ok {
		line += dimStyle.Render(" — " + author.FullName())
	}
	fmt.Printf("%s  %s\n", line, dimStyle.Render(b.ID))
}

// highlightTitle bolds the matched character positions of a search hit
func highlightTitle(title string, indexes []int) string {
	matched := make(map[int]bool, len(indexes))
	for _, i := range indexes {
		matched[i] = true
	}

	var sb strings.Builder
	for i, r := range []rune(title) {
		if matched[i] {
			sb.WriteString(matchStyle.Render(string(r)))
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(passwordBytes), nil
}
