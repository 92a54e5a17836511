package search

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	sahilm "github.com/sahilm/fuzzy"

	"github.com/dmercer/folio/internal/domain"
)

// BookSource supplies the books to search. Implemented by catalog.Cache.
type BookSource interface {
	Books() []domain.Book
}

// Match is a search hit with the character positions that matched, for
// terminal highlighting.
type Match struct {
	Book           domain.Book
	Score          int
	MatchedIndexes []int
}

// bookIndex implements sahilm/fuzzy.Source over book titles
type bookIndex struct {
	books       []domain.Book
	lowerTitles []string
}

func (idx *bookIndex) String(i int) string { return idx.lowerTitles[i] }
func (idx *bookIndex) Len() int            { return len(idx.books) }

// Service performs local fuzzy title search over the catalog cache
type Service struct {
	source BookSource
	logger *slog.Logger
}

// NewService creates a search service over the catalog
func NewService(source BookSource, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, logger: logger}
}

// Search returns books ranked by fuzzy title match (best first)
func (s *Service) Search(query string) []domain.Book {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	books := s.source.Books()
	titles := make([]string, len(books))
	byTitle := make(map[string][]domain.Book, len(books))
	for i, b := range books {
		title := strings.ToLower(b.Title)
		titles[i] = title
		byTitle[title] = append(byTitle[title], b)
	}

	ranks := fuzzy.RankFindNormalizedFold(query, titles)
	sort.Slice(ranks, func(i, j int) bool {
		return ranks[i].Distance < ranks[j].Distance
	})

	seen := make(map[string]bool)
	results := make([]domain.Book, 0, len(ranks))
	for _, rank := range ranks {
		if seen[rank.Target] {
			continue
		}
		seen[rank.Target] = true
		results = append(results, byTitle[rank.Target]...)
	}

	s.logger.Debug("search complete", "query", query, "results", len(results))
	return results
}

// Filter returns matches with per-character positions for highlighting
func (s *Service) Filter(query string) []Match {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	books := s.source.Books()
	idx := &bookIndex{
		books:       books,
		lowerTitles: make([]string, len(books)),
	}
	for i, b := range books {
		idx.lowerTitles[i] = strings.ToLower(b.Title)
	}

	found := sahilm.FindFrom(query, idx)

	matches := make([]Match, 0, len(found))
	for _, m := range found {
		matches = append(matches, Match{
			Book:           idx.books[m.Index],
			Score:          m.Score,
			MatchedIndexes: m.MatchedIndexes,
		})
	}
	return matches
}
