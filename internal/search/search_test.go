package search_test

import (
	"testing"

	"github.com/dmercer/folio/internal/domain"
	applog "github.com/dmercer/folio/internal/log"
	"github.com/dmercer/folio/internal/search"
)

type staticSource []domain.Book

func (s staticSource) Books() []domain.Book { return s }

func catalog() staticSource {
	return staticSource{
		{ID: "b1", Title: "Dune"},
		{ID: "b2", Title: "Dune Messiah"},
		{ID: "b3", Title: "The Left Hand of Darkness"},
		{ID: "b4", Title: "Neuromancer"},
	}
}

func TestSearchRanksExactTitleFirst(t *testing.T) {
	s := search.NewService(catalog(), applog.NullLogger())

	got := s.Search("dune")
	if len(got) < 2 {
		t.Fatalf("expected both Dune titles, got %v", got)
	}
	if got[0].ID != "b1" {
		t.Fatalf("exact match should rank first, got %q", got[0].Title)
	}
	if got[1].ID != "b2" {
		t.Fatalf("prefix match should rank second, got %q", got[1].Title)
	}
}

func TestSearchIsCaseInsensitive(t *testing.T) {
	s := search.NewService(catalog(), applog.NullLogger())

	got := s.Search("NEUROMANCER")
	if len(got) != 1 || got[0].ID != "b4" {
		t.Fatalf("case should not matter, got %v", got)
	}
}

func TestSearchEmptyQueryReturnsNothing(t *testing.T) {
	s := search.NewService(catalog(), applog.NullLogger())

	if got := s.Search("   "); got != nil {
		t.Fatalf("blank query should return nothing, got %v", got)
	}
}

func TestSearchKeepsDuplicateTitlesTogether(t *testing.T) {
	source := staticSource{
		{ID: "b1", Title: "Solaris"},
		{ID: "b2", Title: "Solaris"},
	}
	s := search.NewService(source, applog.NullLogger())

	got := s.Search("solaris")
	if len(got) != 2 {
		t.Fatalf("both editions should be returned, got %v", got)
	}
}

func TestFilterReportsMatchedPositions(t *testing.T) {
	s := search.NewService(catalog(), applog.NullLogger())

	matches := s.Filter("dune")
	if len(matches) == 0 {
		t.Fatalf("expected matches for %q", "dune")
	}
	for _, m := range matches {
		if len(m.MatchedIndexes) == 0 {
			t.Fatalf("match for %q carries no highlight positions", m.Book.Title)
		}
		for _, i := range m.MatchedIndexes {
			if i < 0 || i >= len(m.Book.Title) {
				t.Fatalf("index %d out of range for %q", i, m.Book.Title)
			}
		}
	}
}

func TestFilterEmptyQueryReturnsNothing(t *testing.T) {
	s := search.NewService(catalog(), applog.NullLogger())

	if got := s.Filter(""); got != nil {
		t.Fatalf("blank query should return nothing, got %v", got)
	}
}
