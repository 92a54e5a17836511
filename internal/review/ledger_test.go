package review_test

import (
	"context"
	"testing"

	"github.com/dmercer/folio/internal/domain"
	applog "github.com/dmercer/folio/internal/log"
	"github.com/dmercer/folio/internal/review"
)

type fakeReviews struct {
	byBook    map[string][]domain.Review
	getErr    error
	createErr error
	deleteErr error
	nextID    int
	echoName  bool
}

func (f *fakeReviews) GetReviews(ctx context.Context, bookID string) ([]domain.Review, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.byBook[bookID], nil
}

func (f *fakeReviews) CreateReview(ctx context.Context, bookID string, stars int, body string) (*domain.Review, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	r := &domain.Review{
		ID:     "r" + string(rune('0'+f.nextID)),
		BookID: bookID,
		UserID: "u1",
		Stars:  stars,
		Body:   body,
	}
	if f.echoName {
		r.UserName = "Echoed Name"
	}
	return r, nil
}

func (f *fakeReviews) DeleteReview(ctx context.Context, id string) error {
	return f.deleteErr
}

func ratings(stars ...int) []domain.Review {
	out := make([]domain.Review, len(stars))
	for i, s := range stars {
		out[i] = domain.Review{ID: "r" + string(rune('a'+i)), BookID: "b1", UserID: "u" + string(rune('a'+i)), Stars: s}
	}
	return out
}

func TestAverageRating(t *testing.T) {
	cases := []struct {
		name  string
		stars []int
		want  float64
		nilOK bool
	}{
		{name: "mixed", stars: []int{4, 5, 3}, want: 4.0},
		{name: "empty", stars: nil, nilOK: true},
		{name: "single", stars: []int{5}, want: 5.0},
		{name: "rounded", stars: []int{4, 4, 5}, want: 4.3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeReviews{byBook: map[string][]domain.Review{"b1": ratings(tc.stars...)}}
			l := review.NewLedger(repo, applog.NullLogger())
			l.LoadReviews(context.Background(), "b1")

			avg := l.AverageRating()
			if tc.nilOK {
				if avg != nil {
					t.Fatalf("expected nil average, got %v", *avg)
				}
				return
			}
			if avg == nil {
				t.Fatalf("expected average %v, got nil", tc.want)
			}
			if *avg != tc.want {
				t.Fatalf("expected average %v, got %v", tc.want, *avg)
			}
		})
	}
}

func TestAddReviewPrependsNewestFirst(t *testing.T) {
	repo := &fakeReviews{byBook: map[string][]domain.Review{"b1": ratings(3, 4)}}
	l := review.NewLedger(repo, applog.NullLogger())
	l.LoadReviews(context.Background(), "b1")

	err := l.AddReview(context.Background(), review.AddReviewInput{
		BookID:   "b1",
		UserID:   "u1",
		UserName: "Ada Lovelace",
		Stars:    5,
		Body:     "superb",
	})
	if err != nil {
		t.Fatalf("add review: %v", err)
	}

	reviews := l.Reviews()
	if len(reviews) != 3 {
		t.Fatalf("expected 3 reviews, got %d", len(reviews))
	}
	if reviews[0].Stars != 5 || reviews[0].Body != "superb" {
		t.Fatalf("new review must be first, got %+v", reviews[0])
	}
	if reviews[0].UserName != "Ada Lovelace" {
		t.Fatalf("caller display name should fill in the missing field, got %q", reviews[0].UserName)
	}

	got, ok := l.UserReview("u1")
	if !ok {
		t.Fatalf("UserReview should find the just-added review")
	}
	if got.ID != reviews[0].ID {
		t.Fatalf("UserReview returned %q, want %q", got.ID, reviews[0].ID)
	}
	if !l.HasUserReviewed("b1", "u1") {
		t.Fatalf("HasUserReviewed should be true after add")
	}
}

func TestAddReviewKeepsEchoedName(t *testing.T) {
	repo := &fakeReviews{echoName: true}
	l := review.NewLedger(repo, applog.NullLogger())

	err := l.AddReview(context.Background(), review.AddReviewInput{
		BookID: "b1", UserID: "u1", UserName: "Caller Name", Stars: 4, Body: "ok",
	})
	if err != nil {
		t.Fatalf("add review: %v", err)
	}
	if got := l.Reviews()[0].UserName; got != "Echoed Name" {
		t.Fatalf("backend-echoed name must win, got %q", got)
	}
}

func TestAddReviewFailurePropagates(t *testing.T) {
	repo := &fakeReviews{createErr: domain.ErrUnauthorized}
	l := review.NewLedger(repo, applog.NullLogger())

	if err := l.AddReview(context.Background(), review.AddReviewInput{BookID: "b1", Stars: 5}); err == nil {
		t.Fatalf("expected error")
	}
	if len(l.Reviews()) != 0 {
		t.Fatalf("failed add must not touch local state")
	}
}

func TestDeleteReviewRemovesLocally(t *testing.T) {
	repo := &fakeReviews{byBook: map[string][]domain.Review{"b1": {
		{ID: "r1", BookID: "b1", UserID: "u1", Stars: 4},
		{ID: "r2", BookID: "b1", UserID: "u2", Stars: 2},
	}}}
	l := review.NewLedger(repo, applog.NullLogger())
	l.LoadReviews(context.Background(), "b1")

	if err := l.DeleteReview(context.Background(), "r1"); err != nil {
		t.Fatalf("delete review: %v", err)
	}
	if l.HasUserReviewed("b1", "u1") {
		t.Fatalf("HasUserReviewed must be false after the user's only review is deleted")
	}
	if len(l.Reviews()) != 1 {
		t.Fatalf("expected 1 review after delete, got %d", len(l.Reviews()))
	}
}

func TestDeleteReviewFailureKeepsLocalState(t *testing.T) {
	repo := &fakeReviews{
		byBook:    map[string][]domain.Review{"b1": ratings(4)},
		deleteErr: domain.ErrServerOffline,
	}
	l := review.NewLedger(repo, applog.NullLogger())
	l.LoadReviews(context.Background(), "b1")

	if err := l.DeleteReview(context.Background(), "ra"); err == nil {
		t.Fatalf("expected error")
	}
	if len(l.Reviews()) != 1 {
		t.Fatalf("no optimistic removal: local state must be untouched on failure")
	}
}

func TestLoadReviewsFailureResetsList(t *testing.T) {
	repo := &fakeReviews{byBook: map[string][]domain.Review{"b1": ratings(5, 5)}}
	l := review.NewLedger(repo, applog.NullLogger())
	l.LoadReviews(context.Background(), "b1")
	if len(l.Reviews()) != 2 {
		t.Fatalf("seed load failed")
	}

	repo.getErr = domain.ErrServerOffline
	l.LoadReviews(context.Background(), "b2")

	if len(l.Reviews()) != 0 {
		t.Fatalf("a failed load must not retain the previous book's reviews")
	}
	if l.CurrentBookID() != "b2" {
		t.Fatalf("tracked book should switch even on failure, got %q", l.CurrentBookID())
	}
}

func TestLoadReviewsSwitchesTrackedBook(t *testing.T) {
	repo := &fakeReviews{byBook: map[string][]domain.Review{
		"b1": ratings(5),
		"b2": ratings(1, 2),
	}}
	l := review.NewLedger(repo, applog.NullLogger())

	l.LoadReviews(context.Background(), "b1")
	l.LoadReviews(context.Background(), "b2")

	if l.CurrentBookID() != "b2" {
		t.Fatalf("tracked book should be b2")
	}
	if len(l.Reviews()) != 2 {
		t.Fatalf("expected b2's reviews, got %d entries", len(l.Reviews()))
	}
}
