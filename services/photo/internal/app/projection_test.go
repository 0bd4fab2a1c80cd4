package app

import (
	"fmt"
	"math"
	"testing"

	"openbooks/pkg/domain"
)

func TestSummarizePostWithoutInteractions(t *testing.T) {
	agg := &domain.Aggregate{}
	view := SummarizePost(agg, domain.Post{ID: "p"}, "u")
	if view.RatingAvg != 0 || view.RatingCount != 0 || view.MyRating != 0 {
		t.Fatalf("expected zero ratings, got %+v", view)
	}
	if view.LikeCount != 0 || view.LikedByMe {
		t.Fatalf("expected no likes, got %+v", view)
	}
	if view.Comments == nil || len(view.Comments) != 0 {
		t.Fatalf("expected empty non-nil comments, got %#v", view.Comments)
	}
}

func TestSummarizePostCountsOnlyItsPost(t *testing.T) {
	agg := &domain.Aggregate{
		Likes: []domain.Like{
			{PostID: "p", UserID: "u"},
			{PostID: "p", UserID: "v"},
			{PostID: "q", UserID: "u"},
		},
		Ratings: []domain.Rating{
			{PostID: "p", UserID: "v", Rating: 1},
			{PostID: "p", UserID: "u", Rating: 4},
			{PostID: "q", UserID: "u", Rating: 5},
		},
		Comments: []domain.Comment{
			{ID: "c1", PostID: "q"},
			{ID: "c2", PostID: "p"},
		},
	}
	view := SummarizePost(agg, domain.Post{ID: "p"}, "u")
	if view.LikeCount != 2 || !view.LikedByMe {
		t.Fatalf("likes = %d liked=%v", view.LikeCount, view.LikedByMe)
	}
	if view.RatingCount != 2 || math.Abs(view.RatingAvg-2.5) > 1e-9 || view.MyRating != 4 {
		t.Fatalf("ratings = count %d avg %v mine %v", view.RatingCount, view.RatingAvg, view.MyRating)
	}
	if view.CommentCount != 1 || len(view.Comments) != 1 || view.Comments[0].ID != "c2" {
		t.Fatalf("comments = %d %+v", view.CommentCount, view.Comments)
	}
}

func TestSummarizePostKeepsRecentCommentsStable(t *testing.T) {
	agg := &domain.Aggregate{}
	// Stored newest first; c0..c9 share a timestamp, the rest are older.
	for i := 0; i < 30; i++ {
		at := domain.Millis(1000)
		if i >= 10 {
			at = domain.Millis(1000 - i)
		}
		agg.Comments = append(agg.Comments, domain.Comment{ID: fmt.Sprintf("c%d", i), PostID: "p", At: at})
	}
	// An out of order comment that is the newest of all.
	agg.Comments = append(agg.Comments, domain.Comment{ID: "late", PostID: "p", At: 5000})

	view := SummarizePost(agg, domain.Post{ID: "p"}, "u")
	if view.CommentCount != 31 {
		t.Fatalf("comment count = %d, want 31", view.CommentCount)
	}
	if len(view.Comments) != 25 {
		t.Fatalf("recent comments = %d, want 25", len(view.Comments))
	}
	if view.Comments[0].ID != "late" {
		t.Fatalf("first comment = %s, want late", view.Comments[0].ID)
	}
	for i := 0; i < 10; i++ {
		if want := fmt.Sprintf("c%d", i); view.Comments[i+1].ID != want {
			t.Fatalf("comment %d = %s, want %s (ties keep insertion order)", i+1, view.Comments[i+1].ID, want)
		}
	}
	if view.Comments[24].ID != "c23" {
		t.Fatalf("last comment = %s, want c23", view.Comments[24].ID)
	}
}

func TestSummarizePostDoesNotShareSlices(t *testing.T) {
	post := domain.Post{ID: "p", Tags: []string{"a"}, People: []string{"x"}}
	agg := &domain.Aggregate{Posts: []domain.Post{post}}
	view := SummarizePost(agg, post, "u")
	view.Tags[0] = "changed"
	if agg.Posts[0].Tags[0] != "a" {
		t.Fatalf("projection aliased stored tags")
	}
}
