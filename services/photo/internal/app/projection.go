package app

import (
	"sort"

	"openbooks/pkg/domain"
)

// maxViewComments bounds the comments embedded in a post view.
const maxViewComments = 25

// SummarizePost projects p for viewerID. It reads agg and never mutates it.
func SummarizePost(agg *domain.Aggregate, p domain.Post, viewerID string) domain.PostView {
	view := domain.PostView{Post: p}
	view.People = append([]string{}, p.People...)
	view.Tags = append([]string{}, p.Tags...)

	for _, l := range agg.Likes {
		if l.PostID != p.ID {
			continue
		}
		view.LikeCount++
		if l.UserID == viewerID {
			view.LikedByMe = true
		}
	}

	var sum float64
	for _, r := range agg.Ratings {
		if r.PostID != p.ID {
			continue
		}
		sum += r.Rating
		view.RatingCount++
		if r.UserID == viewerID && view.MyRating == 0 {
			view.MyRating = r.Rating
		}
	}
	if view.RatingCount > 0 {
		view.RatingAvg = sum / float64(view.RatingCount)
	}

	comments := []domain.Comment{}
	for _, c := range agg.Comments {
		if c.PostID == p.ID {
			comments = append(comments, c)
		}
	}
	view.CommentCount = len(comments)
	// Comments are stored newest first, so a stable sort keeps that order on equal timestamps.
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].At > comments[j].At
	})
	if len(comments) > maxViewComments {
		comments = comments[:maxViewComments]
	}
	view.Comments = comments
	return view
}
