package store

import (
	"time"

	"openbooks/pkg/domain"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleAggregate() domain.Aggregate {
	return domain.Aggregate{
		ActiveUserID: "u_consumer",
		Users: []domain.User{
			{ID: "u_admin", Name: "Admin", Role: domain.RoleAdmin},
			{ID: "u_consumer", Name: "Consumer", Role: domain.RoleConsumer},
		},
		Posts: []domain.Post{
			{ID: "p2", Title: "Second", People: []string{"Jane"}, Tags: []string{"b"}, CreatedAt: 2000, Status: domain.StatusPublished},
			{ID: "p1", Title: "First", People: []string{}, Tags: []string{"a", "c"}, CreatedAt: 1000, Status: domain.StatusHidden},
		},
		Likes: []domain.Like{
			{PostID: "p1", UserID: "u_consumer", At: 1500},
		},
		Ratings: []domain.Rating{
			{PostID: "p2", UserID: "u_consumer", Rating: 4.5, At: 2600},
			{PostID: "p1", UserID: "seed", Rating: 5, At: 2500},
		},
		Comments: []domain.Comment{
			{ID: "c1", PostID: "p2", Who: "Consumer", Text: "Love this!", At: 2100},
		},
	}
}
