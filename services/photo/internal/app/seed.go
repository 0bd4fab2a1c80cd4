package app

import (
	"time"

	"openbooks/pkg/domain"
)

type seedPost struct {
	title, imageURL, creator, caption, location string
	people, tags                                []string
	rating                                      float64
}

var seedPosts = []seedPost{
	{"Golden Hour in Santorini", "https://images.unsplash.com/photo-1570077188670-e3a8d69ac5ff?w=1200", "John Doe", "Soft blue hour over white rooftops.", "Santorini, Greece", []string{"John"}, []string{"sunset", "travel"}, 4.8},
	{"Mountain Serenity", "https://images.unsplash.com/photo-1506905925346-21bda4d32df4?w=1200", "Jane Smith", "Quiet clouds hugging the peaks.", "Himalayas, Nepal", []string{"Jane"}, []string{"mountains", "nature"}, 4.9},
	{"Urban Reflections", "https://images.unsplash.com/photo-1519501025264-65ba15a82390?w=1200", "Sarah Johnson", "Rainy streets, neon reflections.", "New York, USA", []string{"Sarah"}, []string{"city", "night"}, 4.6},
	{"Blooming Paradise", "https://images.unsplash.com/photo-1499002238440-d264edd596ec?w=1200", "Sarah Johnson", "Spring colors everywhere.", "Kyoto, Japan", []string{"Sarah"}, []string{"flowers", "nature"}, 4.7},
	{"Ocean Dreams", "https://images.unsplash.com/photo-1514282401047-d79a71a590e8?w=1200", "John Doe", "Waves + golden light.", "Algarve, Portugal", []string{"John"}, []string{"beach", "ocean"}, 4.9},
	{"Forest Whispers", "https://images.unsplash.com/photo-1448375240586-882707db888b?w=1200", "Jane Smith", "Mist between tall trees.", "Scotland", []string{"Jane"}, []string{"forest", "trees"}, 4.5},
	{"Desert Sunset", "https://images.unsplash.com/photo-1509316785289-025f5b846b35?w=1200", "John Doe", "Clean lines of dunes.", "Dubai, UAE", []string{"John"}, []string{"desert", "sunset"}, 4.8},
	{"Northern Lights", "https://images.unsplash.com/photo-1483347756197-71ef80e95f73?w=1200", "Sarah Johnson", "A sky that doesn’t look real.", "Iceland", []string{"Sarah"}, []string{"aurora", "night", "nature"}, 5.0},
}

// Seed builds the initial aggregate. Only post and comment ids come from
// newID; everything else is fixed or derived from now.
func Seed(now time.Time, newID func() string) domain.Aggregate {
	at := domain.MillisOf(now)
	agg := domain.Aggregate{
		ActiveUserID: domain.DefaultUserID,
		Users: []domain.User{
			{ID: domain.SeedAdminID, Name: "Admin", Role: domain.RoleAdmin},
			{ID: "u_creator", Name: "Creator", Role: domain.RoleCreator},
			{ID: domain.DefaultUserID, Name: "Consumer", Role: domain.RoleConsumer},
			{ID: "u_john", Name: "John Doe", Role: domain.RoleCreator},
			{ID: "u_jane", Name: "Jane Smith", Role: domain.RoleCreator},
			{ID: "u_sarah", Name: "Sarah Johnson", Role: domain.RoleCreator},
		},
		Posts:    make([]domain.Post, 0, len(seedPosts)),
		Likes:    []domain.Like{},
		Ratings:  make([]domain.Rating, 0, len(seedPosts)),
		Comments: []domain.Comment{},
	}
	for i, sp := range seedPosts {
		post := domain.Post{
			ID:          newID(),
			Title:       sp.title,
			ImageURL:    sp.imageURL,
			CreatorName: sp.creator,
			Caption:     sp.caption,
			Location:    sp.location,
			People:      append([]string{}, sp.people...),
			Tags:        append([]string{}, sp.tags...),
			CreatedAt:   at - domain.Millis(int64(i+1)*time.Hour.Milliseconds()),
			Status:      domain.StatusPublished,
		}
		agg.Posts = append(agg.Posts, post)
		agg.Ratings = append(agg.Ratings, domain.Rating{
			PostID: post.ID,
			UserID: domain.SeedRatingUserID,
			Rating: sp.rating,
			At:     at,
		})
		if i%2 == 1 {
			agg.Comments = append(agg.Comments, domain.Comment{
				ID:     newID(),
				PostID: post.ID,
				Who:    "Consumer",
				Text:   "Love this!",
				At:     at - 10_000,
			})
		}
	}
	return agg
}
