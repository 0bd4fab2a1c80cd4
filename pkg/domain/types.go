package domain

import "time"

type UserRole string

const (
	RoleConsumer UserRole = "consumer"
	RoleCreator  UserRole = "creator"
	RoleAdmin    UserRole = "admin"
)

// ParseRole validates a role name.
func ParseRole(role string) (UserRole, bool) {
	switch UserRole(role) {
	case RoleConsumer, RoleCreator, RoleAdmin:
		return UserRole(role), true
	default:
		return "", false
	}
}

// CanPublish reports whether the role may upload posts.
func (r UserRole) CanPublish() bool {
	return r == RoleCreator || r == RoleAdmin
}

type PostStatus string

const (
	StatusPublished PostStatus = "published"
	StatusHidden    PostStatus = "hidden"
)

// Reserved identities created by the seed procedure.
const (
	SeedAdminID      = "u_admin"
	DefaultUserID    = "u_consumer"
	SeedRatingUserID = "seed"
)

// Millis is a Unix timestamp in milliseconds, the unit used by persisted documents.
type Millis int64

// MillisOf converts t to Millis.
func MillisOf(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// Time converts m back to a UTC time.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m)).UTC()
}

type User struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Role UserRole `json:"role"`
}

type Post struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	ImageURL    string     `json:"image_url"`
	CreatorName string     `json:"creator_name"`
	Caption     string     `json:"caption"`
	Location    string     `json:"location"`
	People      []string   `json:"people"`
	Tags        []string   `json:"tags"`
	CreatedAt   Millis     `json:"created_at"`
	Status      PostStatus `json:"status"`
}

// Like is keyed by (PostID, UserID). ID is only set by partitioned stores.
type Like struct {
	ID     string `json:"id,omitempty"`
	PostID string `json:"postId"`
	UserID string `json:"userId"`
	At     Millis `json:"at"`
}

// Rating is keyed by (PostID, UserID). ID is only set by partitioned stores.
type Rating struct {
	ID     string  `json:"id,omitempty"`
	PostID string  `json:"postId"`
	UserID string  `json:"userId"`
	Rating float64 `json:"rating"`
	At     Millis  `json:"at"`
}

type Comment struct {
	ID     string `json:"id"`
	PostID string `json:"postId"`
	Who    string `json:"who"`
	Text   string `json:"text"`
	At     Millis `json:"at"`
}

// Aggregate is the complete set of entities plus the active-user pointer.
// Collections are ordered newest first where the service prepends.
type Aggregate struct {
	ActiveUserID string    `json:"activeUserId"`
	Users        []User    `json:"users"`
	Posts        []Post    `json:"posts"`
	Likes        []Like    `json:"likes"`
	Ratings      []Rating  `json:"ratings"`
	Comments     []Comment `json:"comments"`
}

// Clone returns a deep copy safe to hand to another goroutine.
func (a Aggregate) Clone() Aggregate {
	out := Aggregate{
		ActiveUserID: a.ActiveUserID,
		Users:        append([]User{}, a.Users...),
		Posts:        make([]Post, len(a.Posts)),
		Likes:        append([]Like{}, a.Likes...),
		Ratings:      append([]Rating{}, a.Ratings...),
		Comments:     append([]Comment{}, a.Comments...),
	}
	for i, p := range a.Posts {
		p.People = append([]string{}, p.People...)
		p.Tags = append([]string{}, p.Tags...)
		out.Posts[i] = p
	}
	return out
}

// FindUser returns the index of the user with id, or -1.
func (a *Aggregate) FindUser(id string) int {
	for i := range a.Users {
		if a.Users[i].ID == id {
			return i
		}
	}
	return -1
}

// FindPost returns the index of the post with id, or -1.
func (a *Aggregate) FindPost(id string) int {
	for i := range a.Posts {
		if a.Posts[i].ID == id {
			return i
		}
	}
	return -1
}

// PostView is a post enriched with interaction counts for one viewer.
type PostView struct {
	Post
	LikeCount    int       `json:"like_count"`
	LikedByMe    bool      `json:"liked_by_me"`
	RatingAvg    float64   `json:"rating_avg"`
	RatingCount  int       `json:"rating_count"`
	MyRating     float64   `json:"my_rating"`
	CommentCount int       `json:"comment_count"`
	Comments     []Comment `json:"comments"`
}
