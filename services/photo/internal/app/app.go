package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"openbooks/internal/util"
	"openbooks/pkg/domain"
	"openbooks/pkg/store"
)

// Field limits applied to user input, in runes.
const (
	maxNameLen     = 60
	maxTitleLen    = 120
	maxCaptionLen  = 800
	maxLocationLen = 120
	maxCommentLen  = 500
	maxPeople      = 10
	maxTags        = 12
)

// Config holds runtime dependencies for the photo application.
type Config struct {
	Store store.Adapter
	// Now and NewID default to the wall clock and util.NewID.
	Now   func() time.Time
	NewID func() string
}

// App owns the in-memory aggregate and flushes it through the store adapter
// after every mutation.
//
// The mutex only guards memory. It is released before the adapter is awaited,
// so two requests that mutate and persist concurrently may each save a
// snapshot containing the other's change or not; the last save wins.
type App struct {
	store store.Adapter
	now   func() time.Time
	newID func() string

	mu  sync.RWMutex
	agg domain.Aggregate

	ready     chan struct{}
	readyOnce sync.Once
	loadErr   error
}

// NewPost is the route-layer input for CreatePost. People and Tags are
// comma separated lists.
type NewPost struct {
	Title    string
	ImageURL string
	Caption  string
	Location string
	People   string
	Tags     string
}

// Status summarizes the aggregate and its persisted footprint.
type Status struct {
	Users       int    `json:"users"`
	Posts       int    `json:"posts"`
	DBSizeBytes int64  `json:"db_size_bytes"`
	DBSizeHuman string `json:"db_size_human"`
}

// New constructs the application. Call Start or Load before serving.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store adapter required")
	}
	a := &App{
		store: cfg.Store,
		now:   cfg.Now,
		newID: cfg.NewID,
		ready: make(chan struct{}),
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.newID == nil {
		a.newID = util.NewID
	}
	return a, nil
}

// Start loads the aggregate in the background.
func (a *App) Start(ctx context.Context) {
	go func() {
		_ = a.Load(ctx)
	}()
}

// Load reads the aggregate from the adapter, seeding and saving a fresh one
// when the backend holds no data, and marks the app ready. Only the first
// call has any effect on readiness.
func (a *App) Load(ctx context.Context) error {
	err := a.load(ctx)
	a.readyOnce.Do(func() {
		a.loadErr = err
		close(a.ready)
	})
	return err
}

func (a *App) load(ctx context.Context) error {
	logger := util.LoggerFromContext(ctx)
	agg, ok, err := a.store.LoadAll(ctx)
	if err != nil {
		logger.Error("load aggregate failed", "err", err)
		return fmt.Errorf("load: %w", err)
	}
	if !ok {
		agg = Seed(a.now(), a.newID)
		if err := a.store.SaveAll(ctx, agg); err != nil {
			logger.Error("save seed failed", "err", err)
			return fmt.Errorf("save seed: %w", err)
		}
		logger.Info("seeded empty store", "users", len(agg.Users), "posts", len(agg.Posts))
	} else {
		logger.Info("aggregate loaded", "users", len(agg.Users), "posts", len(agg.Posts))
	}
	normalize(&agg)

	a.mu.Lock()
	a.agg = agg
	a.mu.Unlock()
	return nil
}

// WaitReady blocks until the initial load finished or timeout elapsed.
func (a *App) WaitReady(ctx context.Context, timeout time.Duration) error {
	select {
	case <-a.ready:
		return a.readyErr()
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-a.ready:
		return a.readyErr()
	case <-timer.C:
		return ErrNotReady
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) readyErr() error {
	if a.loadErr != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, a.loadErr)
	}
	return nil
}

// normalize replaces nil collections and resolves a dangling active user.
func normalize(agg *domain.Aggregate) {
	if agg.Users == nil {
		agg.Users = []domain.User{}
	}
	if agg.Posts == nil {
		agg.Posts = []domain.Post{}
	}
	if agg.Likes == nil {
		agg.Likes = []domain.Like{}
	}
	if agg.Ratings == nil {
		agg.Ratings = []domain.Rating{}
	}
	if agg.Comments == nil {
		agg.Comments = []domain.Comment{}
	}
	for i := range agg.Posts {
		if agg.Posts[i].People == nil {
			agg.Posts[i].People = []string{}
		}
		if agg.Posts[i].Tags == nil {
			agg.Posts[i].Tags = []string{}
		}
	}
	if agg.ActiveUserID == "" {
		agg.ActiveUserID = domain.DefaultUserID
		if len(agg.Users) > 0 {
			agg.ActiveUserID = agg.Users[0].ID
		}
	}
}

// mutate runs fn under the write lock and persists the result when fn succeeds.
// A failed persist leaves the in-memory change applied.
func (a *App) mutate(ctx context.Context, fn func(agg *domain.Aggregate, me domain.User) error) error {
	a.mu.Lock()
	me, err := a.meLocked()
	if err == nil {
		err = fn(&a.agg, me)
	}
	a.mu.Unlock()
	if err != nil {
		return err
	}
	return a.persist(ctx)
}

func (a *App) persist(ctx context.Context) error {
	a.mu.RLock()
	snapshot := a.agg.Clone()
	a.mu.RUnlock()
	if err := a.store.SaveAll(ctx, snapshot); err != nil {
		util.LoggerFromContext(ctx).Error("persist aggregate failed", "err", err)
		return fmt.Errorf("persist: %w", err)
	}
	return nil
}

// meLocked resolves the active user, falling back to the first user.
func (a *App) meLocked() (domain.User, error) {
	if i := a.agg.FindUser(a.agg.ActiveUserID); i >= 0 {
		return a.agg.Users[i], nil
	}
	if len(a.agg.Users) > 0 {
		return a.agg.Users[0], nil
	}
	return domain.User{}, fmt.Errorf("%w: no users", domain.ErrNotFound)
}

func requireAdmin(me domain.User) error {
	if me.Role != domain.RoleAdmin {
		return fmt.Errorf("%w: admin only", domain.ErrForbidden)
	}
	return nil
}

func postNotFound(id string) error {
	return fmt.Errorf("%w: post %s", domain.ErrNotFound, id)
}

// Me returns the active user.
func (a *App) Me() (domain.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.meLocked()
}

// SwitchUser makes userID the active user.
func (a *App) SwitchUser(ctx context.Context, userID string) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	var user domain.User
	err := a.mutate(ctx, func(agg *domain.Aggregate, _ domain.User) error {
		i := agg.FindUser(userID)
		if i < 0 {
			return fmt.Errorf("%w: user %s", domain.ErrNotFound, userID)
		}
		agg.ActiveUserID = userID
		user = agg.Users[i]
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	util.LoggerFromContext(ctx).Info("active user switched", "user_id", userID)
	return user, nil
}

// UpdateProfile renames the active user and changes its role.
func (a *App) UpdateProfile(ctx context.Context, name, role string) (domain.User, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.TrimSpace(role) == "" {
		return domain.User{}, fmt.Errorf("%w: name and role are required", domain.ErrValidation)
	}
	parsed, ok := domain.ParseRole(strings.TrimSpace(role))
	if !ok {
		return domain.User{}, fmt.Errorf("%w: invalid role %q", domain.ErrValidation, role)
	}
	var user domain.User
	err := a.mutate(ctx, func(agg *domain.Aggregate, me domain.User) error {
		i := agg.FindUser(me.ID)
		agg.Users[i].Name = truncate(name, maxNameLen)
		agg.Users[i].Role = parsed
		user = agg.Users[i]
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// ListUsers returns every user in stored order.
func (a *App) ListUsers() []domain.User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]domain.User{}, a.agg.Users...)
}

// CreateUser adds a user; only admins may call it. An empty role means creator.
func (a *App) CreateUser(ctx context.Context, name, role string) (domain.User, error) {
	name = strings.TrimSpace(name)
	role = strings.TrimSpace(role)
	if role == "" {
		role = string(domain.RoleCreator)
	}
	var user domain.User
	err := a.mutate(ctx, func(agg *domain.Aggregate, me domain.User) error {
		if err := requireAdmin(me); err != nil {
			return err
		}
		if name == "" {
			return fmt.Errorf("%w: name is required", domain.ErrValidation)
		}
		parsed, ok := domain.ParseRole(role)
		if !ok {
			return fmt.Errorf("%w: invalid role %q", domain.ErrValidation, role)
		}
		user = domain.User{ID: a.newID(), Name: truncate(name, maxNameLen), Role: parsed}
		agg.Users = append([]domain.User{user}, agg.Users...)
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// DeleteUser removes a user; only admins may call it. The seeded admin cannot
// be removed. Deleting the active user makes the default consumer active.
// Removing an unknown id succeeds.
func (a *App) DeleteUser(ctx context.Context, id string) error {
	return a.mutate(ctx, func(agg *domain.Aggregate, me domain.User) error {
		if err := requireAdmin(me); err != nil {
			return err
		}
		if id == domain.SeedAdminID {
			return fmt.Errorf("%w: cannot delete seeded admin", domain.ErrValidation)
		}
		agg.Users = filter(agg.Users, func(u domain.User) bool { return u.ID != id })
		if agg.ActiveUserID == id {
			agg.ActiveUserID = domain.DefaultUserID
		}
		return nil
	})
}

// ListPosts projects every post for the active user, newest first.
func (a *App) ListPosts() ([]domain.PostView, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	me, err := a.meLocked()
	if err != nil {
		return nil, err
	}
	views := make([]domain.PostView, 0, len(a.agg.Posts))
	for _, p := range a.agg.Posts {
		views = append(views, SummarizePost(&a.agg, p, me.ID))
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].CreatedAt > views[j].CreatedAt
	})
	return views, nil
}

// GetPost projects one post for the active user.
func (a *App) GetPost(id string) (domain.PostView, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	me, err := a.meLocked()
	if err != nil {
		return domain.PostView{}, err
	}
	i := a.agg.FindPost(id)
	if i < 0 {
		return domain.PostView{}, postNotFound(id)
	}
	return SummarizePost(&a.agg, a.agg.Posts[i], me.ID), nil
}

// AuthorizeCreator returns the active user when it may publish posts.
// The route layer calls it before accepting an upload.
func (a *App) AuthorizeCreator() (domain.User, error) {
	me, err := a.Me()
	if err != nil {
		return domain.User{}, err
	}
	if !me.Role.CanPublish() {
		return domain.User{}, fmt.Errorf("%w: creator or admin only", domain.ErrForbidden)
	}
	return me, nil
}

// CreatePost publishes a post whose image is already stored at in.ImageURL.
func (a *App) CreatePost(ctx context.Context, in NewPost) (domain.PostView, error) {
	imageURL := strings.TrimSpace(in.ImageURL)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Untitled"
	}
	var view domain.PostView
	err := a.mutate(ctx, func(agg *domain.Aggregate, me domain.User) error {
		if !me.Role.CanPublish() {
			return fmt.Errorf("%w: creator or admin only", domain.ErrForbidden)
		}
		if imageURL == "" {
			return fmt.Errorf("%w: image is required", domain.ErrValidation)
		}
		post := domain.Post{
			ID:          a.newID(),
			Title:       truncate(title, maxTitleLen),
			ImageURL:    imageURL,
			CreatorName: me.Name,
			Caption:     truncate(in.Caption, maxCaptionLen),
			Location:    truncate(in.Location, maxLocationLen),
			People:      splitList(in.People, maxPeople),
			Tags:        splitList(in.Tags, maxTags),
			CreatedAt:   domain.MillisOf(a.now()),
			Status:      domain.StatusPublished,
		}
		agg.Posts = append([]domain.Post{post}, agg.Posts...)
		view = SummarizePost(agg, post, me.ID)
		return nil
	})
	if err != nil {
		return domain.PostView{}, err
	}
	return view, nil
}

// ToggleLike adds the active user's like on postID, or removes it if present.
func (a *App) ToggleLike(ctx context.Context, postID string) (domain.PostView, error) {
	var view domain.PostView
	err := a.mutate(ctx, func(agg *domain.Aggregate, me domain.User) error {
		i := agg.FindPost(postID)
		if i < 0 {
			return postNotFound(postID)
		}
		idx := -1
		for j, l := range agg.Likes {
			if l.PostID == postID && l.UserID == me.ID {
				idx = j
				break
			}
		}
		if idx >= 0 {
			agg.Likes = append(agg.Likes[:idx:idx], agg.Likes[idx+1:]...)
		} else {
			like := domain.Like{PostID: postID, UserID: me.ID, At: domain.MillisOf(a.now())}
			agg.Likes = append([]domain.Like{like}, agg.Likes...)
		}
		view = SummarizePost(agg, agg.Posts[i], me.ID)
		return nil
	})
	if err != nil {
		return domain.PostView{}, err
	}
	return view, nil
}

// Rate sets the active user's rating on postID, replacing any earlier one.
func (a *App) Rate(ctx context.Context, postID string, rating float64) (domain.PostView, error) {
	var view domain.PostView
	err := a.mutate(ctx, func(agg *domain.Aggregate, me domain.User) error {
		i := agg.FindPost(postID)
		if i < 0 {
			return postNotFound(postID)
		}
		if math.IsNaN(rating) || math.IsInf(rating, 0) || rating < 1 || rating > 5 {
			return fmt.Errorf("%w: rating must be 1-5", domain.ErrValidation)
		}
		r := domain.Rating{PostID: postID, UserID: me.ID, Rating: rating, At: domain.MillisOf(a.now())}
		replaced := false
		for j := range agg.Ratings {
			if agg.Ratings[j].PostID == postID && agg.Ratings[j].UserID == me.ID {
				r.ID = agg.Ratings[j].ID
				agg.Ratings[j] = r
				replaced = true
				break
			}
		}
		if !replaced {
			agg.Ratings = append([]domain.Rating{r}, agg.Ratings...)
		}
		view = SummarizePost(agg, agg.Posts[i], me.ID)
		return nil
	})
	if err != nil {
		return domain.PostView{}, err
	}
	return view, nil
}

// AddComment prepends a comment by the active user.
func (a *App) AddComment(ctx context.Context, postID, text string) (domain.PostView, error) {
	text = strings.TrimSpace(text)
	var view domain.PostView
	err := a.mutate(ctx, func(agg *domain.Aggregate, me domain.User) error {
		i := agg.FindPost(postID)
		if i < 0 {
			return postNotFound(postID)
		}
		if text == "" {
			return fmt.Errorf("%w: text is required", domain.ErrValidation)
		}
		c := domain.Comment{
			ID:     a.newID(),
			PostID: postID,
			Who:    me.Name,
			Text:   truncate(text, maxCommentLen),
			At:     domain.MillisOf(a.now()),
		}
		agg.Comments = append([]domain.Comment{c}, agg.Comments...)
		view = SummarizePost(agg, agg.Posts[i], me.ID)
		return nil
	})
	if err != nil {
		return domain.PostView{}, err
	}
	return view, nil
}

// TogglePostStatus flips a post between published and hidden. Admin only.
func (a *App) TogglePostStatus(ctx context.Context, postID string) (domain.PostStatus, error) {
	var status domain.PostStatus
	err := a.mutate(ctx, func(agg *domain.Aggregate, me domain.User) error {
		if err := requireAdmin(me); err != nil {
			return err
		}
		i := agg.FindPost(postID)
		if i < 0 {
			return postNotFound(postID)
		}
		if agg.Posts[i].Status == domain.StatusPublished {
			agg.Posts[i].Status = domain.StatusHidden
		} else {
			agg.Posts[i].Status = domain.StatusPublished
		}
		status = agg.Posts[i].Status
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// DeletePost removes a post with its likes, ratings and comments. Admin only.
// Removing an unknown id succeeds.
func (a *App) DeletePost(ctx context.Context, postID string) error {
	return a.mutate(ctx, func(agg *domain.Aggregate, me domain.User) error {
		if err := requireAdmin(me); err != nil {
			return err
		}
		agg.Posts = filter(agg.Posts, func(p domain.Post) bool { return p.ID != postID })
		agg.Likes = filter(agg.Likes, func(l domain.Like) bool { return l.PostID != postID })
		agg.Ratings = filter(agg.Ratings, func(r domain.Rating) bool { return r.PostID != postID })
		agg.Comments = filter(agg.Comments, func(c domain.Comment) bool { return c.PostID != postID })
		return nil
	})
}

// Export returns a deep copy of the whole aggregate. Admin only.
func (a *App) Export() (domain.Aggregate, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	me, err := a.meLocked()
	if err != nil {
		return domain.Aggregate{}, err
	}
	if err := requireAdmin(me); err != nil {
		return domain.Aggregate{}, err
	}
	return a.agg.Clone(), nil
}

// Reset replaces the aggregate with a fresh seed and saves it. Admin only.
func (a *App) Reset(ctx context.Context) error {
	err := a.mutate(ctx, func(agg *domain.Aggregate, me domain.User) error {
		if err := requireAdmin(me); err != nil {
			return err
		}
		*agg = Seed(a.now(), a.newID)
		return nil
	})
	if err != nil {
		return err
	}
	util.LoggerFromContext(ctx).Info("aggregate reset to seed")
	return nil
}

// Status reports counts and the persisted size when the backend can measure it.
func (a *App) Status(ctx context.Context) (Status, error) {
	a.mu.RLock()
	st := Status{Users: len(a.agg.Users), Posts: len(a.agg.Posts)}
	a.mu.RUnlock()
	if sizer, ok := a.store.(store.Sizer); ok {
		size, err := sizer.Size(ctx)
		if err != nil {
			return Status{}, fmt.Errorf("store size: %w", err)
		}
		st.DBSizeBytes = size
	}
	st.DBSizeHuman = HumanSize(st.DBSizeBytes)
	return st, nil
}

// HumanSize formats n bytes with B, KB, MB or GB units.
func HumanSize(n int64) string {
	units := []string{"B", "KB", "MB", "GB"}
	x := float64(n)
	i := 0
	for x >= 1024 && i < len(units)-1 {
		x /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%.0f %s", x, units[i])
	}
	return fmt.Sprintf("%.2f %s", x, units[i])
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func splitList(raw string, limit int) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
		if len(out) == limit {
			break
		}
	}
	return out
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
