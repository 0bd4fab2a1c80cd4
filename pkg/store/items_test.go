package store

import (
	"encoding/json"
	"strings"
	"testing"

	"openbooks/pkg/domain"
)

func TestItemsFromAggregateAssignsPairIDs(t *testing.T) {
	items, err := ItemsFromAggregate(sampleAggregate())
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 1+2+2+1+2+1 {
		t.Fatalf("unexpected item count %d", len(items))
	}
	if items[0].Type != TypeMeta || items[0].ID != MetaID {
		t.Fatalf("meta must come first, got %s/%s", items[0].Type, items[0].ID)
	}

	ids := map[string][]string{}
	for _, item := range items {
		ids[item.Type] = append(ids[item.Type], item.ID)
		var fields map[string]any
		if err := json.Unmarshal(item.Body, &fields); err != nil {
			t.Fatalf("decode %s: %v", item.ID, err)
		}
		if fields["type"] != item.Type || fields["id"] != item.ID {
			t.Fatalf("body discriminator mismatch for %s/%s: %v", item.Type, item.ID, fields)
		}
	}
	if got := ids[TypeLike]; len(got) != 1 || got[0] != "p1:u_consumer" {
		t.Fatalf("like ids = %v", got)
	}
	if got := ids[TypeRating]; len(got) != 2 || got[0] != "p2:u_consumer" || got[1] != "p1:seed" {
		t.Fatalf("rating ids = %v", got)
	}
}

func TestItemsFromAggregateKeepsExplicitIDs(t *testing.T) {
	agg := domain.Aggregate{
		Likes: []domain.Like{{ID: "l1", PostID: "p", UserID: "u"}},
	}
	items, err := ItemsFromAggregate(agg)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if items[1].ID != "l1" {
		t.Fatalf("explicit like id replaced: %s", items[1].ID)
	}
}

func TestAggregateFromItemsEmptyIsAbsent(t *testing.T) {
	_, ok, err := AggregateFromItems(map[string][]Item{TypeUser: nil, TypeMeta: {}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected absent")
	}
}

func orderedAggregate() domain.Aggregate {
	return domain.Aggregate{
		Users: []domain.User{
			{ID: "zz_new", Name: "New", Role: domain.RoleCreator},
			{ID: "u_admin", Name: "Admin", Role: domain.RoleAdmin},
			{ID: "u_creator", Name: "Creator", Role: domain.RoleCreator},
			{ID: "u_consumer", Name: "Consumer", Role: domain.RoleConsumer},
		},
		Posts: []domain.Post{
			{ID: "pb", CreatedAt: 30},
			{ID: "pc", CreatedAt: 30},
			{ID: "pa", CreatedAt: 10},
		},
		Comments: []domain.Comment{
			{ID: "c_second", PostID: "pa", Text: "second", At: 5},
			{ID: "c_first", PostID: "pa", Text: "first", At: 5},
		},
	}
}

func userIDs(users []domain.User) string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return strings.Join(ids, ",")
}

func TestAggregateFromItemsRestoresSavedOrder(t *testing.T) {
	items, err := ItemsFromAggregate(orderedAggregate())
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	// partitioned backends hand items back in arbitrary order
	byType := map[string][]Item{}
	for i := len(items) - 1; i >= 0; i-- {
		byType[items[i].Type] = append(byType[items[i].Type], items[i])
	}

	agg, ok, err := AggregateFromItems(byType)
	if err != nil || !ok {
		t.Fatalf("rebuild: ok=%v err=%v", ok, err)
	}
	if got := userIDs(agg.Users); got != "zz_new,u_admin,u_creator,u_consumer" {
		t.Fatalf("user order = %s", got)
	}
	if agg.Posts[0].ID != "pb" || agg.Posts[1].ID != "pc" || agg.Posts[2].ID != "pa" {
		t.Fatalf("post order = %+v", agg.Posts)
	}
	if agg.Comments[0].Text != "second" || agg.Comments[1].Text != "first" {
		t.Fatalf("same-millisecond comments reordered: %+v", agg.Comments)
	}
	if agg.ActiveUserID != "zz_new" {
		t.Fatalf("active user = %q, want first saved user", agg.ActiveUserID)
	}
}

func TestAggregateFromItemsPutsUnpositionedItemsFirst(t *testing.T) {
	saved, err := ItemsFromAggregate(domain.Aggregate{
		Posts: []domain.Post{{ID: "old", CreatedAt: 50}},
	})
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	byType := map[string][]Item{TypePost: {saved[1]}}
	for _, p := range []domain.Post{{ID: "a", CreatedAt: 10}, {ID: "b", CreatedAt: 30}} {
		item, err := NewItem(TypePost, p.ID, p)
		if err != nil {
			t.Fatalf("new item: %v", err)
		}
		byType[TypePost] = append(byType[TypePost], item)
	}

	agg, ok, err := AggregateFromItems(byType)
	if err != nil || !ok {
		t.Fatalf("rebuild: ok=%v err=%v", ok, err)
	}
	var posts []string
	for _, p := range agg.Posts {
		posts = append(posts, p.ID)
	}
	if strings.Join(posts, ",") != "b,a,old" {
		t.Fatalf("post order = %v", posts)
	}
}

func TestAggregateFromItemsRejectsBadBody(t *testing.T) {
	byType := map[string][]Item{
		TypePost: {{Type: TypePost, ID: "p", Body: json.RawMessage(`{"created_at":"soon"}`)}},
	}
	if _, _, err := AggregateFromItems(byType); err == nil {
		t.Fatalf("expected decode error")
	}
}
