package store

import (
	"encoding/json"
	"fmt"
	"sort"

	"openbooks/pkg/domain"
)

type metaBody struct {
	ActiveUserID string `json:"activeUserId"`
}

// PairID is the synthetic id given to likes and ratings that carry none, so
// repeated saves overwrite the same item instead of duplicating it.
func PairID(postID, userID string) string {
	return postID + ":" + userID
}

// NewItem encodes v as the body of an item and stamps the type discriminator.
func NewItem(itemType, id string, v any) (Item, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Item{}, fmt.Errorf("encode %s %s: %w", itemType, id, err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Item{}, fmt.Errorf("encode %s %s: %w", itemType, id, err)
	}
	fields["type"], _ = json.Marshal(itemType)
	fields["id"], _ = json.Marshal(id)
	body, err := json.Marshal(fields)
	if err != nil {
		return Item{}, fmt.Errorf("encode %s %s: %w", itemType, id, err)
	}
	return Item{Type: itemType, ID: id, Body: body}, nil
}

// ItemsFromAggregate flattens agg into independent items, meta first.
func ItemsFromAggregate(agg domain.Aggregate) ([]Item, error) {
	n := 1 + len(agg.Users) + len(agg.Posts) + len(agg.Likes) + len(agg.Ratings) + len(agg.Comments)
	items := make([]Item, 0, n)
	add := func(itemType, id string, seq int, v any) error {
		item, err := NewItem(itemType, id, v)
		if err != nil {
			return err
		}
		if seq >= 0 {
			if item, err = withSeq(item, seq); err != nil {
				return err
			}
		}
		items = append(items, item)
		return nil
	}

	if err := add(TypeMeta, MetaID, -1, metaBody{ActiveUserID: agg.ActiveUserID}); err != nil {
		return nil, err
	}
	for i, u := range agg.Users {
		if err := add(TypeUser, u.ID, i, u); err != nil {
			return nil, err
		}
	}
	for i, p := range agg.Posts {
		if err := add(TypePost, p.ID, i, p); err != nil {
			return nil, err
		}
	}
	for i, l := range agg.Likes {
		if l.ID == "" {
			l.ID = PairID(l.PostID, l.UserID)
		}
		if err := add(TypeLike, l.ID, i, l); err != nil {
			return nil, err
		}
	}
	for i, r := range agg.Ratings {
		if r.ID == "" {
			r.ID = PairID(r.PostID, r.UserID)
		}
		if err := add(TypeRating, r.ID, i, r); err != nil {
			return nil, err
		}
	}
	for i, c := range agg.Comments {
		if err := add(TypeComment, c.ID, i, c); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// withSeq records the item's position in its collection so partitioned
// backends, which return items in no particular order, can restore it.
func withSeq(item Item, seq int) (Item, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(item.Body, &fields); err != nil {
		return Item{}, fmt.Errorf("encode %s %s: %w", item.Type, item.ID, err)
	}
	fields["seq"], _ = json.Marshal(seq)
	body, err := json.Marshal(fields)
	if err != nil {
		return Item{}, fmt.Errorf("encode %s %s: %w", item.Type, item.ID, err)
	}
	item.Body = body
	return item, nil
}

// AggregateFromItems rebuilds the aggregate from items grouped by type.
// It reports false when no partition holds any item.
func AggregateFromItems(byType map[string][]Item) (domain.Aggregate, bool, error) {
	total := 0
	for _, items := range byType {
		total += len(items)
	}
	if total == 0 {
		return domain.Aggregate{}, false, nil
	}

	var (
		agg domain.Aggregate
		err error
	)
	if agg.Users, err = decodeOrdered[domain.User](byType[TypeUser], nil); err != nil {
		return domain.Aggregate{}, false, err
	}
	if agg.Posts, err = decodeOrdered(byType[TypePost], func(a, b domain.Post) bool {
		return a.CreatedAt > b.CreatedAt
	}); err != nil {
		return domain.Aggregate{}, false, err
	}
	if agg.Likes, err = decodeOrdered(byType[TypeLike], func(a, b domain.Like) bool {
		return a.At > b.At
	}); err != nil {
		return domain.Aggregate{}, false, err
	}
	if agg.Ratings, err = decodeOrdered(byType[TypeRating], func(a, b domain.Rating) bool {
		return a.At > b.At
	}); err != nil {
		return domain.Aggregate{}, false, err
	}
	if agg.Comments, err = decodeOrdered(byType[TypeComment], func(a, b domain.Comment) bool {
		return a.At > b.At
	}); err != nil {
		return domain.Aggregate{}, false, err
	}
	metas, err := decodeAll[metaBody](byType[TypeMeta])
	if err != nil {
		return domain.Aggregate{}, false, err
	}

	switch {
	case len(metas) > 0 && metas[0].ActiveUserID != "":
		agg.ActiveUserID = metas[0].ActiveUserID
	case len(agg.Users) > 0:
		agg.ActiveUserID = agg.Users[0].ID
	default:
		agg.ActiveUserID = domain.DefaultUserID
	}
	return agg, true, nil
}

func decodeAll[T any](items []Item) ([]T, error) {
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := json.Unmarshal(item.Body, &v); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", item.Type, item.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

type seqField struct {
	Seq *int `json:"seq"`
}

// decodeOrdered decodes items and restores the order they were saved in.
// Items written without a position (single Upsert calls) come first, newest
// first by newer when given, since the aggregate prepends new entities.
func decodeOrdered[T any](items []Item, newer func(a, b T) bool) ([]T, error) {
	type entry struct {
		v   T
		seq int
	}
	entries := make([]entry, 0, len(items))
	for _, item := range items {
		var (
			v   T
			pos seqField
		)
		if err := json.Unmarshal(item.Body, &v); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", item.Type, item.ID, err)
		}
		if err := json.Unmarshal(item.Body, &pos); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", item.Type, item.ID, err)
		}
		e := entry{v: v, seq: -1}
		if pos.Seq != nil && *pos.Seq >= 0 {
			e.seq = *pos.Seq
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.seq >= 0 && b.seq >= 0:
			return a.seq < b.seq
		case a.seq < 0 && b.seq >= 0:
			return true
		case a.seq >= 0 && b.seq < 0:
			return false
		case newer != nil:
			return newer(a.v, b.v)
		default:
			return false
		}
	})
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.v)
	}
	return out, nil
}
