package goals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ids(goals []Goal) []int64 {
	out := make([]int64, len(goals))
	for i, g := range goals {
		out[i] = g.ID
	}
	return out
}

func TestRecommend(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	const me = int64(1)

	candidates := []Goal{
		{ID: 1, OwnerID: 2, IsPublic: true, Category: "fitness", MemberIDs: []int64{2}, CreatedAt: base},
		{ID: 2, OwnerID: 2, IsPublic: false, MemberIDs: []int64{2}, CreatedAt: base},                           // private
		{ID: 3, OwnerID: me, IsPublic: true, MemberIDs: []int64{me}, CreatedAt: base},                          // mine
		{ID: 4, OwnerID: 3, IsPublic: true, MemberIDs: []int64{3, me}, CreatedAt: base},                        // joined
		{ID: 5, OwnerID: 3, IsPublic: true, IsCompleted: true, MemberIDs: []int64{3}, CreatedAt: base},         // done
		{ID: 6, OwnerID: 3, IsPublic: true, Category: "reading", MemberIDs: []int64{3, 4, 5}, CreatedAt: base}, // popular
		{ID: 7, OwnerID: 4, IsPublic: true, Category: "reading", MemberIDs: []int64{4}, CreatedAt: base.Add(time.Hour)},
		{ID: 8, OwnerID: 4, IsPublic: true, Category: "reading", MemberIDs: []int64{4}, CreatedAt: base.Add(time.Hour)},
		{ID: 9, OwnerID: 5, IsPublic: true, Category: "fitness", MemberIDs: []int64{5, 6}, CreatedAt: base},
	}

	t.Run("should drop private, owned, joined and completed goals", func(t *testing.T) {
		got := Recommend(candidates, me, nil, 100)
		assert.ElementsMatch(t, []int64{1, 6, 7, 8, 9}, ids(got))
	})

	t.Run("should order by members, then recency, then id without interests", func(t *testing.T) {
		got := Recommend(candidates, me, nil, 100)
		assert.Equal(t, []int64{6, 9, 8, 7, 1}, ids(got))
	})

	t.Run("should rank interest matches first", func(t *testing.T) {
		got := Recommend(candidates, me, []string{"fitness"}, 100)
		assert.Equal(t, []int64{9, 1, 6, 8, 7}, ids(got))
	})

	t.Run("should not treat an empty category as a match", func(t *testing.T) {
		got := Recommend([]Goal{
			{ID: 1, OwnerID: 2, IsPublic: true, MemberIDs: []int64{2}},
			{ID: 2, OwnerID: 2, IsPublic: true, MemberIDs: []int64{2, 3}},
		}, me, []string{""}, 10)
		assert.Equal(t, []int64{2, 1}, ids(got))
	})

	t.Run("should truncate to the limit", func(t *testing.T) {
		got := Recommend(candidates, me, nil, 2)
		assert.Equal(t, []int64{6, 9}, ids(got))
		assert.Empty(t, Recommend(candidates, me, nil, 0))
	})
}
