package posts

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mellow-backend/internal/apperr"
	"mellow-backend/internal/dbtest"
	"mellow-backend/internal/page"
)

func TestSQLStore_Likes(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewSQLStore(conn)
	ctx := context.Background()

	author := dbtest.User(t, conn, "author@example.com")
	fan := dbtest.User(t, conn, "fan@example.com")

	p, err := store.Create(ctx, Post{AuthorID: author, Content: "hi", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	t.Run("should count a like once per user", func(t *testing.T) {
		changed, err := store.AddLike(ctx, p.ID, fan)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = store.AddLike(ctx, p.ID, fan)
		require.NoError(t, err)
		assert.False(t, changed)

		got, err := store.Get(ctx, fan, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.LikeCount)
		assert.True(t, got.LikedByMe)

		got, err = store.Get(ctx, author, p.ID)
		require.NoError(t, err)
		assert.False(t, got.LikedByMe)
	})

	t.Run("should only decrement on an existing like", func(t *testing.T) {
		changed, err := store.RemoveLike(ctx, p.ID, fan)
		require.NoError(t, err)
		assert.True(t, changed)

		changed, err = store.RemoveLike(ctx, p.ID, fan)
		require.NoError(t, err)
		assert.False(t, changed)

		got, err := store.Get(ctx, fan, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.LikeCount)
	})

	t.Run("should keep the count exact under concurrent likes", func(t *testing.T) {
		var users []int64
		for _, email := range []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"} {
			users = append(users, dbtest.User(t, conn, email))
		}

		var wg sync.WaitGroup
		for _, uid := range users {
			for range 3 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.AddLike(ctx, p.ID, uid)
					assert.NoError(t, err)
				}()
			}
		}
		wg.Wait()

		got, err := store.Get(ctx, author, p.ID)
		require.NoError(t, err)
		assert.Equal(t, len(users), got.LikeCount)
	})

	t.Run("should report nothing changed on a missing post", func(t *testing.T) {
		changed, err := store.AddLike(ctx, 9999, fan)
		require.Error(t, err)
		assert.False(t, changed)
	})
}

func TestSQLStore_AddReport(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewSQLStore(conn)
	ctx := context.Background()

	author := dbtest.User(t, conn, "author@example.com")
	r1 := dbtest.User(t, conn, "r1@example.com")
	r2 := dbtest.User(t, conn, "r2@example.com")

	p, err := store.Create(ctx, Post{AuthorID: author, Content: "spam", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	n, err := store.AddReport(ctx, p.ID, r1, "spam")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = store.AddReport(ctx, p.ID, r2, "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = store.AddReport(ctx, p.ID, r1, "again")
	require.ErrorIs(t, err, apperr.ErrConflict)

	got, err := store.Get(ctx, author, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ReportCount)
}

func TestSQLStore_List(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewSQLStore(conn)
	ctx := context.Background()

	author := dbtest.User(t, conn, "author@example.com")

	var communityID int64
	require.NoError(t, conn.QueryRow(`
		INSERT INTO communities (name, owner_id) VALUES ('runners', $1) RETURNING id
	`, author).Scan(&communityID))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	soon := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	create := func(content string, at time.Time, expires *time.Time, community *int64) Post {
		t.Helper()
		p, err := store.Create(ctx, Post{
			AuthorID:    author,
			CommunityID: community,
			Content:     content,
			ExpiresAt:   expires,
			CreatedAt:   at,
		})
		require.NoError(t, err)
		return p
	}

	older := create("older", now.Add(-2*time.Hour), nil, nil)
	tied1 := create("tied-1", now.Add(-time.Hour), nil, nil)
	tied2 := create("tied-2", now.Add(-time.Hour), &soon, nil)
	create("gone", now.Add(-30*time.Minute), &past, nil)
	create("at-expiry", now.Add(-20*time.Minute), &now, nil)
	inCommunity := create("club", now.Add(-10*time.Minute), nil, &communityID)

	ids := func(list []Post) []int64 {
		out := make([]int64, len(list))
		for i, p := range list {
			out[i] = p.ID
		}
		return out
	}

	t.Run("should hide posts at or past expiry", func(t *testing.T) {
		got, err := store.List(ctx, author, Query{Now: now, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []int64{inCommunity.ID, tied2.ID, tied1.ID, older.ID}, ids(got))
	})

	t.Run("should scope to a community", func(t *testing.T) {
		got, err := store.List(ctx, author, Query{Now: now, Limit: 10, CommunityID: &communityID})
		require.NoError(t, err)
		assert.Equal(t, []int64{inCommunity.ID}, ids(got))
	})

	t.Run("should page through posts sharing a timestamp", func(t *testing.T) {
		first, err := store.List(ctx, author, Query{Now: now, Limit: 2})
		require.NoError(t, err)
		require.Equal(t, []int64{inCommunity.ID, tied2.ID}, ids(first))

		last := first[len(first)-1]
		second, err := store.List(ctx, author, Query{
			Now:    now,
			Limit:  2,
			Before: page.Cursor{Time: last.CreatedAt, ID: last.ID},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{tied1.ID, older.ID}, ids(second))
	})

	t.Run("should compare on time alone without a cursor id", func(t *testing.T) {
		got, err := store.List(ctx, author, Query{
			Now:    now,
			Limit:  10,
			Before: page.Cursor{Time: tied1.CreatedAt},
		})
		require.NoError(t, err)
		assert.Equal(t, []int64{older.ID}, ids(got))
	})
}

func TestSQLStore_DeleteExpired(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewSQLStore(conn)
	ctx := context.Background()

	author := dbtest.User(t, conn, "author@example.com")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	for _, p := range []Post{
		{AuthorID: author, Content: "a", MediaKey: "posts/a.png", ExpiresAt: &past, CreatedAt: now.Add(-time.Hour)},
		{AuthorID: author, Content: "b", ExpiresAt: &now, CreatedAt: now.Add(-time.Hour)},
		{AuthorID: author, Content: "c", MediaKey: "posts/c.png", ExpiresAt: &future, CreatedAt: now},
		{AuthorID: author, Content: "d", CreatedAt: now},
	} {
		_, err := store.Create(ctx, p)
		require.NoError(t, err)
	}

	keys, n, err := store.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []string{"posts/a.png"}, keys)

	left, err := store.List(ctx, author, Query{Now: now, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestSQLStore_Delete(t *testing.T) {
	conn := dbtest.Open(t)
	store := NewSQLStore(conn)
	ctx := context.Background()

	author := dbtest.User(t, conn, "author@example.com")
	p, err := store.Create(ctx, Post{AuthorID: author, MediaKey: "posts/x.jpg", CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	key, err := store.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "posts/x.jpg", key)

	_, err = store.Delete(ctx, p.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
