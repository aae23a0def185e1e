package goals

import (
	"cmp"
	"slices"
)

// Recommend filters candidates down to goals userID could join: public, not
// completed, not owned by and not already joined by the user. The result is
// ordered by interest match (category is one of the user's interests), then
// member count, then recency, then id, and truncated to limit.
func Recommend(candidates []Goal, userID int64, interests []string, limit int) []Goal {
	wanted := make(map[string]struct{}, len(interests))
	for _, i := range interests {
		wanted[i] = struct{}{}
	}
	matches := func(g Goal) bool {
		_, ok := wanted[g.Category]
		return ok && g.Category != ""
	}

	out := make([]Goal, 0, len(candidates))
	for _, g := range candidates {
		if !g.IsPublic || g.IsCompleted || g.OwnerID == userID || g.IsMember(userID) {
			continue
		}
		out = append(out, g)
	}

	slices.SortStableFunc(out, func(a, b Goal) int {
		if ma, mb := matches(a), matches(b); ma != mb {
			if ma {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(len(b.MemberIDs), len(a.MemberIDs)); c != 0 {
			return c
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
