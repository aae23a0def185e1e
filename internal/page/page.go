package page

import "time"

// Cursor is a keyset position in a newest-first listing ordered by
// (created_at, id). The next page holds rows strictly before it. A zero ID
// compares on Time alone.
type Cursor struct {
	Time time.Time
	ID   int64
}

func (c Cursor) IsZero() bool {
	return c.Time.IsZero()
}

// Admits reports whether a row created at t with the given id belongs after
// the cursor.
func (c Cursor) Admits(t time.Time, id int64) bool {
	switch {
	case c.IsZero():
		return true
	case t.Before(c.Time):
		return true
	case t.Equal(c.Time):
		return id < c.ID
	default:
		return false
	}
}

// TimeArg is the cursor time as a nullable query argument.
func (c Cursor) TimeArg() *time.Time {
	if c.IsZero() {
		return nil
	}
	t := c.Time
	return &t
}
