package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type row struct {
	ID        int64
	CreatedAt time.Time
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s, err := EncodeCursor(Cursor{CreatedAt: at, ID: 42})
	require.NoError(t, err)

	c, err := DecodeCursor(s)
	require.NoError(t, err)
	require.Equal(t, int64(42), c.ID)
	require.True(t, at.Equal(c.CreatedAt))
}

func TestDecodeCursor_Empty(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, c)

	_, err = DecodeCursor("%%%")
	require.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []*row{{ID: 3}, {ID: 2}, {ID: 1}}
	extract := func(r *row) Cursor { return Cursor{ID: r.ID, CreatedAt: r.CreatedAt} }

	page, info, err := BuildCursorPageInfo(rows, 2, extract)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.True(t, info.HasMore)

	c, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, int64(2), c.ID)

	page, info, err = BuildCursorPageInfo(rows, 5, extract)
	require.NoError(t, err)
	require.Len(t, page, 3)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, DefaultLimit, Pagination{}.Normalize().Limit)
	require.Equal(t, MaxLimit, Pagination{Limit: 10_000}.Normalize().Limit)
	require.Equal(t, 5, Pagination{Limit: 5}.Normalize().Limit)
}
