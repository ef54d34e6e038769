package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, 5, Pagination{PageSize: 5}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
}

func TestPage(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []int64{5, 4, 3}
	cursorOf := func(id int64) Cursor { return Cursor{ID: id, CreatedAt: base} }

	kept, info, err := Page(rows, 2, cursorOf)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 4}, kept)
	assert.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.EqualValues(t, 4, cursor.ID)
	assert.True(t, cursor.CreatedAt.Equal(base))

	kept, info, err = Page(rows, 3, cursorOf)
	require.NoError(t, err)
	assert.Len(t, kept, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("%%%")
	assert.ErrorIs(t, err, ErrInvalidPageToken)

	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)
}
