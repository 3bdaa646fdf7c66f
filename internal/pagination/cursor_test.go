package pagination

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	cursor, err := DecodeCursor(EncodeCursor(41))

	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, 41, cursor.AfterIndex)
}

func TestDecodeCursor_Empty(t *testing.T) {
	cursor, err := DecodeCursor("")

	require.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	inputs := []string{
		"not base64!!",
		base64.URLEncoding.EncodeToString([]byte("41")),
		base64.URLEncoding.EncodeToString([]byte("idx:abc")),
		base64.URLEncoding.EncodeToString([]byte("idx:-3")),
	}
	for _, in := range inputs {
		_, err := DecodeCursor(in)
		assert.ErrorIs(t, err, ErrInvalidCursor, in)
	}
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxLimit, ClampLimit(10000))
}

func TestCreateNextCursor(t *testing.T) {
	items := []int{0, 1, 2, 3}

	page, next := CreateNextCursor(items, 3, func(i int) int { return i })
	assert.Equal(t, []int{0, 1, 2}, page)
	cursor, err := DecodeCursor(next)
	require.NoError(t, err)
	assert.Equal(t, 2, cursor.AfterIndex)

	page, next = CreateNextCursor(items, 4, func(i int) int { return i })
	assert.Len(t, page, 4)
	assert.Empty(t, next)
}
