package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200

	cursorPrefix = "idx:"
)

// Cursor represents a decoded pagination cursor. Pages are ordered by chunk
// index, so the cursor is the last index already returned.
type Cursor struct {
	AfterIndex int
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

// EncodeCursor creates a base64-encoded cursor from the last returned index
func EncodeCursor(lastIndex int) string {
	raw := cursorPrefix + strconv.Itoa(lastIndex)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a cursor. An empty cursor means the first page.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	raw, ok := strings.CutPrefix(string(decoded), cursorPrefix)
	if !ok {
		return nil, ErrInvalidCursor
	}

	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 0 {
		return nil, ErrInvalidCursor
	}

	return &Cursor{AfterIndex: idx}, nil
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// CreateNextCursor creates a cursor for the next page based on the last item.
// items is expected to hold up to limit+1 entries; the extra one only signals
// that another page exists.
func CreateNextCursor[T any](items []T, limit int, getIndex func(T) int) ([]T, string) {
	if len(items) <= limit {
		return items, ""
	}
	page := items[:limit]
	return page, EncodeCursor(getIndex(page[len(page)-1]))
}
