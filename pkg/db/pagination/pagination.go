package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// Pagination carries cursor paging inputs as bound from query strings.
type Pagination struct {
	PageToken string `form:"page_token" json:"page_token"`
	PageSize  int    `form:"page_size" json:"page_size"`
}

// PageInfo is returned alongside list results.
type PageInfo struct {
	NextPageToken string `json:"next_page_token,omitempty"`
	HasMore       bool   `json:"has_more"`
}

// Cursor is the decoded page token payload.
type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

var ErrInvalidPageToken = errors.New("invalid_page_token")

func EncodeCursor(c Cursor) (string, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func DecodeCursor(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, ErrInvalidPageToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidPageToken
	}
	var c Cursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cursor{}, ErrInvalidPageToken
	}
	return c, nil
}

// BuildCursorPageInfo derives PageInfo from an over-fetched result slice.
// Repositories fetch pageSize+1 rows; the extra row signals another page.
func BuildCursorPageInfo[T any](items []T, pageSize int32, tokenOf func(T) string) *PageInfo {
	if pageSize <= 0 {
		return nil
	}
	info := &PageInfo{}
	if len(items) > int(pageSize) {
		info.HasMore = true
		info.NextPageToken = tokenOf(items[pageSize-1])
	}
	return info
}
