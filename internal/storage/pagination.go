package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor points past the last item of a page; pages are ordered by
// createdAt desc, id desc.
type Cursor struct {
	CreatedAt int64  `json:"created_at"` // epoch ms
	ID        string `json:"id"`
}

func EncodeCursor(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func DecodeCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", ErrInvalidCursor, err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidCursor, err)
	}
	return &c, nil
}

// After reports whether an item sorts after the cursor.
func (c *Cursor) After(createdAt int64, id string) bool {
	if c == nil {
		return true
	}
	return createdAt < c.CreatedAt || (createdAt == c.CreatedAt && id < c.ID)
}

// NextCursor returns the cursor for a full page, or "" for the last one.
func NextCursor(n, limit int, createdAt int64, id string) string {
	if n < limit || limit <= 0 {
		return ""
	}
	next, _ := EncodeCursor(Cursor{CreatedAt: createdAt, ID: id})
	return next
}
