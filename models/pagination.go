package models

import (
	"encoding/base64"
	"strconv"

	"gorm.io/gorm"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

type PageInfo struct {
	EndCursor   string `json:"end_cursor"`
	HasNextPage bool   `json:"has_next_page"`
}

type Page[T any] struct {
	Items    []*T     `json:"items"`
	PageInfo PageInfo `json:"page_info"`
}

func EncodeCursor(id int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(id)))
}

// DecodeCursor returns 0 for an empty cursor.
func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	b, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(b))
}

func clampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// identified rows expose their primary key for cursors.
type identified interface {
	GetId() int
}

// FetchPage reads the page after cursor ordered by id descending, so newer
// rows come first.
func FetchPage[T identified](q *gorm.DB, limit int, after string) (*Page[T], error) {
	limit = clampPageSize(limit)
	afterId, err := DecodeCursor(after)
	if err != nil {
		return nil, err
	}
	if afterId > 0 {
		q = q.Where("id < ?", afterId)
	}
	nodes := make([]*T, 0, limit+1)
	if err := q.Order("id DESC").Limit(limit + 1).Find(&nodes).Error; err != nil {
		return nil, err
	}
	page := Page[T]{}
	if len(nodes) > limit {
		page.PageInfo.HasNextPage = true
		nodes = nodes[:limit]
	}
	page.Items = nodes
	if len(nodes) > 0 {
		page.PageInfo.EndCursor = EncodeCursor((*nodes[len(nodes)-1]).GetId())
	}
	return &page, nil
}
