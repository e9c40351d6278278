package services

import (
	"strings"
	"time"

	"github.com/gosimple/unidecode"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// PageQuery is the paging and sort part of every list filter.
type PageQuery struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Page is one page of a list result.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// DateRange bounds created_at; either end may be nil.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (r DateRange) apply(q *gorm.DB, column string) *gorm.DB {
	if r.From != nil {
		q = q.Where(column+" >= ?", r.From.UTC())
	}
	if r.To != nil {
		q = q.Where(column+" <= ?", r.To.UTC())
	}
	return q
}

// onDay restricts column to the UTC calendar day containing day.
func onDay(q *gorm.DB, column string, day time.Time) *gorm.DB {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return q.Where(column+" >= ? AND "+column+" < ?", start, start.Add(24*time.Hour))
}

// searchTerm lowercases and transliterates s into a LIKE pattern, or "" when blank.
func searchTerm(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return "%" + strings.ToLower(unidecode.Unidecode(s)) + "%"
}

// paginate counts and fetches one page of q. sortable maps accepted sort keys to columns;
// unknown keys sort by fallback.
func paginate[T any](q *gorm.DB, pq PageQuery, sortable map[string]string, fallback string) (Page[T], error) {
	page := pq.Page
	if page < 1 {
		page = 1
	}
	limit := pq.Limit
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	column, ok := sortable[pq.SortBy]
	if !ok {
		column = fallback
	}
	dir := "DESC"
	if strings.EqualFold(pq.SortOrder, "asc") {
		dir = "ASC"
	}

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page[T]{}, err
	}

	items := make([]T, 0, limit)
	if err := q.Order(column + " " + dir).Order("id " + dir).
		Offset((page - 1) * limit).Limit(limit).
		Find(&items).Error; err != nil {
		return Page[T]{}, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}, nil
}
