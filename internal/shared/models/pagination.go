// Package models holds types shared across allocator components and the API.
package models

// Pagination describes the window a page covers. Pages are 1-based.
type Pagination struct {
	Page       int   `json:"page" yaml:"page"`
	PageSize   int   `json:"page_size" yaml:"page_size"`
	Total      int64 `json:"total" yaml:"total"`
	TotalPages int   `json:"total_pages" yaml:"total_pages"`
}

// NewPagination computes TotalPages from total and pageSize.
func NewPagination(page, pageSize int, total int64) Pagination {
	p := Pagination{Page: page, PageSize: pageSize, Total: total}
	if total > 0 && pageSize > 0 {
		p.TotalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p Pagination) Offset() int64 {
	if p.Page < 1 {
		return 0
	}
	return int64((p.Page - 1) * p.PageSize)
}

// Page is one page of results.
type Page[T any] struct {
	Results    []T        `json:"results" yaml:"results"`
	Pagination Pagination `json:"pagination" yaml:"pagination"`
}
