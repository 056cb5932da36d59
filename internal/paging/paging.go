// Package paging turns (total, page, size) into bounded slice coordinates
// and chat navigation controls.
package paging

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidPage     = errors.New("paging: invalid page")
	ErrInvalidPageSize = errors.New("paging: invalid page size")
)

// Meta describes one page of a filtered result. Pages are 1-based.
type Meta struct {
	TotalCount  int  `json:"totalCount"`
	CurrentPage int  `json:"currentPage"`
	PageSize    int  `json:"pageSize"`
	TotalPages  int  `json:"totalPages"`
	Offset      int  `json:"offset"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

// InRange reports whether CurrentPage addresses an existing page.
func (m Meta) InRange() bool { return m.CurrentPage >= 1 && m.CurrentPage <= m.TotalPages }

// Paginate computes page metadata. An empty result is one page with zero
// items. Pages past the end are not clamped; callers check InRange.
func Paginate(totalCount, page, pageSize int) (Meta, error) {
	if pageSize < 1 {
		return Meta{}, fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	if page < 1 {
		return Meta{}, fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	if totalCount < 0 {
		totalCount = 0
	}
	totalPages := max(1, (totalCount+pageSize-1)/pageSize)
	return Meta{
		TotalCount:  totalCount,
		CurrentPage: page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		Offset:      Offset(page, pageSize),
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}, nil
}

func Offset(page, pageSize int) int {
	if page < 1 || pageSize < 1 {
		return 0
	}
	return (page - 1) * pageSize
}

// ParsePage parses a 1-based page number from user input.
func ParsePage(s string) (int, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPage, s)
	}
	return n, nil
}
