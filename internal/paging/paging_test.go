package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginate_Arithmetic(t *testing.T) {
	cases := []struct {
		total, page, size int
		pages, offset     int
		next, prev        bool
	}{
		{total: 12, page: 1, size: 5, pages: 3, offset: 0, next: true, prev: false},
		{total: 12, page: 3, size: 5, pages: 3, offset: 10, next: false, prev: true},
		{total: 10, page: 2, size: 5, pages: 2, offset: 5, next: false, prev: true},
		{total: 1, page: 1, size: 5, pages: 1, offset: 0},
		{total: 0, page: 1, size: 5, pages: 1, offset: 0},
	}
	for _, tc := range cases {
		m, err := Paginate(tc.total, tc.page, tc.size)
		require.NoError(t, err)
		assert.Equal(t, tc.pages, m.TotalPages, "total=%d size=%d", tc.total, tc.size)
		assert.Equal(t, tc.offset, m.Offset)
		assert.Equal(t, tc.next, m.HasNextPage)
		assert.Equal(t, tc.prev, m.HasPrevPage)
		assert.True(t, m.InRange())
	}
}

func TestPaginate_NavFlagsMatchPagePosition(t *testing.T) {
	for total := 0; total <= 23; total++ {
		for size := 1; size <= 7; size++ {
			m1, err := Paginate(total, 1, size)
			require.NoError(t, err)
			for page := 1; page <= m1.TotalPages; page++ {
				m, err := Paginate(total, page, size)
				require.NoError(t, err)
				assert.Equal(t, page > 1, m.HasPrevPage)
				assert.Equal(t, page < m.TotalPages, m.HasNextPage)
				assert.Equal(t, (page-1)*size, m.Offset)
			}
		}
	}
}

func TestPaginate_BeyondLastPageIsNotClamped(t *testing.T) {
	m, err := Paginate(12, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, 4, m.CurrentPage)
	assert.False(t, m.InRange())
	assert.False(t, m.HasNextPage)
}

func TestPaginate_Invalid(t *testing.T) {
	_, err := Paginate(10, 0, 5)
	assert.ErrorIs(t, err, ErrInvalidPage)
	_, err = Paginate(10, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestParsePage(t *testing.T) {
	n, err := ParsePage(" 3 ")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	for _, bad := range []string{"", "abc", "0", "-2", "1.5"} {
		_, err := ParsePage(bad)
		assert.ErrorIs(t, err, ErrInvalidPage, bad)
	}
}

func kinds(cs []Control) []ControlKind {
	out := make([]ControlKind, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Kind)
	}
	return out
}

func TestControls(t *testing.T) {
	assert.Equal(t, []ControlKind{ControlRefresh}, kinds(Controls(1, 1)))
	assert.Equal(t, []ControlKind{ControlRefresh}, kinds(Controls(1, 0)))

	first := Controls(1, 3)
	assert.Equal(t, []ControlKind{ControlIndicator, ControlNext, ControlRefresh}, kinds(first))
	assert.Equal(t, "1/3", first[0].Label)
	assert.Equal(t, 2, first[1].Page)

	mid := Controls(2, 3)
	assert.Equal(t, []ControlKind{ControlPrev, ControlIndicator, ControlNext, ControlRefresh}, kinds(mid))
	assert.Equal(t, 1, mid[0].Page)
	assert.Equal(t, 3, mid[2].Page)

	last := Controls(3, 3)
	assert.Equal(t, []ControlKind{ControlPrev, ControlIndicator, ControlRefresh}, kinds(last))
}
