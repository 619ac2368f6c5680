package params

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantPage   int
		wantOffset int
	}{
		{"", DefaultLimit, 1, 0},
		{"page=3&limit=10", 10, 3, 20},
		{"limit=0", DefaultLimit, 1, 0},
		{"limit=1000", MaxLimit, 1, 0},
		{"page=-2&limit=abc", DefaultLimit, 1, 0},
	}
	for _, tt := range tests {
		q, err := url.ParseQuery(tt.query)
		require.NoError(t, err)

		p := ParsePagination(q)
		assert.Equal(t, tt.wantLimit, p.Limit, tt.query)
		assert.Equal(t, tt.wantPage, p.Page, tt.query)
		assert.Equal(t, tt.wantOffset, p.Offset, tt.query)
	}
}

func TestComputeMeta(t *testing.T) {
	p := Pagination{Limit: 10, Page: 2, Offset: 10}
	p.ComputeMeta(25)

	assert.Equal(t, 3, p.TotalPages)
	assert.True(t, p.HasPrev)
	assert.True(t, p.HasNext)

	p = Pagination{Limit: 10, Page: 3, Offset: 20}
	p.ComputeMeta(25)
	assert.False(t, p.HasNext)
}

func TestParseSince(t *testing.T) {
	since, err := ParseSince(url.Values{})
	require.NoError(t, err)
	assert.Nil(t, since)

	since, err = ParseSince(url.Values{"since": {"2024-05-10T00:00:00+08:00"}})
	require.NoError(t, err)
	require.NotNil(t, since)
	assert.Equal(t, 2024, since.Year())

	_, err = ParseSince(url.Values{"since": {"yesterday"}})
	assert.Error(t, err)
}
