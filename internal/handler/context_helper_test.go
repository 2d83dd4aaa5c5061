package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func paginateQuery(t *testing.T, query string, items []int) ([]int, int, error) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/items?"+query, nil)
	page, pagination, err := paginate(c, items)
	if pagination == nil {
		return page, -1, err
	}
	return page, pagination.TotalCount, err
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page, total, err := paginateQuery(t, "", items)
	require.NoError(t, err)
	assert.Equal(t, items, page)
	assert.Equal(t, -1, total)

	page, total, err = paginateQuery(t, "page=3&limit=2", items)
	require.NoError(t, err)
	assert.Equal(t, []int{5}, page)
	assert.Equal(t, 5, total)

	page, _, err = paginateQuery(t, "page=4&limit=2", items)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, _, err = paginateQuery(t, "limit=x", items)
	assert.Error(t, err)
}

func TestPaginateHugePageIsEmpty(t *testing.T) {
	items := []int{1, 2, 3}
	for _, query := range []string{
		"page=4611686018427387905&limit=2",
		"page=9223372036854775807&limit=500",
	} {
		require.NotPanics(t, func() {
			page, total, err := paginateQuery(t, query, items)
			require.NoError(t, err)
			assert.Empty(t, page)
			assert.Equal(t, 3, total)
		}, query)
	}
}
