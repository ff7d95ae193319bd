package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sortflow/backend/internal/models"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want models.TableData
	}{
		{"single cell", "a", models.TableData{{"a"}}},
		{"rows and cells", "a,b\nc,d", models.TableData{{"a", "b"}, {"c", "d"}}},
		{"trailing newline", "a\n", models.TableData{{"a"}, {""}}},
		{"cells kept verbatim", " a , b\r", models.TableData{{" a ", " b\r"}}},
		{"empty input", "", models.TableData{{""}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.raw))
		})
	}
}

func TestFilterEmpty(t *testing.T) {
	data := models.TableData{{"a", "b"}, {"", " "}, {"\t"}, {"", "x"}}
	assert.Equal(t, models.TableData{{"a", "b"}, {"", "x"}}, FilterEmpty(data))
}

func TestRenderer_DropsAllEmptyRows(t *testing.T) {
	r := NewRenderer()
	r.RenderText(models.RegionUnsorted, "a,b\n,\nc,d")

	rows, ok := r.Rows(models.RegionUnsorted)
	require.True(t, ok)
	assert.Equal(t, models.TableData{{"a", "b"}, {"c", "d"}}, rows)
}

func TestRenderer_ReplacesRegion(t *testing.T) {
	r := NewRenderer()
	r.RenderText(models.RegionSorted, "1,2\n3,4")
	r.RenderText(models.RegionSorted, "5")

	rows, _ := r.Rows(models.RegionSorted)
	assert.Equal(t, models.TableData{{"5"}}, rows)

	_, ok := r.Rows(models.RegionUnsorted)
	assert.False(t, ok)
}

func TestRenderer_RowsAreCopies(t *testing.T) {
	r := NewRenderer()
	r.RenderText(models.RegionSorted, "a,b")

	rows, _ := r.Rows(models.RegionSorted)
	rows[0][0] = "changed"

	again, _ := r.Rows(models.RegionSorted)
	assert.Equal(t, "a", again[0][0])
}

func TestRenderer_ClearAndSnapshot(t *testing.T) {
	r := NewRenderer()
	r.RenderText(models.RegionUnsorted, "x")
	r.RenderText(models.RegionSorted, "y")
	r.Clear(models.RegionUnsorted)

	snap := r.Snapshot()
	assert.Len(t, snap, 1)
	assert.Equal(t, models.TableData{{"y"}}, snap[models.RegionSorted])
}
