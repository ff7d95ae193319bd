package models

// Display regions a table can be rendered into.
const (
	RegionUnsorted = "unsorted-table"
	RegionSorted   = "sorted-table"
)

// TableData is an ordered list of rows, each an ordered list of cell strings.
type TableData [][]string

// Clone deep-copies the rows.
func (t TableData) Clone() TableData {
	if t == nil {
		return nil
	}
	out := make(TableData, len(t))
	for i, row := range t {
		out[i] = append([]string(nil), row...)
	}
	return out
}
