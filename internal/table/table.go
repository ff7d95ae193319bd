// Package table splits delimited text into rows and renders them into named
// display regions.
package table

import (
	"strings"

	"github.com/sortflow/backend/internal/models"
)

// Split breaks raw text into rows on newlines and each row into cells on
// commas. Cells are kept verbatim; no quoting rules apply.
func Split(raw string) models.TableData {
	lines := strings.Split(raw, "\n")
	data := make(models.TableData, 0, len(lines))
	for _, line := range lines {
		data = append(data, strings.Split(line, ","))
	}
	return data
}

// FilterEmpty drops rows whose cells are all empty or whitespace.
func FilterEmpty(data models.TableData) models.TableData {
	out := make(models.TableData, 0, len(data))
	for _, row := range data {
		if hasContent(row) {
			out = append(out, row)
		}
	}
	return out
}

func hasContent(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return true
		}
	}
	return false
}
