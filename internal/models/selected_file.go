package models

import (
	"path/filepath"
	"strings"
)

// SelectedFile is the file the user picked in the browser.
type SelectedFile struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	Content     []byte `json:"-"`
}

// Extension returns the lower-cased text after the last dot. A name without
// a dot is its own extension, so "README" yields "readme".
func (f *SelectedFile) Extension() string {
	name := filepath.Base(f.Name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return strings.ToLower(name[i+1:])
	}
	return strings.ToLower(name)
}
