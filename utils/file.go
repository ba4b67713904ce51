package utils

import (
	"path/filepath"
	"strings"
)

// FileExt returns the lowercase extension of an uploaded filename, with a
// .jpg fallback so proof-photo keys always carry an extension.
func FileExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	return ext
}
