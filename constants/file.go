package constants

import "strings"

const (
	PDFMimeType = "application/pdf"

	// PDFMagic is the header every PDF file starts with.
	PDFMagic = "%PDF-"
)

// AllowedExtensions holds the file extensions accepted for upload and batch runs.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without the dot) is accepted.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}
