package utils

import (
	"mime"
	"strings"
)

// SanitizeHeaderFilename removes characters that can break headers.
func SanitizeHeaderFilename(name string) string {
	clean := strings.TrimSpace(name)
	clean = strings.NewReplacer("\r", "", "\n", "", "\"", "", "/", "_", "\\", "_").Replace(clean)
	if clean == "" {
		return "download"
	}
	return clean
}

// ContentDisposition builds an attachment header value. Non-ASCII names are
// encoded per RFC 2231 by the mime package.
func ContentDisposition(name string) string {
	value := mime.FormatMediaType("attachment", map[string]string{"filename": SanitizeHeaderFilename(name)})
	if value == "" {
		return `attachment; filename="download"`
	}
	return value
}
