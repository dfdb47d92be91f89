package media

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

const mimeSVG = "image/svg+xml"

var rasterTypes = []string{"image/png", "image/jpeg", "image/webp"}

// DetectMediaType sniffs the content type of an upload. SVG is text to the
// sniffer, so it is recognised by its root element.
func DetectMediaType(data []byte) string {
	if looksLikeSVG(data) {
		return mimeSVG
	}
	mt, _, err := mime.ParseMediaType(http.DetectContentType(data))
	if err != nil {
		return "application/octet-stream"
	}
	return mt
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.ToLower(bytes.TrimSpace(head))
	return bytes.HasPrefix(head, []byte("<svg")) ||
		((bytes.HasPrefix(head, []byte("<?xml")) || bytes.HasPrefix(head, []byte("<!"))) &&
			bytes.Contains(head, []byte("<svg")))
}

// allowedTypes returns the accepted content types.
func (c Config) allowedTypes() []string {
	types := append([]string(nil), rasterTypes...)
	if c.AllowSVG {
		types = append(types, mimeSVG)
	}
	return types
}

// validateUpload checks size and type of an upload against c.
func (c Config) validateUpload(size int64, mimeType string) error {
	if size == 0 {
		return ErrEmptyFile
	}
	if size > c.MaxFileSize {
		return fmt.Errorf("%w: %d bytes, max %d", ErrFileTooLarge, size, c.MaxFileSize)
	}
	for _, t := range c.allowedTypes() {
		if t == mimeType {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (allowed: %s)", ErrUnsupportedMediaType, mimeType, strings.Join(c.allowedTypes(), ", "))
}
