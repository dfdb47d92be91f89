package thumbnail

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/webp"
)

var rasterExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"webp": true,
}

var rasterMimes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Applicable reports whether thumbnails can be derived for a file. SVG and
// anything outside the raster allowlist are stored as-is.
func Applicable(ext, mime string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	mime = strings.ToLower(mime)
	if ext == "svg" || strings.HasPrefix(mime, "image/svg") {
		return false
	}
	return rasterExtensions[ext] || rasterMimes[mime]
}

// Probe reads image dimensions from the header only.
func Probe(data []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
