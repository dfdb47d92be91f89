package media

import (
	"path"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	maxFilenameLength   = 255
	maxFolderNameLength = 64
	fallbackFolderName  = "folder"
)

var (
	nonSlugChars   = regexp.MustCompile(`[^a-z0-9]+`)
	nonFolderChars = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)
)

// Slugify lowercases s, folds accented letters to ASCII and joins the
// remaining alphanumeric runs with dashes.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	slug := nonSlugChars.ReplaceAllString(strings.ToLower(folded), "-")
	return strings.Trim(slug, "-")
}

// randomBase returns an 8 character name for uploads whose name slugs to
// nothing.
func randomBase() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// splitName returns the file name without extension and the lowercased
// extension without its dot.
func splitName(name string) (stem, ext string) {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return "", ""
	}
	e := path.Ext(name)
	return strings.TrimSuffix(name, e), strings.ToLower(strings.TrimPrefix(e, "."))
}

// candidateName returns the n-th candidate file name: base.ext, then
// base-1.ext, base-2.ext and so on.
func candidateName(base, ext string, n int) string {
	name := base
	if n > 0 {
		name = base + "-" + strconv.Itoa(n)
	}
	if ext != "" {
		name += "." + ext
	}
	return name
}

// SanitizeFolderName reduces a requested folder name to a single safe
// segment of letters, digits, dashes and underscores.
func SanitizeFolderName(raw string) string {
	seg := nonFolderChars.ReplaceAllString(strings.TrimSpace(raw), "-")
	seg = strings.Trim(seg, "-_")
	if seg == "" {
		return fallbackFolderName
	}
	return seg
}
