package media

import (
	"fmt"

	"github.com/fruitsalade/mediavault/internal/bytesize"
	"github.com/fruitsalade/mediavault/internal/models"
	"github.com/fruitsalade/mediavault/internal/thumbnail"
)

// Root is one top-level directory uploads may target.
type Root struct {
	Name  string `json:"name" mapstructure:"name" yaml:"name"`
	Label string `json:"label" mapstructure:"label" yaml:"label"`
}

// Config is the immutable media service configuration.
type Config struct {
	Disk                      string
	MaxFileSize               int64
	AllowedDirectories        []Root
	ScanDepth                 int
	AllowedFolderNest         int
	Thumbnails                []thumbnail.Spec
	ThumbnailMaxPixels        int64
	ThumbnailMaxFilesizeBytes int64
	AllowSVG                  bool
	EnforceRoleCheck          bool
	PermissionsByRoot         map[string][]string
	Visibility                models.Visibility
	VerboseLogging            bool
	MemoryLimit               int64 // bytesize.ParseMemoryLimit result; 0 means detect
}

// DefaultConfig mirrors the stock media manager settings.
func DefaultConfig() Config {
	return Config{
		Disk:        "public",
		MaxFileSize: 5 * bytesize.MiB,
		AllowedDirectories: []Root{
			{Name: "logos", Label: "Brand Logos"},
			{Name: "trainers", Label: "Trainer Media"},
			{Name: "horses", Label: "Horse Media"},
			{Name: "timeslots", Label: "Timeslot Media"},
			{Name: "misc", Label: "Miscellaneous"},
		},
		ScanDepth:                 3,
		AllowedFolderNest:         3,
		Thumbnails:                thumbnail.DefaultSpecs(),
		ThumbnailMaxPixels:        thumbnail.DefaultMaxPixels,
		ThumbnailMaxFilesizeBytes: thumbnail.DefaultMaxFileSize,
		AllowSVG:                  true,
		PermissionsByRoot: map[string][]string{
			"logos":    {"admin", "marketing"},
			"trainers": {},
			"*":        {"admin"},
		},
		Visibility: models.VisibilityPublic,
	}
}

// RootNames returns the configured roots in order.
func (c Config) RootNames() []string {
	names := make([]string, len(c.AllowedDirectories))
	for i, r := range c.AllowedDirectories {
		names[i] = r.Name
	}
	return names
}

// Labels returns the display label of each root, defaulting to its name.
func (c Config) Labels() []string {
	labels := make([]string, len(c.AllowedDirectories))
	for i, r := range c.AllowedDirectories {
		labels[i] = r.Label
		if labels[i] == "" {
			labels[i] = r.Name
		}
	}
	return labels
}

// Validate checks the configuration for values the service cannot run with.
func (c Config) Validate() error {
	if c.Disk == "" {
		return fmt.Errorf("media: disk is required")
	}
	if len(c.AllowedDirectories) == 0 {
		return fmt.Errorf("media: at least one allowed directory is required")
	}
	seen := make(map[string]bool, len(c.AllowedDirectories))
	for _, r := range c.AllowedDirectories {
		if r.Name == "" || r.Name == "." || r.Name == ".." {
			return fmt.Errorf("media: invalid root name %q", r.Name)
		}
		for _, ch := range r.Name {
			if ch == '/' {
				return fmt.Errorf("media: root name %q must be a single segment", r.Name)
			}
		}
		if seen[r.Name] {
			return fmt.Errorf("media: duplicate root %q", r.Name)
		}
		seen[r.Name] = true
	}
	if c.ScanDepth < 0 || c.AllowedFolderNest < 0 {
		return fmt.Errorf("media: scan_depth and allowed_folder_nest must not be negative")
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("media: max_file_size must be positive")
	}
	if c.Visibility != "" && !c.Visibility.Valid() {
		return fmt.Errorf("media: unknown visibility %q", c.Visibility)
	}
	return nil
}
