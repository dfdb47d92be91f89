// Package config loads configuration from an optional YAML file with
// environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/fruitsalade/mediavault/internal/bytesize"
	"github.com/fruitsalade/mediavault/internal/media"
	"github.com/fruitsalade/mediavault/internal/models"
	"github.com/fruitsalade/mediavault/internal/storage/factory"
	"github.com/fruitsalade/mediavault/internal/thumbnail"
)

// Catalog drivers.
const (
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
	DriverMemory   = "memory"
)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Catalog
	CatalogDriver string
	DatabaseURL   string
	BadgerPath    string

	// Auth
	JWTSecret string
	JWTIssuer string

	// Storage disks by name
	Disks map[string]factory.DiskConfig

	Media media.Config
}

type diskFile struct {
	Type   string                 `mapstructure:"type"`
	Config map[string]interface{} `mapstructure:"config"`
}

type mediaFile struct {
	Disk                      string              `mapstructure:"disk"`
	MaxFileSize               string              `mapstructure:"max_file_size"`
	AllowedDirectories        []media.Root        `mapstructure:"allowed_directories"`
	ScanDepth                 int                 `mapstructure:"scan_depth"`
	AllowedFolderNest         int                 `mapstructure:"allowed_folder_nest"`
	Thumbnails                []thumbnail.Spec    `mapstructure:"thumbnails"`
	ThumbnailMaxPixels        int64               `mapstructure:"thumbnail_max_pixels"`
	ThumbnailMaxFilesizeBytes string              `mapstructure:"thumbnail_max_filesize_bytes"`
	VerboseLogging            bool                `mapstructure:"verbose_logging"`
	AllowSVG                  bool                `mapstructure:"allow_svg"`
	EnforceRoleCheck          bool                `mapstructure:"enforce_role_check"`
	Permissions               map[string][]string `mapstructure:"permissions"`
	Visibility                string              `mapstructure:"visibility"`
	MemoryLimit               string              `mapstructure:"memory_limit"`
}

type fileConfig struct {
	ListenAddr       string              `mapstructure:"listen_addr"`
	MetricsAddr      string              `mapstructure:"metrics_addr"`
	LogLevel         string              `mapstructure:"log_level"`
	LogFormat        string              `mapstructure:"log_format"`
	CatalogDriver    string              `mapstructure:"catalog_driver"`
	DatabaseURL      string              `mapstructure:"database_url"`
	BadgerPath       string              `mapstructure:"badger_path"`
	JWTSecret        string              `mapstructure:"jwt_secret"`
	JWTIssuer        string              `mapstructure:"jwt_issuer"`
	LocalStoragePath string              `mapstructure:"local_storage_path"`
	Disks            map[string]diskFile `mapstructure:"disks"`
	Media            mediaFile           `mapstructure:"media"`
}

var envBindings = map[string]string{
	"listen_addr":                        "LISTEN_ADDR",
	"metrics_addr":                       "METRICS_ADDR",
	"log_level":                          "LOG_LEVEL",
	"log_format":                         "LOG_FORMAT",
	"catalog_driver":                     "CATALOG_DRIVER",
	"database_url":                       "DATABASE_URL",
	"badger_path":                        "BADGER_PATH",
	"jwt_secret":                         "JWT_SECRET",
	"jwt_issuer":                         "JWT_ISSUER",
	"local_storage_path":                 "LOCAL_STORAGE_PATH",
	"media.disk":                         "MEDIA_DISK",
	"media.max_file_size":                "MEDIA_MAX_FILE_SIZE",
	"media.thumbnail_max_pixels":         "MEDIA_THUMB_MAX_PIXELS",
	"media.thumbnail_max_filesize_bytes": "MEDIA_THUMB_MAX_SIZE",
	"media.verbose_logging":              "MEDIA_VERBOSE_LOGGING",
	"media.allow_svg":                    "MEDIA_ALLOW_SVG",
	"media.enforce_role_check":           "MEDIA_ENFORCE_ROLES",
	"media.memory_limit":                 "MEDIA_MEMORY_LIMIT",
}

func setDefaults(v *viper.Viper) {
	d := media.DefaultConfig()
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("catalog_driver", DriverBadger)
	v.SetDefault("badger_path", "./data/catalog")
	v.SetDefault("jwt_issuer", "mediavault")
	v.SetDefault("local_storage_path", "./data/media")
	v.SetDefault("media.disk", d.Disk)
	v.SetDefault("media.max_file_size", "5MB")
	v.SetDefault("media.scan_depth", d.ScanDepth)
	v.SetDefault("media.allowed_folder_nest", d.AllowedFolderNest)
	v.SetDefault("media.thumbnail_max_pixels", d.ThumbnailMaxPixels)
	v.SetDefault("media.thumbnail_max_filesize_bytes", "20MB")
	v.SetDefault("media.verbose_logging", d.VerboseLogging)
	v.SetDefault("media.allow_svg", d.AllowSVG)
	v.SetDefault("media.enforce_role_check", d.EnforceRoleCheck)
	v.SetDefault("media.visibility", string(d.Visibility))
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg := &Config{
		ListenAddr:    fc.ListenAddr,
		MetricsAddr:   fc.MetricsAddr,
		LogLevel:      fc.LogLevel,
		LogFormat:     fc.LogFormat,
		CatalogDriver: strings.ToLower(fc.CatalogDriver),
		DatabaseURL:   fc.DatabaseURL,
		BadgerPath:    fc.BadgerPath,
		JWTSecret:     fc.JWTSecret,
		JWTIssuer:     fc.JWTIssuer,
	}

	disks, err := buildDisks(fc)
	if err != nil {
		return nil, err
	}
	cfg.Disks = disks

	mc, err := buildMedia(fc.Media, v.IsSet("media.permissions"))
	if err != nil {
		return nil, err
	}
	cfg.Media = mc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildDisks(fc fileConfig) (map[string]factory.DiskConfig, error) {
	disks := make(map[string]factory.DiskConfig, len(fc.Disks))
	for name, d := range fc.Disks {
		raw, err := json.Marshal(d.Config)
		if err != nil {
			return nil, fmt.Errorf("disk %s: %w", name, err)
		}
		disks[name] = factory.DiskConfig{Type: strings.ToLower(d.Type), Config: raw}
	}

	if _, ok := disks[fc.Media.Disk]; !ok && len(fc.Disks) == 0 {
		raw, _ := json.Marshal(map[string]interface{}{
			"root_path":   fc.LocalStoragePath,
			"create_dirs": true,
		})
		disks[fc.Media.Disk] = factory.DiskConfig{Type: "local", Config: raw}
	}
	return disks, nil
}

func buildMedia(mf mediaFile, permissionsSet bool) (media.Config, error) {
	d := media.DefaultConfig()
	mc := media.Config{
		Disk:               mf.Disk,
		AllowedDirectories: mf.AllowedDirectories,
		ScanDepth:          mf.ScanDepth,
		AllowedFolderNest:  mf.AllowedFolderNest,
		Thumbnails:         mf.Thumbnails,
		ThumbnailMaxPixels: mf.ThumbnailMaxPixels,
		AllowSVG:           mf.AllowSVG,
		EnforceRoleCheck:   mf.EnforceRoleCheck,
		PermissionsByRoot:  mf.Permissions,
		Visibility:         models.Visibility(strings.ToLower(mf.Visibility)),
		VerboseLogging:     mf.VerboseLogging,
	}

	if mc.MaxFileSize = bytesize.Parse(mf.MaxFileSize); mc.MaxFileSize <= 0 {
		return mc, fmt.Errorf("media.max_file_size: cannot parse %q", mf.MaxFileSize)
	}
	if mc.ThumbnailMaxFilesizeBytes = bytesize.Parse(mf.ThumbnailMaxFilesizeBytes); mc.ThumbnailMaxFilesizeBytes <= 0 {
		return mc, fmt.Errorf("media.thumbnail_max_filesize_bytes: cannot parse %q", mf.ThumbnailMaxFilesizeBytes)
	}
	if mf.MemoryLimit != "" {
		if mc.MemoryLimit = bytesize.ParseMemoryLimit(mf.MemoryLimit); mc.MemoryLimit == 0 {
			return mc, fmt.Errorf("media.memory_limit: cannot parse %q", mf.MemoryLimit)
		}
	}

	if len(mc.AllowedDirectories) == 0 {
		mc.AllowedDirectories = d.AllowedDirectories
	}
	if len(mc.Thumbnails) == 0 {
		mc.Thumbnails = d.Thumbnails
	}
	if !permissionsSet {
		mc.PermissionsByRoot = d.PermissionsByRoot
	} else {
		perms, err := matchPermissionRoots(mf.Permissions, mc.AllowedDirectories)
		if err != nil {
			return mc, err
		}
		mc.PermissionsByRoot = perms
	}
	return mc, mc.Validate()
}

// matchPermissionRoots rekeys media.permissions by the exact root names.
// Viper lowercases map keys, so "Brand" arrives as "brand".
func matchPermissionRoots(perms map[string][]string, roots []media.Root) (map[string][]string, error) {
	byFold := make(map[string]string, len(roots))
	for _, r := range roots {
		folded := strings.ToLower(r.Name)
		if prev, ok := byFold[folded]; ok && prev != r.Name {
			return nil, fmt.Errorf("media.allowed_directories: %q and %q differ only in case", prev, r.Name)
		}
		byFold[folded] = r.Name
	}
	out := make(map[string][]string, len(perms))
	for key, roles := range perms {
		if name, ok := byFold[strings.ToLower(key)]; ok {
			key = name
		}
		out[key] = roles
	}
	return out, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.CatalogDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres catalog")
		}
	case DriverBadger:
		if c.BadgerPath == "" {
			return fmt.Errorf("BADGER_PATH is required for the badger catalog")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown catalog driver %q", c.CatalogDriver)
	}
	if _, ok := c.Disks[c.Media.Disk]; !ok {
		return fmt.Errorf("media disk %q is not configured", c.Media.Disk)
	}
	return nil
}
