package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fruitsalade/mediavault/internal/bytesize"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "mediavault.yaml")
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Errorf("addrs = %q %q", cfg.ListenAddr, cfg.MetricsAddr)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "json" {
		t.Errorf("logging = %q %q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.CatalogDriver != DriverBadger {
		t.Errorf("driver = %q", cfg.CatalogDriver)
	}
	if cfg.Media.MaxFileSize != 5*bytesize.MiB {
		t.Errorf("max file size = %d", cfg.Media.MaxFileSize)
	}
	if len(cfg.Media.AllowedDirectories) != 5 || cfg.Media.AllowedDirectories[0].Name != "logos" {
		t.Errorf("roots = %v", cfg.Media.AllowedDirectories)
	}
	if got := cfg.Media.PermissionsByRoot["logos"]; len(got) != 2 {
		t.Errorf("logos permissions = %v", got)
	}

	disk, ok := cfg.Disks["public"]
	if !ok || disk.Type != "local" {
		t.Fatalf("default disk = %+v", cfg.Disks)
	}
	var local map[string]interface{}
	if err := json.Unmarshal(disk.Config, &local); err != nil {
		t.Fatal(err)
	}
	if local["root_path"] != "./data/media" || local["create_dirs"] != true {
		t.Errorf("local disk config = %v", local)
	}
}

func TestLoadFile(t *testing.T) {
	p := writeConfig(t, `
listen_addr: ":7000"
catalog_driver: memory
disks:
  assets:
    type: S3
    config:
      bucket: media
      region: eu-west-1
media:
  disk: assets
  max_file_size: 2MB
  allowed_directories:
    - name: photos
      label: Photos
    - name: docs
  thumbnails:
    - key: sm
      width: 100
      height: 100
      quality: 70
  permissions:
    photos: [editor]
  memory_limit: 256M
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":7000" || cfg.CatalogDriver != DriverMemory {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Disks["assets"].Type != "s3" {
		t.Errorf("disk type = %q", cfg.Disks["assets"].Type)
	}
	var s3cfg map[string]interface{}
	json.Unmarshal(cfg.Disks["assets"].Config, &s3cfg)
	if s3cfg["bucket"] != "media" {
		t.Errorf("s3 config = %v", s3cfg)
	}

	m := cfg.Media
	if m.MaxFileSize != 2*bytesize.MiB || m.MemoryLimit != 256*bytesize.MiB {
		t.Errorf("sizes = %d %d", m.MaxFileSize, m.MemoryLimit)
	}
	if len(m.AllowedDirectories) != 2 || m.Labels()[1] != "docs" {
		t.Errorf("roots = %v", m.AllowedDirectories)
	}
	if len(m.Thumbnails) != 1 || m.Thumbnails[0].Key != "sm" || m.Thumbnails[0].Quality != 70 {
		t.Errorf("thumbnails = %v", m.Thumbnails)
	}
	if _, ok := m.PermissionsByRoot["*"]; ok {
		t.Errorf("explicit permissions should replace defaults: %v", m.PermissionsByRoot)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":1234")
	t.Setenv("CATALOG_DRIVER", "memory")
	t.Setenv("MEDIA_MAX_FILE_SIZE", "500kb")
	t.Setenv("MEDIA_ENFORCE_ROLES", "true")
	t.Setenv("MEDIA_ALLOW_SVG", "false")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load(writeConfig(t, "listen_addr: \":7000\"\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":1234" {
		t.Errorf("env should win over file, got %q", cfg.ListenAddr)
	}
	if cfg.Media.MaxFileSize != 500*bytesize.KiB {
		t.Errorf("max file size = %d", cfg.Media.MaxFileSize)
	}
	if !cfg.Media.EnforceRoleCheck || cfg.Media.AllowSVG {
		t.Errorf("flags = enforce %v svg %v", cfg.Media.EnforceRoleCheck, cfg.Media.AllowSVG)
	}
	if cfg.JWTSecret != "s3cret" {
		t.Errorf("secret = %q", cfg.JWTSecret)
	}
}

func TestPermissionsMatchMixedCaseRoots(t *testing.T) {
	p := writeConfig(t, `
media:
  allowed_directories:
    - name: Brand
      label: Brand Logos
    - name: misc
  permissions:
    Brand: [editor]
    "*": [admin]
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	perms := cfg.Media.PermissionsByRoot
	if got := perms["Brand"]; len(got) != 1 || got[0] != "editor" {
		t.Errorf("Brand permissions = %v (all: %v)", got, perms)
	}
	if _, ok := perms["brand"]; ok {
		t.Errorf("lowercased key left behind: %v", perms)
	}
	if got := perms["*"]; len(got) != 1 || got[0] != "admin" {
		t.Errorf("wildcard permissions = %v", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		body string
	}{
		{name: "bad size", env: map[string]string{"MEDIA_MAX_FILE_SIZE": "lots"}},
		{name: "bad memory limit", env: map[string]string{"MEDIA_MEMORY_LIMIT": "huge"}},
		{name: "unknown driver", env: map[string]string{"CATALOG_DRIVER": "mongo"}},
		{name: "postgres without url", env: map[string]string{"CATALOG_DRIVER": "postgres"}},
		{name: "missing disk", body: "media:\n  disk: nowhere\ndisks:\n  public:\n    type: local\n"},
		{name: "duplicate roots", body: "media:\n  allowed_directories:\n    - name: a\n    - name: a\n"},
		{name: "roots differing in case", body: "media:\n  allowed_directories:\n    - name: Brand\n    - name: brand\n  permissions:\n    brand: [editor]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			if _, err := Load(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
