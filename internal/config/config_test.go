package config

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestManager_RoundTrip(t *testing.T) {
	cfg := NewConfig("/var/lib/docvault")
	cfg.Content.Type = "s3"
	cfg.Content.S3Bucket = "docvault-content"
	cfg.Content.S3Prefix = "prod"
	cfg.Content.S3Region = "eu-central-1"
	cfg.Content.Encryption.Enabled = true
	cfg.Identity.Type = "http"
	cfg.Identity.BaseURL = "https://identity.example.com"
	cfg.Identity.TimeoutSeconds = 10

	m := &Manager{}
	var buf bytes.Buffer
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != cfg.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, cfg.BaseDir)
	}
	if got.Database.Type != "sqlite" || got.Database.DataDir != cfg.Database.DataDir {
		t.Errorf("Database = %+v, want %+v", got.Database, cfg.Database)
	}
	if got.Content.Type != "s3" || got.Content.S3Bucket != "docvault-content" {
		t.Errorf("Content = %+v, want s3 settings preserved", got.Content)
	}
	if !got.Content.Encryption.Enabled {
		t.Error("Encryption.Enabled = false, want true")
	}
	if got.Identity.BaseURL != "https://identity.example.com" || got.Identity.TimeoutSeconds != 10 {
		t.Errorf("Identity = %+v, want http settings preserved", got.Identity)
	}
}

func TestManager_ReadStaticPrincipals(t *testing.T) {
	raw := `
base_dir = "/tmp/dv"

[identity]
type = "static"

[identity.principals.tok-alice]
id = "ext-alice"
email = "alice@example.com"
groups = ["engineering", "sales"]
`
	m := &Manager{}
	cfg, err := m.Read(bytes.NewBufferString(raw))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	p, ok := cfg.Identity.Principals["tok-alice"]
	if !ok {
		t.Fatal("principal tok-alice missing")
	}
	if p.ID != "ext-alice" || p.Email != "alice@example.com" {
		t.Errorf("principal = %+v, want ext-alice/alice@example.com", p)
	}
	if len(p.Groups) != 2 {
		t.Errorf("len(Groups) = %d, want 2", len(p.Groups))
	}
}

func TestInit(t *testing.T) {
	t.Run("creates a readable config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "docvault.toml")
		cfg := NewConfig("/data")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.BaseDir != "/data" {
			t.Errorf("BaseDir = %q, want /data", got.BaseDir)
		}
	})

	t.Run("refuses to overwrite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "docvault.toml")
		cfg := NewConfig("/data")

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}
		if err := Init(path, cfg); err == nil {
			t.Error("second Init() expected error for existing file")
		}
	})
}
