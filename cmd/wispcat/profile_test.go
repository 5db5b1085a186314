package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/NXWeb-Group/wisp-client-go/types"
)

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wisp.yaml")
	data := []byte("url: ws://localhost:6001/wisp/\nversion: 1\nextensions: [udp, motd]\nlog_level: debug\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := loadProfile(path)
	if err != nil {
		t.Fatalf("loadProfile() error = %v", err)
	}
	if p.URL != "ws://localhost:6001/wisp/" || p.Version != 1 || p.LogLevel != "debug" {
		t.Errorf("profile = %+v", p)
	}

	exts, err := p.extensions()
	if err != nil {
		t.Fatalf("extensions() error = %v", err)
	}
	if len(exts) != 2 || exts[0].ID() != types.UDPExtensionID || exts[1].ID() != types.MOTDExtensionID {
		t.Errorf("extensions() = %v", exts)
	}
}

func TestLoadProfileEmptyPath(t *testing.T) {
	p, err := loadProfile("")
	if err != nil {
		t.Fatalf("loadProfile(\"\") error = %v", err)
	}
	if p.URL != "" || p.Extensions != nil {
		t.Errorf("profile = %+v, want zero value", p)
	}
	if exts, _ := p.extensions(); exts != nil {
		t.Errorf("extensions() = %v, want nil to keep defaults", exts)
	}
}

func TestLoadProfileErrors(t *testing.T) {
	if _, err := loadProfile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("version: [1"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadProfile(path); err == nil {
		t.Error("malformed yaml: expected error")
	}
}

func TestProfileUnknownExtension(t *testing.T) {
	p := profile{Extensions: []string{"udp", "compression"}}
	if _, err := p.extensions(); err == nil {
		t.Error("expected error for unknown extension")
	}
}

func TestProfileEmptyExtensionList(t *testing.T) {
	p := profile{Extensions: []string{}}
	exts, err := p.extensions()
	if err != nil {
		t.Fatal(err)
	}
	if exts == nil || len(exts) != 0 {
		t.Errorf("extensions() = %#v, want empty non-nil list", exts)
	}
}
