package internal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vspipe.yaml")
	data := []byte(`
blank: 1280x720@30:90,YUV420P8
container: webm
requests: 4
bitrate: 2500
log:
  level: debug
  format: json
  file: /tmp/vspipe.log
  max_size_mb: 50
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	want := DefaultConfig()
	want.Blank = "1280x720@30:90,YUV420P8"
	want.Container = "webm"
	want.Requests = 4
	want.Bitrate = 2500
	want.Log = LogOptions{Level: "debug", Format: "json", File: "/tmp/vspipe.log", MaxSizeMB: 50}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config (-want +got):\n%s", diff)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("requests: [1, 2"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed yaml should fail")
	}
}
