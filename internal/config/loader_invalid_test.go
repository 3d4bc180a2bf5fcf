package config

import (
	"strings"
	"testing"
)

func TestLoadRejectsMalformedFiles(t *testing.T) {
	cases := []struct {
		name, body, wantErr string
	}{
		{"bad.yaml", "addr: :8080\n: broken\n", ""},
		{"bad.yml", "metadata_formats: [txt\n", ""},
		{"bad.json", `{ "addr": ":8080", "models_dir": }`, ""},
		{"types.json", `{ "vram_budget_mb": "lots" }`, ""},
		{"bad.toml", "addr=:8080\nmodels_dir\n", ""},
		{"config.ini", "addr=:8080\n", "unsupported config extension"},
	}
	d := t.TempDir()
	for _, tc := range cases {
		p := writeTempFile(t, d, tc.name, tc.body)
		_, err := Load(p)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if tc.wantErr != "" && !strings.Contains(err.Error(), tc.wantErr) {
			t.Fatalf("%s: err=%v, want %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestLoadMissingOrEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Load(t.TempDir() + "/absent.yaml"); err == nil {
		t.Fatalf("expected error for nonexistent file")
	}
}

func TestLoadedConfigStillValidated(t *testing.T) {
	p := writeTempFile(t, t.TempDir(), "cfg.toml", "backend = \"onnx\"\noutput_quality = 90\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "backend") {
		t.Fatalf("expected backend validation error, got %v", err)
	}
}
