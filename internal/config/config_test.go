package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Catalog) != 6 {
		t.Fatalf("catalog size = %d, want 6", len(cfg.Catalog))
	}
	if cfg.Discovery.ReadyThreshold != 0.75 {
		t.Fatalf("ready_threshold = %v, want 0.75", cfg.Discovery.ReadyThreshold)
	}
	if !cfg.API.AllowLegacyActorHeader {
		t.Fatal("legacy actor header should default on")
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	if err != nil {
		t.Fatalf("generated default does not parse: %v", err)
	}
	if _, ok := cfg.Service("workshop-automation"); !ok {
		t.Fatal("workshop-automation missing from generated catalog")
	}
}

func TestValidateRejectsBadThreshold(t *testing.T) {
	for _, v := range []float64{0, -0.1, 1.5} {
		cfg := Default()
		cfg.Discovery.ReadyThreshold = v
		if err := cfg.Validate(); err == nil {
			t.Errorf("threshold %v accepted", v)
		}
	}
}

func TestValidateCatalogEntries(t *testing.T) {
	cfg := Default()
	cfg.Catalog["broken"] = ServiceInfo{Category: "advisory"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "no name") {
		t.Fatalf("err = %v, want missing-name error", err)
	}

	cfg = Default()
	cfg.Catalog["broken"] = ServiceInfo{Name: "Broken"}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "no category") {
		t.Fatalf("err = %v, want missing-category error", err)
	}

	cfg = Default()
	cfg.Catalog = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty catalog accepted")
	}
}

func TestFromYAMLRejectsGarbage(t *testing.T) {
	if _, err := FromYAML([]byte("catalog: [not a map")); err == nil {
		t.Fatal("bad yaml accepted")
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg != nil {
		t.Fatal("missing file should yield nil config")
	}
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, "scopeline.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(ws)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if info, ok := cfg.Service("impl-crm"); !ok || info.Name != "CRM Implementation" {
		t.Fatalf("impl-crm = %+v, %v", info, ok)
	}
}

func TestLoadMissingFileMentionsInit(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "sl init") {
		t.Fatalf("err = %v, want hint to run sl init", err)
	}
}
